package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"
)

// GenAIAdapter 基于官方 google.golang.org/genai SDK 的适配器
type GenAIAdapter struct {
	baseURL    string
	apiVersion string
	httpClient *http.Client

	StructuredRoles bool

	mu      sync.Mutex
	clients map[string]*genai.Client // credential -> client
}

func NewGenAIAdapter(baseURL, apiVersion string, httpClient *http.Client) *GenAIAdapter {
	if strings.TrimSpace(apiVersion) == "" {
		apiVersion = DefaultAPIVersion
	}
	return &GenAIAdapter{
		baseURL:    strings.TrimSpace(baseURL),
		apiVersion: apiVersion,
		httpClient: httpClient,
		clients:    make(map[string]*genai.Client),
	}
}

func (a *GenAIAdapter) Name() string { return "sdk" }

func (a *GenAIAdapter) client(ctx context.Context, credential string) (*genai.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if c, ok := a.clients[credential]; ok {
		return c, nil
	}

	cfg := &genai.ClientConfig{
		APIKey:     credential,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: a.httpClient,
		HTTPOptions: genai.HTTPOptions{
			APIVersion: a.apiVersion,
		},
	}
	if a.baseURL != "" {
		cfg.HTTPOptions.BaseURL = a.baseURL
	}

	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	a.clients[credential] = c
	return c, nil
}

// ListModels 通过 SDK 枚举模型目录
func (a *GenAIAdapter) ListModels(ctx context.Context, credential string) ([]CatalogEntry, error) {
	c, err := a.client(ctx, credential)
	if err != nil {
		return nil, err
	}

	var entries []CatalogEntry
	for m, err := range c.Models.All(ctx) {
		if err != nil {
			return nil, fmt.Errorf("list models: %w", err)
		}
		entries = append(entries, CatalogEntry{
			Name:         m.Name,
			Capabilities: m.SupportedActions,
		})
	}
	return entries, nil
}

// GenerateContent 通过 SDK 生成回复
func (a *GenAIAdapter) GenerateContent(ctx context.Context, credential, model string, prompt Prompt) Result {
	c, err := a.client(ctx, credential)
	if err != nil {
		return Result{Outcome: OutcomeFatal, Message: err.Error()}
	}

	var (
		contents []*genai.Content
		config   *genai.GenerateContentConfig
	)
	if a.StructuredRoles {
		config = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: prompt.Instruction}}},
		}
		contents = []*genai.Content{{
			Role:  "user",
			Parts: []*genai.Part{{Text: "Context: " + prompt.Context}, {Text: "User: " + prompt.Question}},
		}}
	} else {
		parts := make([]*genai.Part, 0, 3)
		for _, m := range prompt.Messages() {
			parts = append(parts, &genai.Part{Text: m})
		}
		contents = []*genai.Content{{Role: "user", Parts: parts}}
	}

	resp, err := c.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return sdkFailure(err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		msg := "empty response from model"
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			msg = "prompt blocked: " + string(resp.PromptFeedback.BlockReason)
		}
		return Result{Outcome: OutcomeFatal, Code: http.StatusOK, Message: msg}
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	return OK(sb.String())
}

// sdkFailure 从 genai.APIError 取结构化状态码
func sdkFailure(err error) Result {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return Failure(apiErr.Code, apiErr.Message)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return Failure(apiErrPtr.Code, apiErrPtr.Message)
	}
	return Result{Outcome: OutcomeFatal, Message: err.Error()}
}

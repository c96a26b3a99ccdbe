package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	DefaultBaseURL    = "https://generativelanguage.googleapis.com"
	DefaultAPIVersion = "v1beta"

	// 目录分页上限，防止上游返回异常的 nextPageToken 导致死循环
	maxCatalogPages = 10
	maxErrorText    = 200
)

// GeminiAdapter Google Gemini REST 协议适配器
type GeminiAdapter struct {
	baseURL    string
	apiVersion string
	client     *http.Client

	// StructuredRoles 为 true 时使用 systemInstruction 字段，而不是 "System:" 文本标签
	StructuredRoles bool
}

func NewGeminiAdapter(baseURL, apiVersion string, client *http.Client) *GeminiAdapter {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if strings.TrimSpace(apiVersion) == "" {
		apiVersion = DefaultAPIVersion
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &GeminiAdapter{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiVersion: strings.Trim(apiVersion, "/"),
		client:     client,
	}
}

func (a *GeminiAdapter) Name() string { return "rest" }

// ListModels 拉取完整模型目录
func (a *GeminiAdapter) ListModels(ctx context.Context, credential string) ([]CatalogEntry, error) {
	var entries []CatalogEntry
	pageToken := ""

	for page := 0; page < maxCatalogPages; page++ {
		u, err := a.endpoint("models", credential)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		q.Set("pageSize", "1000")
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		u.RawQuery = q.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := a.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("list models: %w", err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("list models: read body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("list models: status %d: %s", resp.StatusCode, errorMessage(body))
		}

		var list GeminiModelList
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("list models: decode: %w", err)
		}
		for _, m := range list.Models {
			entries = append(entries, CatalogEntry{
				Name:         m.Name,
				Capabilities: m.SupportedGenerationMethods,
			})
		}

		if list.NextPageToken == "" {
			break
		}
		pageToken = list.NextPageToken
	}
	return entries, nil
}

// GenerateContent 调用 :generateContent
func (a *GeminiAdapter) GenerateContent(ctx context.Context, credential, model string, prompt Prompt) Result {
	reqBodyBytes, err := json.Marshal(a.buildRequest(prompt))
	if err != nil {
		return Result{Outcome: OutcomeFatal, Message: fmt.Sprintf("failed to marshal gemini request: %v", err)}
	}

	u, err := a.endpoint(modelPath(model)+":generateContent", credential)
	if err != nil {
		return Result{Outcome: OutcomeFatal, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewBuffer(reqBodyBytes))
	if err != nil {
		return Result{Outcome: OutcomeFatal, Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return Result{Outcome: OutcomeFatal, Message: fmt.Sprintf("network error: %v", err)}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Outcome: OutcomeFatal, Code: resp.StatusCode, Message: fmt.Sprintf("read body: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return Failure(resp.StatusCode, errorMessage(bodyBytes))
	}

	var geminiResp GeminiResponse
	if err := json.Unmarshal(bodyBytes, &geminiResp); err != nil {
		return Result{Outcome: OutcomeFatal, Code: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err)}
	}
	return responseResult(geminiResp)
}

func (a *GeminiAdapter) buildRequest(prompt Prompt) GeminiRequest {
	if a.StructuredRoles {
		return GeminiRequest{
			SystemInstruction: &GeminiContent{
				Parts: []GeminiPart{{Text: prompt.Instruction}},
			},
			Contents: []GeminiContent{{
				Role: "user",
				Parts: []GeminiPart{
					{Text: "Context: " + prompt.Context},
					{Text: "User: " + prompt.Question},
				},
			}},
		}
	}

	msgs := prompt.Messages()
	parts := make([]GeminiPart, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, GeminiPart{Text: m})
	}
	return GeminiRequest{
		Contents: []GeminiContent{{Role: "user", Parts: parts}},
	}
}

func (a *GeminiAdapter) endpoint(path, credential string) (*url.URL, error) {
	u, err := url.Parse(a.baseURL + "/" + a.apiVersion + "/" + path)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url: %w", err)
	}
	q := u.Query()
	q.Set("key", credential)
	u.RawQuery = q.Encode()
	return u, nil
}

func responseResult(geminiResp GeminiResponse) Result {
	if len(geminiResp.Candidates) == 0 {
		msg := "empty response from model"
		if geminiResp.PromptFeedback != nil && geminiResp.PromptFeedback.BlockReason != "" {
			msg = "prompt blocked: " + geminiResp.PromptFeedback.BlockReason
		}
		return Result{Outcome: OutcomeFatal, Code: http.StatusOK, Message: msg}
	}

	var sb strings.Builder
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		if part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	return OK(sb.String())
}

// modelPath 统一模型标识为 "models/xxx" 形式
func modelPath(model string) string {
	model = strings.TrimSpace(model)
	if strings.HasPrefix(model, "models/") || strings.HasPrefix(model, "tunedModels/") {
		return model
	}
	return "models/" + model
}

func errorMessage(body []byte) string {
	var env GeminiErrorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		return env.Error.Message
	}
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorText {
		text = text[:maxErrorText]
	}
	return text
}

package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"docqa/core/adapter"
	"docqa/core/utils"
	"docqa/models"

	"github.com/sirupsen/logrus"
)

// DefaultPersona 默认的助手角色指令
const DefaultPersona = `Role: You are the document assistant for this organisation.
Tone: polite, friendly and professional.
Task: answer questions using ONLY the attached reference document. If the document does not contain enough information, say so plainly.`

// Assistant 单次提问的编排：文档 -> 上下文 -> 模型解析 -> 生成 -> 记录
type Assistant struct {
	store    DocumentStore
	contexts *ContextProvider
	resolver *ModelResolver
	invoker  *ResilientInvoker
	persona  string
	logger   *logrus.Logger
	metrics  *Metrics

	mu        sync.RWMutex
	lastModel string
}

func NewAssistant(store DocumentStore, contexts *ContextProvider, resolver *ModelResolver, invoker *ResilientInvoker, persona string, logger *logrus.Logger, metrics *Metrics) *Assistant {
	if persona == "" {
		persona = DefaultPersona
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Assistant{
		store:    store,
		contexts: contexts,
		resolver: resolver,
		invoker:  invoker,
		persona:  persona,
		logger:   logger,
		metrics:  metrics,
	}
}

// Ask 追加用户提问和对应的一条助手回复（成功回复或状态提示），返回助手回复
func (a *Assistant) Ask(ctx context.Context, s *Session, question string) (turn models.Turn) {
	s.ask.Lock()
	defer s.ask.Unlock()

	start := time.Now()
	s.appendTurn(models.Turn{Role: models.RoleUser, Text: question})

	defer func() {
		if r := recover(); r != nil {
			a.logger.Errorf("💥 Panic while answering (session %s): %v", s.ID, r)
			turn = models.Turn{Role: models.RoleAssistant, Text: UserMessage(fmt.Errorf("internal error: %v", r)), Failed: true}
			s.appendTurn(turn)
			a.metrics.ask("panic", time.Since(start))
		}
	}()

	reply, err := a.answer(ctx, s, question)
	if err != nil {
		a.logger.Warnf("❌ Ask failed (session %s): %v", s.ID, err)
		turn = models.Turn{Role: models.RoleAssistant, Text: UserMessage(err), Failed: true}
		s.appendTurn(turn)
		a.metrics.ask("failed", time.Since(start))
		return turn
	}

	turn = models.Turn{Role: models.RoleAssistant, Text: reply.Text, Model: utils.ShortModelName(reply.Model)}
	s.appendTurn(turn)
	a.metrics.ask("ok", time.Since(start))
	return turn
}

func (a *Assistant) answer(ctx context.Context, s *Session, question string) (*Reply, error) {
	doc, err := a.store.ReadDocument(ctx)
	if err != nil {
		return nil, err
	}

	text, err := a.contexts.Prepare(doc)
	if err != nil {
		return nil, err
	}

	res := a.resolve(ctx, s)

	return a.invoker.Generate(ctx, Invocation{
		SessionID:  s.ID,
		Rotator:    s.Rotator(),
		Candidates: res.Candidates,
		Prompt: adapter.Prompt{
			Instruction: a.persona,
			Context:     text,
			Question:    question,
		},
		OnNotFound: func(model string) {
			if s.InvalidateResolution(model) {
				a.logger.Infof("♻️ Cached model [%s] not found, resolution invalidated", utils.ShortModelName(model))
			}
		},
	})
}

// resolve 返回会话缓存的解析结果；只有目录拉取成功的结果会被缓存，
// 降级结果下次提问时会重新尝试发现
func (a *Assistant) resolve(ctx context.Context, s *Session) *Resolution {
	if res := s.Resolution(); res != nil {
		return res
	}

	credential := s.Rotator().Current()
	if pos, ok := s.Rotator().Seek(func(c string) bool { return !a.invoker.Keys().IsDead(c) }); ok {
		credential = s.Rotator().At(pos)
	}

	res := a.resolver.ResolveOrFallback(ctx, credential)
	if res.Discovered {
		s.setResolution(res)
	}

	a.mu.Lock()
	a.lastModel = res.Model
	a.mu.Unlock()
	return res
}

// Refresh 立即重新解析并替换会话缓存
func (a *Assistant) Refresh(ctx context.Context, s *Session) *Resolution {
	s.InvalidateResolution("")
	return a.resolve(ctx, s)
}

// Status 状态快照：当前模型、文档是否就绪、凭证数量
func (a *Assistant) Status(ctx context.Context, s *Session, credentials []string, transport string) models.StatusResponse {
	model := ""
	if s != nil {
		if res := s.Resolution(); res != nil {
			model = res.Model
		}
	}
	if model == "" {
		a.mu.RLock()
		model = a.lastModel
		a.mu.RUnlock()
	}

	ready, err := a.store.HasDocument(ctx)
	if err != nil {
		a.logger.Warnf("Status: document check failed: %v", err)
	}

	available := 0
	for _, c := range credentials {
		if a.invoker.Keys().IsAvailable(c) {
			available++
		}
	}

	return models.StatusResponse{
		Model:         utils.ShortModelName(model),
		DocumentReady: ready,
		Credentials:   len(credentials),
		Available:     available,
		Transport:     transport,
	}
}

package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"docqa/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	ScopeSession = "session"
	ScopeShared  = "shared"
)

// Session 一个交互会话的全部可变状态：对话记录、缓存的模型解析结果、凭证游标
type Session struct {
	ID        string
	CreatedAt time.Time

	ask sync.Mutex // 同一会话内的提问串行执行

	mu         sync.RWMutex
	turns      []models.Turn
	resolution *Resolution
	rotator    *Rotator
	lastActive time.Time
}

// Turns 返回对话记录副本
func (s *Session) Turns() []models.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Rotator 会话使用的凭证轮换器（scope=shared 时为全局共享实例）
func (s *Session) Rotator() *Rotator { return s.rotator }

// Resolution 缓存的模型解析结果，可能为 nil
func (s *Session) Resolution() *Resolution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolution
}

func (s *Session) setResolution(res *Resolution) {
	s.mu.Lock()
	s.resolution = res
	s.mu.Unlock()
}

// InvalidateResolution 当 model 为空或等于缓存的首选模型时清除缓存
func (s *Session) InvalidateResolution(model string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolution == nil {
		return false
	}
	if model != "" && s.resolution.Model != model {
		return false
	}
	s.resolution = nil
	return true
}

func (s *Session) appendTurn(turn models.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	s.turns = append(s.turns, turn)
	s.lastActive = turn.CreatedAt
}

// LastActive 最后一次活动时间
func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

func (s *Session) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
	s.resolution = nil
}

// SessionManager 管理所有会话，会话之间互不共享状态（scope=shared 时共享游标）
type SessionManager struct {
	credentials []string
	scope       string
	shared      *Rotator
	idleTTL     time.Duration
	logger      *logrus.Logger
	metrics     *Metrics

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionManager 凭证列表为空时返回 ErrConfiguration
func NewSessionManager(credentials []string, scope string, idleTTL time.Duration, logger *logrus.Logger, metrics *Metrics) (*SessionManager, error) {
	shared, err := NewRotator(credentials)
	if err != nil {
		return nil, err
	}
	if scope != ScopeShared {
		scope = ScopeSession
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SessionManager{
		credentials: credentials,
		scope:       scope,
		shared:      shared,
		idleTTL:     idleTTL,
		logger:      logger,
		metrics:     metrics,
		sessions:    make(map[string]*Session),
	}, nil
}

// Credentials 配置的凭证列表（按轮换顺序）
func (m *SessionManager) Credentials() []string {
	out := make([]string, 0, m.shared.Len())
	for i := 0; i < m.shared.Len(); i++ {
		out = append(out, m.shared.At(uint64(i)))
	}
	return out
}

// Create 创建新会话
func (m *SessionManager) Create() *Session {
	rotator := m.shared
	if m.scope == ScopeSession {
		rotator, _ = NewRotator(m.credentials) // 凭证已在构造时校验
	}
	now := time.Now()
	s := &Session{
		ID:         uuid.NewString(),
		CreatedAt:  now,
		rotator:    rotator,
		lastActive: now,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.metrics.sessions(1)
	m.logger.Infof("💬 Session created: %s (scope=%s)", s.ID, m.scope)
	return s
}

// Get 查找会话
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// End 结束会话并清空对话记录
func (m *SessionManager) End(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.clear()
	m.metrics.sessions(-1)
	m.logger.Infof("👋 Session ended: %s", id)
	return nil
}

// Count 当前会话数
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// InvalidateAll 清除所有会话缓存的模型解析结果
func (m *SessionManager) InvalidateAll() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.sessions {
		if s.InvalidateResolution("") {
			n++
		}
	}
	return n
}

// Sweep 结束空闲超过 idleTTL 的会话
func (m *SessionManager) Sweep(now time.Time) int {
	if m.idleTTL <= 0 {
		return 0
	}
	var expired []string
	m.mu.RLock()
	for id, s := range m.sessions {
		if now.Sub(s.LastActive()) > m.idleTTL {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range expired {
		m.End(id)
	}
	return len(expired)
}

// StartSweeper 后台定期清理空闲会话，ctx 取消时退出
func (m *SessionManager) StartSweeper(ctx context.Context, interval time.Duration) {
	if m.idleTTL <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := m.Sweep(now); n > 0 {
					m.logger.Infof("🧹 Expired %d idle session(s)", n)
				}
			}
		}
	}()
}

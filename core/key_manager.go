package core

import (
	"sync"
	"time"
)

// KeyStatusType 凭证状态枚举
type KeyStatusType int

const (
	KeyStatusAvailable KeyStatusType = iota
	KeyStatusCooldown
	KeyStatusDead
)

func (s KeyStatusType) String() string {
	switch s {
	case KeyStatusCooldown:
		return "cooldown"
	case KeyStatusDead:
		return "dead"
	default:
		return "available"
	}
}

// KeyState 凭证的状态信息
type KeyState struct {
	Status     KeyStatusType
	UnlockTime time.Time
}

// KeyStateManager 凭证状态管理器 (线程安全)
type KeyStateManager struct {
	states map[string]KeyState // Key -> State
	mutex  sync.RWMutex
	now    func() time.Time
}

var _ KeyManager = (*KeyStateManager)(nil)

func NewKeyStateManager() *KeyStateManager {
	return &KeyStateManager{
		states: make(map[string]KeyState),
		now:    time.Now,
	}
}

// MarkCooldown 标记凭证为冷却状态；已失效的凭证保持失效
func (m *KeyStateManager) MarkCooldown(key string, duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.states[key].Status == KeyStatusDead {
		return
	}
	m.states[key] = KeyState{
		Status:     KeyStatusCooldown,
		UnlockTime: m.now().Add(duration),
	}
}

// MarkDead 标记凭证为失效 (403)
func (m *KeyStateManager) MarkDead(key string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.states[key] = KeyState{
		Status: KeyStatusDead,
	}
}

// MarkAvailable 标记凭证为可用 (通常不需要显式调用，IsAvailable 会自动处理过期的 Cooldown)
func (m *KeyStateManager) MarkAvailable(key string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.states, key)
}

// IsAvailable 检查凭证是否可用
func (m *KeyStateManager) IsAvailable(key string) bool {
	return m.Status(key) == KeyStatusAvailable
}

// IsDead 检查凭证是否已失效
func (m *KeyStateManager) IsDead(key string) bool {
	return m.Status(key) == KeyStatusDead
}

// Status 返回凭证当前状态，过期的冷却会被懒惰清理
func (m *KeyStateManager) Status(key string) KeyStatusType {
	m.mutex.RLock()
	state, exists := m.states[key]
	m.mutex.RUnlock()

	if !exists {
		return KeyStatusAvailable // 默认可用
	}

	if state.Status == KeyStatusCooldown && !m.now().Before(state.UnlockTime) {
		// 冷却结束，懒惰清理
		m.mutex.Lock()
		if cur, ok := m.states[key]; ok && cur.Status == KeyStatusCooldown && !m.now().Before(cur.UnlockTime) {
			delete(m.states, key)
		}
		m.mutex.Unlock()
		return KeyStatusAvailable
	}

	return state.Status
}

package core

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Rotator 凭证轮换器
// 游标始终保持在 [0, len) 区间内，推进操作是单次 CAS，可在多个会话间共享
type Rotator struct {
	credentials []string
	cursor      atomic.Uint64
}

// NewRotator 创建轮换器；凭证列表为空时返回 ErrConfiguration
func NewRotator(credentials []string) (*Rotator, error) {
	creds := make([]string, 0, len(credentials))
	for _, c := range credentials {
		if c = strings.TrimSpace(c); c != "" {
			creds = append(creds, c)
		}
	}
	if len(creds) == 0 {
		return nil, fmt.Errorf("%w: credential set is empty", ErrConfiguration)
	}
	return &Rotator{credentials: creds}, nil
}

// Len 凭证数量
func (r *Rotator) Len() int { return len(r.credentials) }

// Cursor 当前游标位置
func (r *Rotator) Cursor() uint64 { return r.cursor.Load() }

// Current 当前凭证
func (r *Rotator) Current() string {
	return r.credentials[r.cursor.Load()]
}

// At 返回指定位置的凭证（取模）
func (r *Rotator) At(pos uint64) string {
	return r.credentials[pos%uint64(len(r.credentials))]
}

// Advance 无条件推进一步（环绕）
func (r *Rotator) Advance() {
	for {
		cur := r.cursor.Load()
		if r.cursor.CompareAndSwap(cur, r.next(cur)) {
			return
		}
	}
}

// AdvanceFrom 仅当游标仍停在 seen 时推进
// 两个会话同时发现同一个凭证耗尽时，只有一个会真正推进，避免跳过两次
func (r *Rotator) AdvanceFrom(seen uint64) bool {
	return r.cursor.CompareAndSwap(seen, r.next(seen))
}

// Seek 从当前游标开始找第一个满足条件的凭证并停在那里，最多走一整圈
func (r *Rotator) Seek(accept func(credential string) bool) (uint64, bool) {
	for i := 0; i < len(r.credentials); i++ {
		pos := r.cursor.Load()
		if accept(r.credentials[pos]) {
			return pos, true
		}
		r.AdvanceFrom(pos)
	}
	pos := r.cursor.Load()
	return pos, accept(r.credentials[pos])
}

func (r *Rotator) next(cur uint64) uint64 {
	return (cur + 1) % uint64(len(r.credentials))
}

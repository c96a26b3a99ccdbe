package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyStateManager_Cooldown(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewKeyStateManager()
	m.now = func() time.Time { return now }

	assert.True(t, m.IsAvailable("k"))

	m.MarkCooldown("k", time.Minute)
	assert.False(t, m.IsAvailable("k"))
	assert.Equal(t, KeyStatusCooldown, m.Status("k"))

	now = now.Add(time.Minute)
	assert.True(t, m.IsAvailable("k"), "cooldown expires lazily")
	assert.Equal(t, "available", m.Status("k").String())
}

func TestKeyStateManager_ZeroCooldownIsNoop(t *testing.T) {
	m := NewKeyStateManager()
	m.MarkCooldown("k", 0)
	assert.True(t, m.IsAvailable("k"))
}

func TestKeyStateManager_DeadIsSticky(t *testing.T) {
	m := NewKeyStateManager()
	m.MarkDead("k")
	m.MarkCooldown("k", time.Hour)

	assert.True(t, m.IsDead("k"))
	assert.False(t, m.IsAvailable("k"))
	assert.Equal(t, "dead", m.Status("k").String())

	m.MarkAvailable("k")
	assert.True(t, m.IsAvailable("k"))
}

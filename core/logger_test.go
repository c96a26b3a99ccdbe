package core

import (
	"testing"
	"time"

	"docqa/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncAttemptLogger_FlushOnClose(t *testing.T) {
	db := newTestDB(t)
	l := NewAsyncAttemptLogger(db, quietLogger(), 10)

	l.Log(&models.AttemptLog{CreatedAt: time.Now(), Model: "models/gemini-1.5-flash", Outcome: "quota", StatusCode: 429, Duration: 10})
	l.Log(&models.AttemptLog{CreatedAt: time.Now(), Model: "models/gemini-1.5-flash", Outcome: "ok", StatusCode: 200, Duration: 30})
	l.Log(&models.AttemptLog{CreatedAt: time.Now(), Model: "gemini-1.5-pro", Outcome: "fatal", StatusCode: 500, Duration: 5})
	l.Close()

	recent, err := l.Recent(0)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "fatal", recent[0].Outcome, "newest first")

	stats, err := l.Stats()
	require.NoError(t, err)
	require.Len(t, stats, 2)

	flash := stats[0]
	assert.Equal(t, "gemini-1.5-flash", flash.ModelName)
	assert.Equal(t, 1, flash.Success)
	assert.Equal(t, 1, flash.Error)
	assert.Equal(t, 1, flash.QuotaErrors)
	assert.Equal(t, int64(2), flash.TotalRequests)
	assert.InDelta(t, 20.0, flash.AvgLatency(), 0.001)

	assert.Equal(t, "gemini-1.5-pro", stats[1].ModelName)
	assert.Equal(t, 1, stats[1].Error)
}

func TestAsyncAttemptLogger_KeepsNewest(t *testing.T) {
	db := newTestDB(t)
	l := NewAsyncAttemptLogger(db, quietLogger(), 3)

	for i := 1; i <= 5; i++ {
		l.Log(&models.AttemptLog{CreatedAt: time.Now(), Model: "m", Outcome: "ok", Attempt: i})
	}
	l.Close()

	var logs []models.AttemptLog
	require.NoError(t, db.Order("id").Find(&logs).Error)
	require.Len(t, logs, 3)
	assert.Equal(t, 3, logs[0].Attempt)
	assert.Equal(t, 5, logs[2].Attempt)
}

func TestAsyncAttemptLogger_LogAfterCloseIsDropped(t *testing.T) {
	db := newTestDB(t)
	l := NewAsyncAttemptLogger(db, quietLogger(), 10)
	l.Close()
	l.Close()

	assert.NotPanics(t, func() {
		l.Log(&models.AttemptLog{Model: "m", Outcome: "ok"})
	})

	var count int64
	require.NoError(t, db.Model(&models.AttemptLog{}).Count(&count).Error)
	assert.Zero(t, count)
}

package core

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"docqa/core/adapter"
	"docqa/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeCall struct {
	Credential string
	Model      string
	Prompt     adapter.Prompt
}

// fakeBackend 内存中的远程服务，generate 决定每次调用的结果
type fakeBackend struct {
	mu        sync.Mutex
	catalog   []adapter.CatalogEntry
	listErr   error
	listCalls int
	generate  func(credential, model string) adapter.Result
	calls     []fakeCall
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) ListModels(_ context.Context, _ string) ([]adapter.CatalogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.catalog, nil
}

func (f *fakeBackend) GenerateContent(_ context.Context, credential, model string, prompt adapter.Prompt) adapter.Result {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{Credential: credential, Model: model, Prompt: prompt})
	gen := f.generate
	f.mu.Unlock()
	if gen == nil {
		return adapter.OK("OK")
	}
	return gen(credential, model)
}

func (f *fakeBackend) Calls() []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fakeCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// sleepRecorder 记录模拟等待时间，不真正睡眠
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) Total() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total time.Duration
	for _, d := range s.delays {
		total += d
	}
	return total
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func mustRotator(t *testing.T, creds ...string) *Rotator {
	t.Helper()
	r, err := NewRotator(creds)
	require.NoError(t, err)
	return r
}

// memRecorder 内存中的调用记录器
type memRecorder struct {
	mu   sync.Mutex
	logs []*models.AttemptLog
}

func (m *memRecorder) Log(l *models.AttemptLog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, l)
}

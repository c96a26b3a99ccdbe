package core

import (
	"context"
	"net/http"
	"testing"
	"time"

	"docqa/core/adapter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInvoker(b adapter.Backend, cfg InvokerConfig, sleeper *sleepRecorder) *ResilientInvoker {
	return NewResilientInvoker(b, NewKeyStateManager(), cfg, quietLogger()).
		WithBackOff(NewBackOffPolicy("linear", time.Second)).
		WithSleep(sleeper.Sleep)
}

func testPrompt() adapter.Prompt {
	return adapter.Prompt{Instruction: "be helpful", Context: "doc text", Question: "what?"}
}

func quota(string, string) adapter.Result {
	return adapter.Failure(http.StatusTooManyRequests, "Resource has been exhausted")
}

func TestGenerate_RetryCeilingPerPair(t *testing.T) {
	b := &fakeBackend{generate: quota}
	sleeper := &sleepRecorder{}
	inv := newTestInvoker(b, InvokerConfig{Ceiling: 3}, sleeper)

	_, err := inv.Generate(context.Background(), Invocation{
		Rotator:    mustRotator(t, "keyA"),
		Candidates: []string{"m1"},
		Prompt:     testPrompt(),
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGeneration)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Len(t, b.Calls(), 3)
	// 线性退避：第 1、2 次失败后分别等待 1s、2s
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.delays)
	assert.Equal(t, 3*time.Second, sleeper.Total())
}

func TestGenerate_RetryCeilingAcrossPairs(t *testing.T) {
	b := &fakeBackend{generate: quota}
	sleeper := &sleepRecorder{}
	inv := newTestInvoker(b, InvokerConfig{Ceiling: 3, MaxCalls: 20}, sleeper)

	_, err := inv.Generate(context.Background(), Invocation{
		Rotator:    mustRotator(t, "keyA", "keyB"),
		Candidates: []string{"m1", "m2"},
		Prompt:     testPrompt(),
	})
	require.ErrorIs(t, err, ErrQuotaExceeded)

	perPair := map[[2]string]int{}
	for _, c := range b.Calls() {
		perPair[[2]string{c.Model, c.Credential}]++
	}
	assert.Len(t, perPair, 4)
	for pair, n := range perPair {
		assert.Equal(t, 3, n, "pair %v", pair)
	}
	assert.Equal(t, 4*3*time.Second, sleeper.Total())
}

func TestGenerate_NonTransientShortCircuits(t *testing.T) {
	b := &fakeBackend{generate: func(string, string) adapter.Result {
		return adapter.Failure(http.StatusBadRequest, "Request payload size exceeds the limit")
	}}
	sleeper := &sleepRecorder{}
	r := mustRotator(t, "keyA", "keyB")
	inv := newTestInvoker(b, InvokerConfig{}, sleeper)

	_, err := inv.Generate(context.Background(), Invocation{
		Rotator:    r,
		Candidates: []string{"m1", "m2"},
		Prompt:     testPrompt(),
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGeneration)
	assert.NotErrorIs(t, err, ErrQuotaExceeded)
	assert.Len(t, b.Calls(), 1)
	assert.Empty(t, sleeper.delays)
	assert.Equal(t, uint64(0), r.Cursor(), "no rotation")

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "Request payload size exceeds the limit", genErr.Message)
	assert.Equal(t, http.StatusBadRequest, genErr.Code)
}

func TestGenerate_RotatesOnceOnQuota(t *testing.T) {
	b := &fakeBackend{generate: func(credential, _ string) adapter.Result {
		if credential == "keyA" {
			return adapter.Failure(http.StatusTooManyRequests, "quota")
		}
		return adapter.OK("OK")
	}}
	r := mustRotator(t, "keyA", "keyB")
	inv := newTestInvoker(b, InvokerConfig{Ceiling: 3}, &sleepRecorder{})

	reply, err := inv.Generate(context.Background(), Invocation{
		Rotator:    r,
		Candidates: []string{"models/x-flash", "models/x-pro"},
		Prompt:     testPrompt(),
	})

	require.NoError(t, err)
	assert.Equal(t, "OK", reply.Text)
	assert.Equal(t, "models/x-flash", reply.Model)
	assert.Equal(t, 1, reply.Rotation)
	assert.Equal(t, uint64(1), r.Cursor(), "cursor advanced exactly once")
	assert.Len(t, b.Calls(), 4)
}

func TestGenerate_NotFoundFallsBackToNextCandidate(t *testing.T) {
	b := &fakeBackend{generate: func(_, model string) adapter.Result {
		if model == "models/stale" {
			return adapter.Failure(http.StatusNotFound, "models/stale is not found for API version v1beta")
		}
		return adapter.OK("answer from " + model)
	}}
	r := mustRotator(t, "keyA", "keyB")
	inv := newTestInvoker(b, InvokerConfig{}, &sleepRecorder{})

	var notFound []string
	reply, err := inv.Generate(context.Background(), Invocation{
		Rotator:    r,
		Candidates: []string{"models/stale", "gemini-1.5-flash"},
		Prompt:     testPrompt(),
		OnNotFound: func(m string) { notFound = append(notFound, m) },
	})

	require.NoError(t, err)
	assert.Equal(t, "answer from gemini-1.5-flash", reply.Text)
	assert.Equal(t, []string{"models/stale"}, notFound)
	assert.Equal(t, uint64(0), r.Cursor(), "not-found does not rotate credentials")
	assert.Len(t, b.Calls(), 2)
}

func TestGenerate_AllCandidatesNotFound(t *testing.T) {
	b := &fakeBackend{generate: func(string, string) adapter.Result {
		return adapter.Failure(http.StatusNotFound, "not found")
	}}
	inv := newTestInvoker(b, InvokerConfig{}, &sleepRecorder{})

	_, err := inv.Generate(context.Background(), Invocation{
		Rotator:    mustRotator(t, "keyA"),
		Candidates: []string{"a", "b", "c"},
		Prompt:     testPrompt(),
	})
	assert.ErrorIs(t, err, ErrModelNotFound)
	assert.Len(t, b.Calls(), 3)
}

func TestGenerate_RejectedCredentialIsSkipped(t *testing.T) {
	b := &fakeBackend{generate: func(credential, _ string) adapter.Result {
		if credential == "revoked" {
			return adapter.Failure(http.StatusForbidden, "API key not valid")
		}
		return adapter.OK("fine")
	}}
	r := mustRotator(t, "revoked", "good")
	inv := newTestInvoker(b, InvokerConfig{}, &sleepRecorder{})

	reply, err := inv.Generate(context.Background(), Invocation{Rotator: r, Candidates: []string{"m"}, Prompt: testPrompt()})
	require.NoError(t, err)
	assert.Equal(t, "fine", reply.Text)
	assert.True(t, inv.Keys().IsDead("revoked"))
	assert.Len(t, b.Calls(), 2, "no retry on a rejected credential")

	// 下一次查询直接跳过失效凭证
	r.Advance()
	_, err = inv.Generate(context.Background(), Invocation{Rotator: r, Candidates: []string{"m"}, Prompt: testPrompt()})
	require.NoError(t, err)
	calls := b.Calls()
	assert.Equal(t, "good", calls[len(calls)-1].Credential)
	assert.Len(t, calls, 3)
}

func TestGenerate_AllCredentialsRejected(t *testing.T) {
	b := &fakeBackend{generate: func(string, string) adapter.Result {
		return adapter.Failure(http.StatusForbidden, "permission denied")
	}}
	inv := newTestInvoker(b, InvokerConfig{}, &sleepRecorder{})

	_, err := inv.Generate(context.Background(), Invocation{
		Rotator:    mustRotator(t, "k1", "k2"),
		Candidates: []string{"m1", "m2"},
		Prompt:     testPrompt(),
	})
	assert.ErrorIs(t, err, ErrCredentialRejected)
	assert.Len(t, b.Calls(), 2)
}

func TestGenerate_TotalCallsCapped(t *testing.T) {
	b := &fakeBackend{generate: quota}
	inv := newTestInvoker(b, InvokerConfig{Ceiling: 3, MaxCalls: 20}, &sleepRecorder{})

	_, err := inv.Generate(context.Background(), Invocation{
		Rotator:    mustRotator(t, "k1", "k2", "k3"),
		Candidates: []string{"m1", "m2", "m3"},
		Prompt:     testPrompt(),
	})

	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Len(t, b.Calls(), 20)
}

func TestGenerate_CooldownSkipsExhaustedCredentialNextQuery(t *testing.T) {
	exhausted := true
	b := &fakeBackend{generate: func(credential, _ string) adapter.Result {
		if credential == "keyA" && exhausted {
			return adapter.Failure(http.StatusTooManyRequests, "quota")
		}
		return adapter.OK("ok " + credential)
	}}
	r := mustRotator(t, "keyA", "keyB")
	inv := newTestInvoker(b, InvokerConfig{Ceiling: 1, Cooldown: time.Hour}, &sleepRecorder{})

	_, err := inv.Generate(context.Background(), Invocation{Rotator: r, Candidates: []string{"m"}, Prompt: testPrompt()})
	require.NoError(t, err)
	assert.Equal(t, KeyStatusCooldown, inv.Keys().Status("keyA"))

	// 游标被手动拨回 keyA：冷却中的凭证在查询开始时被跳过
	r.Advance()
	require.Equal(t, "keyA", r.Current())
	reply, err := inv.Generate(context.Background(), Invocation{Rotator: r, Candidates: []string{"m"}, Prompt: testPrompt()})
	require.NoError(t, err)
	assert.Equal(t, "ok keyB", reply.Text)
	assert.Len(t, b.Calls(), 3)
}

func TestGenerate_ZeroCooldownWrapsAround(t *testing.T) {
	calls := 0
	b := &fakeBackend{generate: func(string, string) adapter.Result {
		calls++
		if calls <= 2 {
			return adapter.Failure(http.StatusTooManyRequests, "quota")
		}
		return adapter.OK("recovered")
	}}
	r := mustRotator(t, "keyA", "keyB")
	inv := newTestInvoker(b, InvokerConfig{Ceiling: 1}, &sleepRecorder{})

	reply, err := inv.Generate(context.Background(), Invocation{Rotator: r, Candidates: []string{"m1", "m2"}, Prompt: testPrompt()})
	require.NoError(t, err)
	assert.Equal(t, "recovered", reply.Text)

	got := b.Calls()
	require.Len(t, got, 3)
	assert.Equal(t, "keyA", got[2].Credential, "exhausted credential is offered again after a full cycle")
	assert.Equal(t, "m2", got[2].Model)
}

func TestGenerate_ContextCancelledDuringBackoff(t *testing.T) {
	b := &fakeBackend{generate: quota}
	inv := NewResilientInvoker(b, nil, InvokerConfig{Ceiling: 3}, quietLogger()).
		WithBackOff(NewBackOffPolicy("linear", time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := inv.Generate(ctx, Invocation{Rotator: mustRotator(t, "k"), Candidates: []string{"m"}, Prompt: testPrompt()})
	assert.ErrorIs(t, err, ErrGeneration)
	assert.Less(t, time.Since(start), time.Minute)
	assert.Len(t, b.Calls(), 1)
}

func TestGenerate_SharedRotatorAdvancesOnceForConcurrentSessions(t *testing.T) {
	r := mustRotator(t, "keyA", "keyB", "keyC")
	seen := r.Cursor()
	inv := newTestInvoker(&fakeBackend{}, InvokerConfig{}, &sleepRecorder{})

	cur1 := &invokeCursor{tried: map[string]bool{}}
	cur2 := &invokeCursor{tried: map[string]bool{}}
	inv.rotate(r, seen, cur1, "quota")
	inv.rotate(r, seen, cur2, "quota")

	assert.Equal(t, "keyB", r.Current())
	assert.Equal(t, 1, cur1.rotations+cur2.rotations)
}

func TestGenerate_RecordsAttempts(t *testing.T) {
	rec := &memRecorder{}
	b := &fakeBackend{generate: func(credential, _ string) adapter.Result {
		if credential == "AIzaFirstCredential" {
			return adapter.Failure(http.StatusTooManyRequests, "quota")
		}
		return adapter.OK("ok")
	}}
	inv := newTestInvoker(b, InvokerConfig{Ceiling: 1}, &sleepRecorder{}).WithRecorder(rec).WithMetrics(NewMetrics())

	_, err := inv.Generate(context.Background(), Invocation{
		SessionID:  "s1",
		Rotator:    mustRotator(t, "AIzaFirstCredential", "AIzaSecondCredential"),
		Candidates: []string{"models/m"},
		Prompt:     testPrompt(),
	})
	require.NoError(t, err)

	require.Len(t, rec.logs, 2)
	assert.Equal(t, "quota", rec.logs[0].Outcome)
	assert.Equal(t, http.StatusTooManyRequests, rec.logs[0].StatusCode)
	assert.Equal(t, "AIz***tial", rec.logs[0].Credential)
	assert.Equal(t, "ok", rec.logs[1].Outcome)
	assert.Equal(t, "s1", rec.logs[1].SessionID)
}

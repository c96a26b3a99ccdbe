package core

import (
	"context"
	"fmt"
	"time"

	"docqa/core/adapter"
	"docqa/core/utils"
	"docqa/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const (
	DefaultRetryCeiling = 3
	DefaultMaxCalls     = 20
	DefaultBaseDelay    = time.Second
)

// InvokerConfig 重试与回退预算
type InvokerConfig struct {
	Ceiling        int           // 每个 (模型, 凭证) 组合在配额错误上的最大尝试次数
	MaxCalls       int           // 单次查询的远程调用总上限
	Cooldown       time.Duration // 配额耗尽后的凭证冷却时间，0 表示直接环绕复用
	RequestTimeout time.Duration // 单次远程调用超时，0 表示只受上层 Context 控制
}

// Invocation 一次逻辑查询的输入
type Invocation struct {
	SessionID  string
	Rotator    *Rotator
	Candidates []string
	Prompt     adapter.Prompt

	// OnNotFound 模型返回 404 时回调，用于让缓存的解析结果失效
	OnNotFound func(model string)
}

// Reply 成功结果
type Reply struct {
	Text     string
	Model    string
	Calls    int
	Rotation int
}

// ResilientInvoker 带重试、凭证轮换和模型回退的生成调用器
type ResilientInvoker struct {
	backend  adapter.Backend
	keys     *KeyStateManager
	newDelay func() backoff.BackOff
	sleep    SleepFunc
	recorder AttemptRecorder
	metrics  *Metrics
	logger   *logrus.Logger
	cfg      InvokerConfig
}

func NewResilientInvoker(backend adapter.Backend, keys *KeyStateManager, cfg InvokerConfig, logger *logrus.Logger) *ResilientInvoker {
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = DefaultRetryCeiling
	}
	if cfg.MaxCalls <= 0 {
		cfg.MaxCalls = DefaultMaxCalls
	}
	if keys == nil {
		keys = NewKeyStateManager()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ResilientInvoker{
		backend:  backend,
		keys:     keys,
		newDelay: NewBackOffPolicy("linear", DefaultBaseDelay),
		sleep:    ContextSleep,
		cfg:      cfg,
		logger:   logger,
	}
}

// WithBackOff 替换退避策略工厂
func (inv *ResilientInvoker) WithBackOff(policy func() backoff.BackOff) *ResilientInvoker {
	inv.newDelay = policy
	return inv
}

// WithSleep 替换等待函数（测试中记录模拟时间）
func (inv *ResilientInvoker) WithSleep(sleep SleepFunc) *ResilientInvoker {
	inv.sleep = sleep
	return inv
}

// WithRecorder 设置调用记录器
func (inv *ResilientInvoker) WithRecorder(recorder AttemptRecorder) *ResilientInvoker {
	inv.recorder = recorder
	return inv
}

// WithMetrics 设置指标
func (inv *ResilientInvoker) WithMetrics(metrics *Metrics) *ResilientInvoker {
	inv.metrics = metrics
	return inv
}

// Keys 凭证状态管理器
func (inv *ResilientInvoker) Keys() *KeyStateManager { return inv.keys }

// invokeCursor 单次查询的状态：当前候选模型、本模型下已放弃的凭证
type invokeCursor struct {
	modelIndex int
	tried      map[string]bool
	calls      int
	rotations  int
	last       adapter.Result
	lastModel  string
}

func (c *invokeCursor) nextModel() {
	c.modelIndex++
	c.tried = make(map[string]bool)
}

// Generate 执行状态机：
// 成功 -> DONE；429 -> 同组合重试至上限，然后轮换凭证，凭证用尽则换模型；
// 404 -> 换下一个候选模型；403 -> 凭证标记失效并轮换；其他 -> 立即失败
func (inv *ResilientInvoker) Generate(ctx context.Context, call Invocation) (*Reply, error) {
	if call.Rotator == nil {
		return nil, fmt.Errorf("%w: no rotator for session", ErrConfiguration)
	}
	if len(call.Candidates) == 0 {
		return nil, &GenerationError{Kind: ErrModelNotFound, Message: "no candidate models"}
	}

	cur := &invokeCursor{tried: make(map[string]bool)}

	for cur.modelIndex < len(call.Candidates) {
		model := call.Candidates[cur.modelIndex]

		pos, ok := inv.selectCredential(call.Rotator, cur.tried)
		if !ok {
			if inv.allDead(call.Rotator) {
				return nil, inv.fail(cur, ErrCredentialRejected, "all credentials rejected")
			}
			cur.nextModel()
			continue
		}
		credential := call.Rotator.At(pos)

		outcome, reply, err := inv.attemptPair(ctx, call, cur, model, credential)
		if reply != nil || err != nil {
			return reply, err
		}

		switch outcome {
		case adapter.OutcomeQuota:
			inv.keys.MarkCooldown(credential, inv.cfg.Cooldown)
			cur.tried[credential] = true
			inv.rotate(call.Rotator, pos, cur, "quota")
			if !inv.hasUntried(call.Rotator, cur.tried) {
				inv.logger.Warnf("⏭️ All credentials exhausted for [%s], switching model", utils.ShortModelName(model))
				cur.nextModel()
			}
		case adapter.OutcomeRejected:
			inv.keys.MarkDead(credential)
			cur.tried[credential] = true
			inv.rotate(call.Rotator, pos, cur, "rejected")
		case adapter.OutcomeNotFound:
			if call.OnNotFound != nil {
				call.OnNotFound(model)
			}
			inv.logger.Warnf("⏭️ Model [%s] not found, trying next candidate", utils.ShortModelName(model))
			cur.nextModel()
		}
	}

	return nil, inv.fail(cur, kindFor(cur.last.Outcome), "all candidate models exhausted")
}

// attemptPair 在同一个 (模型, 凭证) 组合上重试配额错误
// 返回需要上层处理的 Outcome；成功或致命错误时直接返回结果
func (inv *ResilientInvoker) attemptPair(ctx context.Context, call Invocation, cur *invokeCursor, model, credential string) (adapter.Outcome, *Reply, error) {
	delay := inv.newDelay()
	delay.Reset()

	for attempt := 1; ; attempt++ {
		if cur.calls >= inv.cfg.MaxCalls {
			inv.logger.Errorf("💀 Failed: call budget of %d exhausted", inv.cfg.MaxCalls)
			return 0, nil, inv.fail(cur, kindFor(cur.last.Outcome), fmt.Sprintf("gave up after %d calls", cur.calls))
		}
		if err := ctx.Err(); err != nil {
			return 0, nil, inv.fail(cur, ErrGeneration, err.Error())
		}

		cur.calls++
		inv.logger.Infof("🎯 Attempt %d/%d: Using [%s] (Key: %s) call %d/%d",
			attempt, inv.cfg.Ceiling, utils.ShortModelName(model), utils.MaskKey(credential), cur.calls, inv.cfg.MaxCalls)

		start := time.Now()
		res := inv.call(ctx, credential, model, call.Prompt)
		elapsed := time.Since(start)

		cur.last = res
		cur.lastModel = model
		inv.metrics.attempt(utils.ShortModelName(model), res.Outcome.String())
		inv.record(call.SessionID, model, credential, attempt, res, elapsed)

		switch res.Outcome {
		case adapter.OutcomeOK:
			inv.logger.Infof("✅ Success: [%s] | Latency: %dms", utils.ShortModelName(model), elapsed.Milliseconds())
			return res.Outcome, &Reply{Text: res.Text, Model: model, Calls: cur.calls, Rotation: cur.rotations}, nil

		case adapter.OutcomeQuota:
			if attempt >= inv.cfg.Ceiling {
				inv.logger.Warnf("⚠️ Attempt %d Failed: %d quota exceeded - rotating credential", attempt, res.Code)
				return res.Outcome, nil, nil
			}
			wait := delay.NextBackOff()
			if wait == backoff.Stop {
				return res.Outcome, nil, nil
			}
			inv.logger.Warnf("⚠️ Attempt %d Failed: %d quota exceeded - retrying in %s", attempt, res.Code, wait)
			if err := inv.sleep(ctx, wait); err != nil {
				return 0, nil, inv.fail(cur, ErrQuotaExceeded, err.Error())
			}

		case adapter.OutcomeRejected:
			inv.logger.Warnf("⚠️ Attempt %d Failed: %d credential rejected - rotating", attempt, res.Code)
			return res.Outcome, nil, nil

		case adapter.OutcomeNotFound:
			return res.Outcome, nil, nil

		default:
			inv.logger.Errorf("❌ Attempt %d Failed: %d %s (non-transient)", attempt, res.Code, res.Message)
			return res.Outcome, nil, inv.fail(cur, ErrGeneration, res.Message)
		}
	}
}

func (inv *ResilientInvoker) call(ctx context.Context, credential, model string, prompt adapter.Prompt) adapter.Result {
	if inv.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.cfg.RequestTimeout)
		defer cancel()
	}
	return inv.backend.GenerateContent(ctx, credential, model, prompt)
}

// selectCredential 从游标处找一个可用凭证：优先非冷却，其次任何未失效的
func (inv *ResilientInvoker) selectCredential(r *Rotator, tried map[string]bool) (uint64, bool) {
	pos, ok := r.Seek(func(c string) bool {
		return !tried[c] && inv.keys.IsAvailable(c)
	})
	if ok {
		return pos, true
	}
	// 所有凭证都在冷却：环绕复用，赌配额窗口已重置
	return r.Seek(func(c string) bool {
		return !tried[c] && !inv.keys.IsDead(c)
	})
}

func (inv *ResilientInvoker) hasUntried(r *Rotator, tried map[string]bool) bool {
	for i := 0; i < r.Len(); i++ {
		c := r.At(uint64(i))
		if !tried[c] && !inv.keys.IsDead(c) {
			return true
		}
	}
	return false
}

func (inv *ResilientInvoker) allDead(r *Rotator) bool {
	for i := 0; i < r.Len(); i++ {
		if !inv.keys.IsDead(r.At(uint64(i))) {
			return false
		}
	}
	return true
}

func (inv *ResilientInvoker) rotate(r *Rotator, seen uint64, cur *invokeCursor, reason string) {
	if r.AdvanceFrom(seen) {
		cur.rotations++
		inv.metrics.rotation()
		inv.logger.Infof("🔄 Rotated credential (%s): %s -> %s", reason, utils.MaskKey(r.At(seen)), utils.MaskKey(r.Current()))
	}
}

func (inv *ResilientInvoker) fail(cur *invokeCursor, kind error, message string) error {
	if cur.last.Message != "" && kind != ErrGeneration {
		message = fmt.Sprintf("%s (last error: %s)", message, cur.last.Message)
	} else if cur.last.Message != "" && message == "" {
		message = cur.last.Message
	}
	return &GenerationError{
		Kind:     kind,
		Model:    cur.lastModel,
		Attempts: cur.calls,
		Code:     cur.last.Code,
		Message:  message,
	}
}

func (inv *ResilientInvoker) record(sessionID, model, credential string, attempt int, res adapter.Result, elapsed time.Duration) {
	if inv.recorder == nil {
		return
	}
	msg := res.Message
	if len(msg) > 500 {
		msg = msg[:500]
	}
	inv.recorder.Log(&models.AttemptLog{
		CreatedAt:  time.Now(),
		SessionID:  sessionID,
		Model:      model,
		Credential: utils.MaskKey(credential),
		Attempt:    attempt,
		Outcome:    res.Outcome.String(),
		StatusCode: res.Code,
		Duration:   elapsed.Milliseconds(),
		ErrorMsg:   msg,
	})
}

package core

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// LinearBackOff 线性退避：第 n 次等待 base × n
type LinearBackOff struct {
	Base time.Duration
	Max  time.Duration // 0 表示不封顶

	attempt int64
}

func (b *LinearBackOff) NextBackOff() time.Duration {
	b.attempt++
	d := b.Base * time.Duration(b.attempt)
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

func (b *LinearBackOff) Reset() { b.attempt = 0 }

// NewBackOffPolicy 根据名称创建退避策略工厂，每个 (模型, 凭证) 组合使用一个新实例
func NewBackOffPolicy(name string, base time.Duration) func() backoff.BackOff {
	switch name {
	case "exponential":
		return func() backoff.BackOff {
			expo := backoff.NewExponentialBackOff()
			expo.InitialInterval = base
			expo.RandomizationFactor = 0
			expo.Multiplier = 2
			expo.MaxInterval = 30 * time.Second
			expo.MaxElapsedTime = 0 // 由调用次数上限控制，而不是总时长
			expo.Reset()
			return expo
		}
	case "none":
		return func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	default:
		return func() backoff.BackOff { return &LinearBackOff{Base: base} }
	}
}

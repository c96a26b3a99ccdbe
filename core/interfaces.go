package core

import (
	"context"
	"time"

	"docqa/core/adapter"
	"docqa/models"
)

// RankingStrategy 定义模型排序策略接口
// 输入模型目录快照和偏好列表，输出按优先级排好的候选模型
type RankingStrategy interface {
	// Name 返回策略名称，如 "preference"
	Name() string

	// Rank 执行排序逻辑，不返回错误；无匹配时返回空列表，由调用者降级到默认模型
	Rank(catalog []adapter.CatalogEntry, preferences []string) []string
}

// KeyManager 抽象凭证状态管理
type KeyManager interface {
	IsAvailable(key string) bool
	MarkCooldown(key string, duration time.Duration)
	MarkDead(key string)
}

// SecretProvider 抽象密钥加解密
// 用于读取配置时自动解密 API Key
type SecretProvider interface {
	Decrypt(ciphertext string) (string, error)
	Encrypt(plaintext string) (string, error)
}

// DocumentStore 单槽文档存储
type DocumentStore interface {
	HasDocument(ctx context.Context) (bool, error)
	ReadDocument(ctx context.Context) (*models.Document, error)
	WriteDocument(ctx context.Context, filename string, data []byte) (*models.Document, error)
}

// AttemptRecorder 记录每一次远程调用
type AttemptRecorder interface {
	Log(log *models.AttemptLog)
}

// SleepFunc 可注入的等待函数，测试中用于模拟退避时间
type SleepFunc func(ctx context.Context, d time.Duration) error

// ContextSleep 默认等待实现，支持 Context 取消
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

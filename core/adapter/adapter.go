package adapter

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Outcome 远程生成调用的结果分类
type Outcome int

const (
	OutcomeOK       Outcome = iota
	OutcomeQuota            // 429: 配额耗尽，可重试/轮换凭证
	OutcomeNotFound         // 404: 模型标识不存在，切换备用模型
	OutcomeRejected         // 401/403: 凭证无效或被停用
	OutcomeFatal            // 其他错误，不重试
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeQuota:
		return "quota"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeRejected:
		return "rejected"
	default:
		return "fatal"
	}
}

// Result 远程调用的带标签结果，调用方按 Outcome 分派，而不是解析错误字符串
type Result struct {
	Outcome Outcome
	Text    string
	Code    int    // 上游 HTTP 状态码，网络错误时为 0
	Message string // 上游错误信息
}

// OK 创建成功结果
func OK(text string) Result {
	return Result{Outcome: OutcomeOK, Text: text, Code: http.StatusOK}
}

// Failure 按状态码创建失败结果
func Failure(code int, message string) Result {
	return Result{Outcome: Classify(code), Code: code, Message: message}
}

// Err 将 Result 转换为 error（成功时为 nil）
func (r Result) Err() error {
	if r.Outcome == OutcomeOK {
		return nil
	}
	if r.Code == 0 {
		return fmt.Errorf("%s: %s", r.Outcome, r.Message)
	}
	return fmt.Errorf("%s (%d): %s", r.Outcome, r.Code, r.Message)
}

// Classify 将上游 HTTP 状态码映射为调用结果分类
func Classify(code int) Outcome {
	switch {
	case code >= 200 && code < 300:
		return OutcomeOK
	case code == http.StatusTooManyRequests:
		return OutcomeQuota
	case code == http.StatusNotFound:
		return OutcomeNotFound
	case code == http.StatusForbidden || code == http.StatusUnauthorized:
		return OutcomeRejected
	default:
		return OutcomeFatal
	}
}

// CatalogEntry 远程模型目录中的一项
type CatalogEntry struct {
	Name         string
	Capabilities []string
}

// CanGenerate 是否支持内容生成
func (e CatalogEntry) CanGenerate() bool {
	for _, c := range e.Capabilities {
		if c == "generateContent" {
			return true
		}
	}
	return false
}

// Prompt 一次生成请求的三段输入
type Prompt struct {
	Instruction string
	Context     string
	Question    string
}

// Messages 以纯文本标签拼接的消息序列（System/Context/User）
func (p Prompt) Messages() []string {
	return []string{
		"System: " + strings.TrimSpace(p.Instruction),
		"Context: " + p.Context,
		"User: " + strings.TrimSpace(p.Question),
	}
}

// Backend 远程生成式语言服务
type Backend interface {
	// Name 返回传输方式名称，如 "rest", "sdk"
	Name() string

	// ListModels 枚举模型目录（单次往返）
	ListModels(ctx context.Context, credential string) ([]CatalogEntry, error)

	// GenerateContent 生成回复，失败通过 Result.Outcome 表达
	GenerateContent(ctx context.Context, credential, model string, prompt Prompt) Result
}

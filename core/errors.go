package core

import (
	"errors"
	"fmt"

	"docqa/core/adapter"
)

var (
	ErrConfiguration      = errors.New("no usable credential configured")
	ErrDiscovery          = errors.New("model catalog discovery failed")
	ErrQuotaExceeded      = errors.New("quota exceeded")
	ErrModelNotFound      = errors.New("model not found")
	ErrCredentialRejected = errors.New("credential rejected")
	ErrGeneration         = errors.New("generation failed")
	ErrEmptyContext       = errors.New("document has no extractable text")
	ErrNoDocument         = errors.New("no reference document uploaded")
	ErrSessionNotFound    = errors.New("session not found")
)

// GenerationError 重试/回退预算耗尽后的最终失败
type GenerationError struct {
	Kind     error // ErrQuotaExceeded, ErrModelNotFound, ErrCredentialRejected 或 ErrGeneration
	Model    string
	Attempts int
	Code     int
	Message  string
}

func (e *GenerationError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%v: model %s after %d attempt(s): %d %s", e.Kind, e.Model, e.Attempts, e.Code, e.Message)
	}
	return fmt.Sprintf("%v: model %s after %d attempt(s): %s", e.Kind, e.Model, e.Attempts, e.Message)
}

// Is 让 errors.Is(err, ErrGeneration) 对所有生成失败都成立
func (e *GenerationError) Is(target error) bool {
	return target == ErrGeneration
}

func (e *GenerationError) Unwrap() error {
	return e.Kind
}

// kindFor 将调用结果分类映射为错误类别
func kindFor(outcome adapter.Outcome) error {
	switch outcome {
	case adapter.OutcomeQuota:
		return ErrQuotaExceeded
	case adapter.OutcomeNotFound:
		return ErrModelNotFound
	case adapter.OutcomeRejected:
		return ErrCredentialRejected
	default:
		return ErrGeneration
	}
}

// UserMessage 将任意失败转换为面向用户的状态提示
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var genErr *GenerationError
	switch {
	case errors.Is(err, ErrNoDocument):
		return "No reference document has been uploaded yet. Please ask an administrator to upload one."
	case errors.Is(err, ErrEmptyContext):
		return "The reference document contains no readable text. Please ask an administrator to upload a text-based document."
	case errors.Is(err, ErrConfiguration):
		return "The assistant is not configured yet (no API credential). Please contact the administrator."
	case errors.Is(err, ErrQuotaExceeded):
		return "The system is busy right now (usage limit reached). Please retry shortly."
	case errors.Is(err, ErrModelNotFound):
		return "No language model is currently available. Please try again later."
	case errors.Is(err, ErrCredentialRejected):
		return "The assistant's API credentials were rejected. Please contact the administrator."
	case errors.As(err, &genErr) && genErr.Message != "":
		return "An error occurred: " + genErr.Message
	default:
		return "An error occurred: " + err.Error()
	}
}

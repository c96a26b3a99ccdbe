package models

import (
	"time"
)

// Role 对话角色
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn 对话中的一轮（角色 + 文本）
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Failed    bool      `json:"failed,omitempty"` // 助手回复为状态/错误提示
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AskRequest 用户提问请求
type AskRequest struct {
	Question string `json:"question" binding:"required"`
}

// AskResponse 提问响应
type AskResponse struct {
	Reply  string `json:"reply"`
	Failed bool   `json:"failed"`
	Model  string `json:"model,omitempty"`
}

// SessionResponse 创建会话响应
type SessionResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// TranscriptResponse 会话记录
type TranscriptResponse struct {
	SessionID string `json:"session_id"`
	Turns     []Turn `json:"turns"`
}

// StatusResponse 系统状态（模型、文档、凭证）
type StatusResponse struct {
	Model         string `json:"model"`
	DocumentReady bool   `json:"document_ready"`
	Credentials   int    `json:"credentials"`
	Available     int    `json:"available_credentials"`
	Transport     string `json:"transport"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Sessions  int    `json:"sessions"`
	Timestamp int64  `json:"timestamp"`
}

// AttemptsResponse 管理员查看的调用记录和统计
type AttemptsResponse struct {
	Attempts []AttemptLog `json:"attempts"`
	Stats    []ModelStats `json:"stats"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail 错误详情
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// APIResponse 通用API响应
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(message string, data interface{}) *APIResponse {
	return &APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(message string) *APIResponse {
	return &APIResponse{
		Success:   false,
		Message:   message,
		Timestamp: time.Now().Unix(),
	}
}

// NewErrorDetail 创建 OpenAI 风格的错误响应
func NewErrorDetail(message, errType string) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Message: message, Type: errType}}
}

package models

import (
	"time"

	"gorm.io/gorm"
)

// DocumentSlotID 单槽文档存储使用的固定主键
const DocumentSlotID uint = 1

// Document 管理员上传的参考文档（只保留一份，写入即覆盖）
type Document struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Filename  string    `json:"filename"`
	MimeType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	SHA256    string    `gorm:"column:sha256" json:"sha256"`
	Content   []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AttemptLog 单次远程生成调用的记录（不保存问题和回答文本）
type AttemptLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	SessionID  string    `gorm:"index" json:"session_id"`
	Model      string    `gorm:"index" json:"model"`
	Credential string    `json:"credential"` // 已脱敏
	Attempt    int       `json:"attempt"`
	Outcome    string    `json:"outcome"`
	StatusCode int       `json:"status_code"`
	Duration   int64     `json:"duration"` // 毫秒
	ErrorMsg   string    `json:"error_msg,omitempty"`
}

// ModelStats 按模型标识聚合的统计信息
type ModelStats struct {
	gorm.Model
	ModelName     string  `gorm:"uniqueIndex;not null" json:"model_name"`
	Success       int     `gorm:"default:0" json:"success"`
	Error         int     `gorm:"default:0" json:"error"`
	QuotaErrors   int     `gorm:"default:0" json:"quota_errors"`
	TotalLatency  float64 `gorm:"default:0" json:"total_latency"` // 毫秒
	TotalRequests int64   `gorm:"default:0" json:"total_requests"`
}

// AvgLatency 平均延迟（毫秒）
func (s ModelStats) AvgLatency() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return s.TotalLatency / float64(s.TotalRequests)
}

// AutoMigrate 自动迁移数据库结构
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Document{},
		&AttemptLog{},
		&ModelStats{},
	)
}

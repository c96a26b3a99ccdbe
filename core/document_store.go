package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"docqa/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLDocumentStore 基于 GORM 的单槽文档存储，写入总是覆盖旧文档
type SQLDocumentStore struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewSQLDocumentStore(db *gorm.DB, logger *logrus.Logger) *SQLDocumentStore {
	return &SQLDocumentStore{db: db, logger: logger}
}

func (s *SQLDocumentStore) HasDocument(ctx context.Context) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Document{}).Where("id = ?", models.DocumentSlotID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check document: %w", err)
	}
	return count > 0, nil
}

func (s *SQLDocumentStore) ReadDocument(ctx context.Context) (*models.Document, error) {
	var doc models.Document
	err := s.db.WithContext(ctx).First(&doc, models.DocumentSlotID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoDocument
	}
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return &doc, nil
}

// WriteDocument 校验类型后覆盖写入
func (s *SQLDocumentStore) WriteDocument(ctx context.Context, filename string, data []byte) (*models.Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrUnsupportedDocument)
	}
	mimeType, err := DetectDocumentType(data)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	doc := &models.Document{
		ID:       models.DocumentSlotID,
		Filename: filename,
		MimeType: mimeType,
		Size:     int64(len(data)),
		SHA256:   hex.EncodeToString(sum[:]),
		Content:  data,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"filename", "mime_type", "size", "sha256", "content", "updated_at"}),
	}).Create(doc).Error
	if err != nil {
		return nil, fmt.Errorf("write document: %w", err)
	}

	if s.logger != nil {
		s.logger.Infof("📄 Document replaced: %s (%s, %d bytes)", filename, mimeType, len(data))
	}
	return doc, nil
}

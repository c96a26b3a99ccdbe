package core

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"docqa/core/utils"
	"docqa/models"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxContextChars  = 40000
	DefaultTruncationMarker = "\n\n[... document truncated ...]"

	MimePDF  = "application/pdf"
	MimeText = "text/plain"
)

var ErrUnsupportedDocument = errors.New("unsupported document type (expected PDF or plain text)")

// ContextConfig 上下文长度限制
type ContextConfig struct {
	MaxChars int
	MinChars int
	Marker   string
}

// ContextProvider 从文档中提取并准备发送给模型的上下文文本
// 提取结果按文档 SHA-256 缓存，只保留最新文档
type ContextProvider struct {
	cfg    ContextConfig
	logger *logrus.Logger

	mu        sync.Mutex
	cachedSHA string
	cached    string
}

func NewContextProvider(cfg ContextConfig, logger *logrus.Logger) *ContextProvider {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxContextChars
	}
	if cfg.MinChars <= 0 {
		cfg.MinChars = 1
	}
	if cfg.Marker == "" {
		cfg.Marker = DefaultTruncationMarker
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ContextProvider{cfg: cfg, logger: logger}
}

// Prepare 提取文本并截断；文本为空或过短时返回 ErrEmptyContext
func (p *ContextProvider) Prepare(doc *models.Document) (string, error) {
	text := p.extract(doc)

	if n := utf8.RuneCountInString(strings.TrimSpace(text)); n < p.cfg.MinChars {
		return "", fmt.Errorf("%w: %d characters extracted from %s", ErrEmptyContext, n, doc.Filename)
	}

	out, cut := TruncateContext(text, p.cfg.MaxChars, p.cfg.Marker)
	if cut {
		p.logger.Infof("✂️ Context truncated to %d characters (document %s)", p.cfg.MaxChars, doc.Filename)
	}
	return out, nil
}

func (p *ContextProvider) extract(doc *models.Document) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if doc.SHA256 != "" && doc.SHA256 == p.cachedSHA {
		return p.cached
	}
	text := ExtractText(doc.Content, doc.MimeType)
	p.cachedSHA = doc.SHA256
	p.cached = text
	return text
}

// TruncateContext 超过上限时截取前缀并追加可见标记
func TruncateContext(text string, maxChars int, marker string) (string, bool) {
	prefix, cut := utils.TruncateRunes(text, maxChars)
	if !cut {
		return text, false
	}
	return prefix + marker, true
}

// DetectDocumentType 识别上传文件类型，只接受 PDF 和纯文本
func DetectDocumentType(data []byte) (string, error) {
	mt := mimetype.Detect(data)
	if mt.Is(MimePDF) {
		return MimePDF, nil
	}
	for m := mt; m != nil; m = m.Parent() {
		if m.Is(MimeText) {
			return MimeText, nil
		}
	}
	return "", fmt.Errorf("%w: got %s", ErrUnsupportedDocument, mt.String())
}

// ExtractText 尽力提取文本，失败时返回空字符串，从不返回错误
func ExtractText(data []byte, mimeType string) string {
	if len(data) == 0 {
		return ""
	}
	if mimeType == "" {
		mimeType, _ = DetectDocumentType(data)
	}
	switch mimeType {
	case MimePDF:
		return extractPDFText(data)
	case MimeText:
		if !utf8.Valid(data) {
			return strings.ToValidUTF8(string(data), "")
		}
		return string(data)
	default:
		return ""
	}
}

// extractPDFText 逐页拼接纯文本；解析库在损坏文件上可能 panic，这里统一兜底
func extractPDFText(data []byte) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ""
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return ""
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return ""
	}
	return buf.String()
}

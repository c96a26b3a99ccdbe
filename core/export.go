package core

import (
	"bytes"
	"fmt"
	stdhtml "html"
	"io"
	"strings"

	"docqa/models"

	"github.com/jung-kurt/gofpdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// TranscriptRenderer 将对话记录渲染为 HTML 或 PDF
type TranscriptRenderer struct {
	md       goldmark.Markdown
	fontPath string // 可选 UTF-8 TTF 字体；为空时使用内置字体（仅 Latin-1）
}

func NewTranscriptRenderer(fontPath string) *TranscriptRenderer {
	return &TranscriptRenderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
		fontPath: fontPath,
	}
}

// RenderMarkdown 助手回复是 Markdown，转换为 HTML；原始 HTML 不会透传
func (r *TranscriptRenderer) RenderMarkdown(text string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// RenderHTML 返回带 HTML 字段的对话副本；用户提问只做转义
func (r *TranscriptRenderer) RenderHTML(turns []models.Turn) ([]models.Turn, error) {
	out := make([]models.Turn, len(turns))
	for i, t := range turns {
		out[i] = t
		if t.Role == models.RoleAssistant && !t.Failed {
			rendered, err := r.RenderMarkdown(t.Text)
			if err != nil {
				return nil, err
			}
			out[i].Text = rendered
			continue
		}
		out[i].Text = "<p>" + stdhtml.EscapeString(t.Text) + "</p>"
	}
	return out, nil
}

// WritePDF 导出对话记录为 PDF
func (r *TranscriptRenderer) WritePDF(w io.Writer, title string, turns []models.Turn) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetAutoPageBreak(true, 15)

	family := "Helvetica"
	translate := func(s string) string { return s }
	if r.fontPath != "" {
		pdf.AddUTF8Font("transcript", "", r.fontPath)
		pdf.AddUTF8Font("transcript", "B", r.fontPath)
		family = "transcript"
	} else {
		translate = pdf.UnicodeTranslatorFromDescriptor("")
	}

	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont(family, "", 8)
		pdf.CellFormat(0, 8, fmt.Sprintf("%d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont(family, "B", 14)
	pdf.MultiCell(0, 8, translate(title), "", "L", false)
	pdf.Ln(4)

	for _, t := range turns {
		label := "User"
		if t.Role == models.RoleAssistant {
			label = "Assistant"
			if t.Model != "" {
				label += " (" + t.Model + ")"
			}
		}
		pdf.SetFont(family, "B", 10)
		pdf.SetTextColor(0, 51, 153)
		pdf.MultiCell(0, 6, translate(label+" - "+t.CreatedAt.Format("2006-01-02 15:04:05")), "", "L", false)

		pdf.SetFont(family, "", 10)
		if t.Failed {
			pdf.SetTextColor(170, 0, 0)
		} else {
			pdf.SetTextColor(0, 0, 0)
		}
		pdf.MultiCell(0, 5, translate(strings.TrimSpace(t.Text)), "", "L", false)
		pdf.Ln(3)
	}

	if pdf.Err() {
		return fmt.Errorf("build pdf: %w", pdf.Error())
	}
	return pdf.Output(w)
}

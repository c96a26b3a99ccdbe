package core

import (
	"bytes"
	"testing"
	"time"

	"docqa/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTurns() []models.Turn {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return []models.Turn{
		{Role: models.RoleUser, Text: "What is <b>the</b> policy?", CreatedAt: at},
		{Role: models.RoleAssistant, Text: "**Refunds** within 30 days.\n\n- keep the receipt", Model: "gemini-1.5-flash", CreatedAt: at},
		{Role: models.RoleUser, Text: "And after?", CreatedAt: at},
		{Role: models.RoleAssistant, Text: "The system is busy <retry>", Failed: true, CreatedAt: at},
	}
}

func TestRenderHTML(t *testing.T) {
	r := NewTranscriptRenderer("")
	out, err := r.RenderHTML(sampleTurns())
	require.NoError(t, err)
	require.Len(t, out, 4)

	assert.Equal(t, "<p>What is &lt;b&gt;the&lt;/b&gt; policy?</p>", out[0].Text)
	assert.Contains(t, out[1].Text, "<strong>Refunds</strong>")
	assert.Contains(t, out[1].Text, "<li>keep the receipt</li>")
	assert.Equal(t, "<p>The system is busy &lt;retry&gt;</p>", out[3].Text, "failure notices are not rendered as markdown")
	assert.Equal(t, "gemini-1.5-flash", out[1].Model)
}

func TestRenderMarkdown_DropsRawHTML(t *testing.T) {
	out, err := NewTranscriptRenderer("").RenderMarkdown("hello <script>alert(1)</script>")
	require.NoError(t, err)
	assert.NotContains(t, out, "<script>")
}

func TestWritePDF(t *testing.T) {
	var buf bytes.Buffer
	err := NewTranscriptRenderer("").WritePDF(&buf, "Transcript", sampleTurns())
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	mime, err := DetectDocumentType(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, MimePDF, mime)
}

func TestWritePDF_MissingFontFails(t *testing.T) {
	var buf bytes.Buffer
	err := NewTranscriptRenderer("/nonexistent/font.ttf").WritePDF(&buf, "Transcript", sampleTurns())
	assert.Error(t, err)
}

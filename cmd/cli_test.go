package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"docqa/core/adapter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunChat(t *testing.T) {
	b := &stubBackend{
		catalog: []adapter.CatalogEntry{{Name: "models/gemini-1.5-flash"}},
		result:  adapter.OK("Nine am."),
	}
	a, _ := newTestApp(t, b)
	_, err := a.store.WriteDocument(context.Background(), "hours.txt", []byte("We open at 9am."))
	require.NoError(t, err)

	in := strings.NewReader("When do you open?\n\n/status\n/reset\n/quit\n")
	var out bytes.Buffer
	require.NoError(t, runChat(context.Background(), a, in, &out))

	text := out.String()
	assert.Contains(t, text, "[gemini-1.5-flash] Nine am.")
	assert.Contains(t, text, "model: gemini-1.5-flash | document ready: true | credentials: 2 (2 available)")
	assert.Contains(t, text, "Session reset.")
	assert.Zero(t, a.sessions.Count(), "sessions are ended on exit")
}

func TestRunChat_FailureNotice(t *testing.T) {
	a, _ := newTestApp(t, &stubBackend{})

	var out bytes.Buffer
	require.NoError(t, runChat(context.Background(), a, strings.NewReader("hello\n"), &out))
	assert.Contains(t, out.String(), "! No reference document")
}

func TestPrintRanking(t *testing.T) {
	b := &stubBackend{catalog: []adapter.CatalogEntry{
		{Name: "models/gemini-1.5-pro"},
		{Name: "models/gemini-1.5-flash"},
	}}
	a, _ := newTestApp(t, b)

	var out bytes.Buffer
	require.NoError(t, printRanking(context.Background(), a, &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, "*  1. gemini-1.5-flash", lines[0])
	assert.Contains(t, out.String(), "gemini-1.5-pro")
}

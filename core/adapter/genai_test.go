package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenAIAdapter_GenerateContent(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"plan","thought":true},{"text":"answer"}]}}]}`)
	}))
	defer ts.Close()

	a := NewGenAIAdapter(ts.URL, "v1beta", ts.Client())
	res := a.GenerateContent(context.Background(), "k", "gemini-1.5-flash", testPrompt())

	require.Equal(t, OutcomeOK, res.Outcome, res.Message)
	assert.Equal(t, "answer", res.Text)
	assert.True(t, strings.HasSuffix(gotPath, ":generateContent"), gotPath)
	assert.Equal(t, "sdk", a.Name())
}

func TestGenAIAdapter_ReusesClientPerCredential(t *testing.T) {
	a := NewGenAIAdapter("http://127.0.0.1:0", "", nil)

	c1, err := a.client(context.Background(), "k1")
	require.NoError(t, err)
	c2, err := a.client(context.Background(), "k1")
	require.NoError(t, err)
	c3, err := a.client(context.Background(), "k2")
	require.NoError(t, err)

	assert.Same(t, c1, c2)
	assert.NotSame(t, c1, c3)
}

func TestSDKFailure_PlainError(t *testing.T) {
	res := sdkFailure(errors.New("dial tcp: refused"))
	assert.Equal(t, OutcomeFatal, res.Outcome)
	assert.Zero(t, res.Code)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "rest", cfg.Transport)
	assert.Equal(t, "v1beta", cfg.APIVersion)
	assert.Equal(t, []string{"gemini-1.5-flash", "gemini-2.0-flash", "gemini-1.5-pro"}, cfg.Models.Preferences)
	assert.Equal(t, "gemini-1.5-flash", cfg.Models.Default)
	assert.Equal(t, 3, cfg.Retry.Ceiling)
	assert.Equal(t, 20, cfg.Retry.MaxCalls)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 40000, cfg.Context.MaxChars)
	assert.Equal(t, "session", cfg.CredentialsPolicy.Scope)
	assert.Nil(t, cfg.Models.ExcludePattern())
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docqa.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
credentials: [fileKeyA, fileKeyB]
transport: sdk
models:
  preferences: [flash, pro]
  exclude: "-exp$"
retry:
  ceiling: 5
  base_delay: 250ms
credentials_policy:
  cooldown: 1m
  scope: shared
`), 0644))

	t.Setenv("DOCQA_API_KEYS", "envKeyA, envKeyB ,")
	t.Setenv("DOCQA_RETRY_MAX_CALLS", "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"envKeyA", "envKeyB"}, cfg.Credentials)
	assert.Equal(t, "sdk", cfg.Transport)
	assert.Equal(t, []string{"flash", "pro"}, cfg.Models.Preferences)
	assert.Equal(t, 5, cfg.Retry.Ceiling)
	assert.Equal(t, 7, cfg.Retry.MaxCalls)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, time.Minute, cfg.CredentialsPolicy.Cooldown)
	assert.Equal(t, "shared", cfg.CredentialsPolicy.Scope)

	require.NotNil(t, cfg.Models.ExcludePattern())
	assert.True(t, cfg.Models.ExcludePattern().MatchString("models/gemini-2.0-pro-exp"))
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"transport": "transport: grpc\n",
		"backoff":   "retry:\n  backoff: random\n",
		"scope":     "credentials_policy:\n  scope: global\n",
		"ceiling":   "retry:\n  ceiling: 0\n",
		"exclude":   "models:\n  exclude: \"([\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

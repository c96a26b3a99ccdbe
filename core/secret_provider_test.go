package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reverseProvider 测试用的可逆"加密"
type reverseProvider struct{}

func (reverseProvider) Encrypt(s string) (string, error) { return reverse(s), nil }
func (reverseProvider) Decrypt(s string) (string, error) { return reverse(s), nil }

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

func TestRevealCredentials(t *testing.T) {
	creds, err := RevealCredentials(reverseProvider{}, []string{" plain ", "", EncryptedPrefix + "cba"})
	require.NoError(t, err)
	assert.Equal(t, []string{"plain", "abc"}, creds)
}

func TestRevealCredentials_EncryptedWithoutKey(t *testing.T) {
	_, err := RevealCredentials(NewNoOpSecretProvider(), []string{"enc:xyz"})
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.True(t, strings.Contains(err.Error(), "#1"))
}

func TestNoOpSecretProvider(t *testing.T) {
	sp := NewNoOpSecretProvider()
	ct, err := sp.Encrypt("k")
	require.NoError(t, err)
	pt, err := sp.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, "k", pt)
}

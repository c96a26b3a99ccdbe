package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "***", MaskKey("short"))
	assert.Equal(t, "AIz***wxyz", MaskKey("AIzaSyABCDEFGwxyz"))
}

func TestShortModelName(t *testing.T) {
	assert.Equal(t, "gemini-1.5-flash", ShortModelName("models/gemini-1.5-flash"))
	assert.Equal(t, "gemini-1.5-flash", ShortModelName("gemini-1.5-flash"))
}

func TestTruncateRunes(t *testing.T) {
	out, cut := TruncateRunes("hello", 10)
	assert.False(t, cut)
	assert.Equal(t, "hello", out)

	out, cut = TruncateRunes(strings.Repeat("ก", 12), 10)
	assert.True(t, cut)
	assert.Equal(t, strings.Repeat("ก", 10), out)

	out, cut = TruncateRunes("abc", 0)
	assert.False(t, cut)
	assert.Equal(t, "abc", out)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitList(" a, ,b ,"))
	assert.Nil(t, SplitList(""))
}

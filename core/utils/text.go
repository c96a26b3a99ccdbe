package utils

import (
	"strings"
	"unicode/utf8"
)

// MaskKey 遮盖凭证中间部分，仅用于日志
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:3] + "***" + key[len(key)-4:]
}

// ShortModelName 去掉 "models/" 前缀，用于展示
func ShortModelName(name string) string {
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

// TruncateRunes 按字符（而不是字节）截断，返回截断后的文本和是否发生截断
func TruncateRunes(s string, limit int) (string, bool) {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i], true
		}
		count++
	}
	return s, false
}

// SplitList 解析逗号分隔列表，去掉空白项
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

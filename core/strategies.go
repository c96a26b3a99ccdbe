package core

import (
	"strings"

	"docqa/core/adapter"
	"docqa/core/utils"
)

// PreferenceStrategy 偏好子串排序策略
// 按偏好顺序逐级扫描目录，同一级内保持目录原始顺序（先到先得，不按字母排序）
type PreferenceStrategy struct{}

func (s *PreferenceStrategy) Name() string { return "preference" }

func (s *PreferenceStrategy) Rank(catalog []adapter.CatalogEntry, preferences []string) []string {
	var ranked []string
	seen := make(map[string]bool)
	for _, pref := range preferences {
		if pref == "" {
			continue
		}
		for _, entry := range catalog {
			if seen[entry.Name] || !strings.Contains(entry.Name, pref) {
				continue
			}
			seen[entry.Name] = true
			ranked = append(ranked, entry.Name)
		}
	}
	return ranked
}

// CatalogOrderStrategy 不做偏好匹配，直接按目录顺序返回
// 适用于目录已由上游按优先级排好的场景
type CatalogOrderStrategy struct{}

func (s *CatalogOrderStrategy) Name() string { return "catalog" }

func (s *CatalogOrderStrategy) Rank(catalog []adapter.CatalogEntry, _ []string) []string {
	ranked := make([]string, 0, len(catalog))
	for _, entry := range catalog {
		ranked = append(ranked, entry.Name)
	}
	return ranked
}

// NewRankingStrategy 根据名称创建策略，未知名称回落到 preference
func NewRankingStrategy(name string) RankingStrategy {
	if name == "catalog" {
		return &CatalogOrderStrategy{}
	}
	return &PreferenceStrategy{}
}

// appendUnique 合并候选列表，"models/x" 与 "x" 视为同一模型
func appendUnique(dst []string, names ...string) []string {
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		dup := false
		for _, existing := range dst {
			if utils.ShortModelName(existing) == utils.ShortModelName(name) {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, name)
		}
	}
	return dst
}

package core

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"docqa/core/adapter"
	"docqa/core/utils"

	"github.com/sirupsen/logrus"
)

// DefaultModel 目录中没有任何偏好命中时使用的模型
const DefaultModel = "gemini-1.5-flash"

// DefaultPreferences 默认偏好顺序：flash 系列优先于 pro
var DefaultPreferences = []string{"gemini-1.5-flash", "gemini-2.0-flash", "gemini-1.5-pro"}

// ResolverConfig 模型解析配置
type ResolverConfig struct {
	Preferences       []string
	Default           string
	Fallbacks         []string
	Exclude           *regexp.Regexp
	RequireGeneration bool
}

// Resolution 一次解析的结果快照
type Resolution struct {
	Model      string   // 排名第一的模型
	Candidates []string // 完整候选列表（排名结果 + 默认 + 静态备用）
	Matched    bool     // 是否由偏好命中（false 表示降级到默认）
	Discovered bool     // 目录拉取是否成功
	ResolvedAt time.Time
}

// ModelResolver 从远程目录中选择可调用的模型
type ModelResolver struct {
	backend  adapter.Backend
	strategy RankingStrategy
	cfg      ResolverConfig
	logger   *logrus.Logger
	metrics  *Metrics
}

func NewModelResolver(backend adapter.Backend, strategy RankingStrategy, cfg ResolverConfig, logger *logrus.Logger, metrics *Metrics) *ModelResolver {
	if strategy == nil {
		strategy = &PreferenceStrategy{}
	}
	if cfg.Default == "" {
		cfg.Default = DefaultModel
	}
	if cfg.Preferences == nil {
		cfg.Preferences = DefaultPreferences
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ModelResolver{
		backend:  backend,
		strategy: strategy,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
	}
}

// Resolve 返回排名第一的模型；目录拉取失败时返回 ErrDiscovery，调用者应使用 Fallback()
func (r *ModelResolver) Resolve(ctx context.Context, credential string) (string, error) {
	res, err := r.Rank(ctx, credential)
	if err != nil {
		return "", err
	}
	return res.Model, nil
}

// Rank 拉取目录、过滤、排序，返回完整候选列表
// 无偏好命中时降级到默认模型，此时不返回错误
func (r *ModelResolver) Rank(ctx context.Context, credential string) (*Resolution, error) {
	catalog, err := r.backend.ListModels(ctx, credential)
	if err != nil {
		r.metrics.resolution("discovery_error")
		return nil, fmt.Errorf("%w: %v", ErrDiscovery, err)
	}

	filtered := r.filter(catalog)
	ranked := r.strategy.Rank(filtered, r.cfg.Preferences)

	res := &Resolution{
		Discovered: true,
		Matched:    len(ranked) > 0,
		ResolvedAt: time.Now(),
	}
	res.Candidates = appendUnique(res.Candidates, ranked...)
	res.Candidates = appendUnique(res.Candidates, r.cfg.Default)
	res.Candidates = appendUnique(res.Candidates, r.cfg.Fallbacks...)
	res.Model = res.Candidates[0]

	if res.Matched {
		r.metrics.resolution("matched")
		r.logger.Infof("🔎 Resolved model [%s] from %d catalog entries (%d candidates)", utils.ShortModelName(res.Model), len(catalog), len(res.Candidates))
	} else {
		r.metrics.resolution("default")
		r.logger.Warnf("🔎 No preferred model in catalog (%d entries), using default [%s]", len(catalog), res.Model)
	}
	return res, nil
}

// Fallback 目录不可用时的静态候选列表
func (r *ModelResolver) Fallback() *Resolution {
	candidates := appendUnique(nil, r.cfg.Default)
	candidates = appendUnique(candidates, r.cfg.Fallbacks...)
	return &Resolution{
		Model:      candidates[0],
		Candidates: candidates,
		ResolvedAt: time.Now(),
	}
}

// ResolveOrFallback Rank 失败时降级为 Fallback，错误只记日志
func (r *ModelResolver) ResolveOrFallback(ctx context.Context, credential string) *Resolution {
	res, err := r.Rank(ctx, credential)
	if err != nil {
		r.logger.Warnf("⚠️ Model discovery failed, falling back to [%s]: %v", r.cfg.Default, err)
		return r.Fallback()
	}
	return res
}

// filter 去掉不支持生成的模型和命中排除规则的模型
// 目录未提供能力列表的条目视为未知，保留
func (r *ModelResolver) filter(catalog []adapter.CatalogEntry) []adapter.CatalogEntry {
	out := make([]adapter.CatalogEntry, 0, len(catalog))
	for _, entry := range catalog {
		if entry.Name == "" {
			continue
		}
		if r.cfg.RequireGeneration && len(entry.Capabilities) > 0 && !entry.CanGenerate() {
			continue
		}
		if r.cfg.Exclude != nil && r.cfg.Exclude.MatchString(entry.Name) {
			continue
		}
		out = append(out, entry)
	}
	return out
}

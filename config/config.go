package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 服务配置：默认值 -> YAML 文件 -> .env -> DOCQA_* 环境变量
type Config struct {
	Credentials []string `yaml:"credentials" env:"DOCQA_API_KEYS" envSeparator:","`
	SecretKey   string   `yaml:"-" env:"DOCQA_SECRET_KEY"`
	Transport   string   `yaml:"transport" env:"DOCQA_TRANSPORT"`
	BaseURL     string   `yaml:"base_url" env:"DOCQA_BASE_URL"`
	APIVersion  string   `yaml:"api_version" env:"DOCQA_API_VERSION"`
	Persona     string   `yaml:"persona" env:"DOCQA_PERSONA"`

	// StructuredRoles 使用原生 systemInstruction，而不是 "System:" 文本标签
	StructuredRoles bool `yaml:"structured_roles" env:"DOCQA_STRUCTURED_ROLES"`

	Models            ModelsConfig            `yaml:"models"`
	Retry             RetryConfig             `yaml:"retry"`
	CredentialsPolicy CredentialsPolicyConfig `yaml:"credentials_policy"`
	Context           ContextConfig           `yaml:"context"`
	Admin             AdminConfig             `yaml:"admin"`
	Server            ServerConfig            `yaml:"server"`
	Database          DatabaseConfig          `yaml:"database"`
	Log               LogConfig               `yaml:"log"`
	AttemptLog        AttemptLogConfig        `yaml:"attempt_log"`
	Session           SessionConfig           `yaml:"session"`
	Export            ExportConfig            `yaml:"export"`
}

type ModelsConfig struct {
	Strategy          string   `yaml:"strategy" env:"DOCQA_MODEL_STRATEGY"`
	Preferences       []string `yaml:"preferences" env:"DOCQA_MODEL_PREFERENCES" envSeparator:","`
	Default           string   `yaml:"default" env:"DOCQA_MODEL_DEFAULT"`
	Fallbacks         []string `yaml:"fallbacks" env:"DOCQA_MODEL_FALLBACKS" envSeparator:","`
	Exclude           string   `yaml:"exclude" env:"DOCQA_MODEL_EXCLUDE"`
	RequireGeneration bool     `yaml:"require_generation" env:"DOCQA_MODEL_REQUIRE_GENERATION"`

	excludeRe *regexp.Regexp
}

// ExcludePattern 编译后的排除规则，未配置时为 nil
func (m ModelsConfig) ExcludePattern() *regexp.Regexp { return m.excludeRe }

type RetryConfig struct {
	Ceiling        int           `yaml:"ceiling" env:"DOCQA_RETRY_CEILING"`
	BaseDelay      time.Duration `yaml:"base_delay" env:"DOCQA_RETRY_BASE_DELAY"`
	Backoff        string        `yaml:"backoff" env:"DOCQA_RETRY_BACKOFF"`
	MaxCalls       int           `yaml:"max_calls" env:"DOCQA_RETRY_MAX_CALLS"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"DOCQA_REQUEST_TIMEOUT"`
}

type CredentialsPolicyConfig struct {
	Cooldown time.Duration `yaml:"cooldown" env:"DOCQA_CREDENTIAL_COOLDOWN"`
	Scope    string        `yaml:"scope" env:"DOCQA_CREDENTIAL_SCOPE"`
}

type ContextConfig struct {
	MaxChars int    `yaml:"max_chars" env:"DOCQA_CONTEXT_MAX_CHARS"`
	MinChars int    `yaml:"min_chars" env:"DOCQA_CONTEXT_MIN_CHARS"`
	Marker   string `yaml:"marker" env:"DOCQA_CONTEXT_MARKER"`
}

type AdminConfig struct {
	Password string `yaml:"password" env:"DOCQA_ADMIN_PASSWORD"`
}

type ServerConfig struct {
	Port      int     `yaml:"port" env:"DOCQA_PORT"`
	RateLimit float64 `yaml:"rate_limit" env:"DOCQA_RATE_LIMIT"`
	RateBurst int     `yaml:"rate_burst" env:"DOCQA_RATE_BURST"`
	GinMode   string  `yaml:"gin_mode" env:"GIN_MODE"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" env:"DOCQA_DB_PATH"`
}

type LogConfig struct {
	Level     string `yaml:"level" env:"DOCQA_LOG_LEVEL"`
	File      string `yaml:"file" env:"DOCQA_LOG_FILE"`
	MaxSizeMB int    `yaml:"max_size_mb" env:"DOCQA_LOG_MAX_SIZE_MB"`
	Format    string `yaml:"format" env:"DOCQA_LOG_FORMAT"`
}

type AttemptLogConfig struct {
	Keep int `yaml:"keep" env:"DOCQA_ATTEMPT_LOG_KEEP"`
}

type SessionConfig struct {
	IdleTTL time.Duration `yaml:"idle_ttl" env:"DOCQA_SESSION_IDLE_TTL"`
}

type ExportConfig struct {
	Font string `yaml:"font" env:"DOCQA_EXPORT_FONT"`
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Transport:  "rest",
		APIVersion: "v1beta",
		Models: ModelsConfig{
			Strategy:          "preference",
			Preferences:       []string{"gemini-1.5-flash", "gemini-2.0-flash", "gemini-1.5-pro"},
			Default:           "gemini-1.5-flash",
			RequireGeneration: true,
		},
		Retry: RetryConfig{
			Ceiling:   3,
			BaseDelay: time.Second,
			Backoff:   "linear",
			MaxCalls:  20,
		},
		CredentialsPolicy: CredentialsPolicyConfig{
			Scope: "session",
		},
		Context: ContextConfig{
			MaxChars: 40000,
			MinChars: 1,
			Marker:   "\n\n[... document truncated ...]",
		},
		Admin:      AdminConfig{Password: "admin123"},
		Server:     ServerConfig{Port: 8000, RateLimit: 2, RateBurst: 5, GinMode: "release"},
		Database:   DatabaseConfig{Path: "docqa.db"},
		Log:        LogConfig{Level: "info", MaxSizeMB: 10, Format: "json"},
		AttemptLog: AttemptLogConfig{Keep: 100},
		Session:    SessionConfig{IdleTTL: 2 * time.Hour},
	}
}

// Load 加载配置；path 为空时跳过 YAML 文件，文件不存在视为错误
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	// .env 不覆盖已存在的环境变量
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))
	c.Retry.Backoff = strings.ToLower(strings.TrimSpace(c.Retry.Backoff))
	c.CredentialsPolicy.Scope = strings.ToLower(strings.TrimSpace(c.CredentialsPolicy.Scope))

	creds := c.Credentials[:0]
	for _, k := range c.Credentials {
		if k = strings.TrimSpace(k); k != "" {
			creds = append(creds, k)
		}
	}
	c.Credentials = creds
}

// Validate 校验取值范围；凭证为空不在这里报错，由启动流程返回 ErrConfiguration
func (c *Config) Validate() error {
	switch c.Transport {
	case "rest", "sdk":
	default:
		return fmt.Errorf("invalid transport %q (expected rest or sdk)", c.Transport)
	}
	switch c.Retry.Backoff {
	case "linear", "exponential", "none":
	default:
		return fmt.Errorf("invalid retry.backoff %q", c.Retry.Backoff)
	}
	switch c.CredentialsPolicy.Scope {
	case "session", "shared":
	default:
		return fmt.Errorf("invalid credentials_policy.scope %q", c.CredentialsPolicy.Scope)
	}
	if c.Retry.Ceiling < 1 {
		return fmt.Errorf("retry.ceiling must be >= 1, got %d", c.Retry.Ceiling)
	}
	if c.Retry.MaxCalls < 1 {
		return fmt.Errorf("retry.max_calls must be >= 1, got %d", c.Retry.MaxCalls)
	}
	if c.Retry.BaseDelay < 0 || c.CredentialsPolicy.Cooldown < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if c.Context.MaxChars < 1 {
		return fmt.Errorf("context.max_chars must be >= 1, got %d", c.Context.MaxChars)
	}
	if strings.TrimSpace(c.Models.Default) == "" {
		return fmt.Errorf("models.default must not be empty")
	}

	c.Models.excludeRe = nil
	if c.Models.Exclude != "" {
		re, err := regexp.Compile(c.Models.Exclude)
		if err != nil {
			return fmt.Errorf("invalid models.exclude pattern: %w", err)
		}
		c.Models.excludeRe = re
	}
	return nil
}

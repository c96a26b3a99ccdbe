package main

import (
	"fmt"
	"io"
	"os"

	"docqa/config"
	"docqa/core"
	"docqa/core/adapter"
	"docqa/core/security"
	"docqa/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// app 进程级依赖，由各子命令共享
type app struct {
	cfg       *config.Config
	log       *logrus.Logger
	db        *gorm.DB
	backend   adapter.Backend
	store     *core.SQLDocumentStore
	sessions  *core.SessionManager
	resolver  *core.ModelResolver
	invoker   *core.ResilientInvoker
	assistant *core.Assistant
	attempts  *core.AsyncAttemptLogger
	metrics   *core.Metrics
	renderer  *core.TranscriptRenderer
}

// newApp 按配置组装所有组件；凭证为空时返回 core.ErrConfiguration
func newApp(cfg *config.Config, log *logrus.Logger) (*app, error) {
	creds, err := revealCredentials(cfg)
	if err != nil {
		return nil, err
	}

	db, err := initDatabase(cfg.Database.Path, log)
	if err != nil {
		return nil, err
	}

	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	return assemble(cfg, log, db, backend, creds)
}

// assemble 在已有数据库和后端上组装组件（测试中注入假后端）
func assemble(cfg *config.Config, log *logrus.Logger, db *gorm.DB, backend adapter.Backend, creds []string) (*app, error) {
	metrics := core.NewMetrics()

	sessions, err := core.NewSessionManager(creds, cfg.CredentialsPolicy.Scope, cfg.Session.IdleTTL, log, metrics)
	if err != nil {
		return nil, err
	}

	attempts := core.NewAsyncAttemptLogger(db, log, cfg.AttemptLog.Keep)

	invoker := core.NewResilientInvoker(backend, core.NewKeyStateManager(), core.InvokerConfig{
		Ceiling:        cfg.Retry.Ceiling,
		MaxCalls:       cfg.Retry.MaxCalls,
		Cooldown:       cfg.CredentialsPolicy.Cooldown,
		RequestTimeout: cfg.Retry.RequestTimeout,
	}, log).
		WithBackOff(core.NewBackOffPolicy(cfg.Retry.Backoff, cfg.Retry.BaseDelay)).
		WithRecorder(attempts).
		WithMetrics(metrics)

	resolver := core.NewModelResolver(backend, core.NewRankingStrategy(cfg.Models.Strategy), core.ResolverConfig{
		Preferences:       cfg.Models.Preferences,
		Default:           cfg.Models.Default,
		Fallbacks:         cfg.Models.Fallbacks,
		Exclude:           cfg.Models.ExcludePattern(),
		RequireGeneration: cfg.Models.RequireGeneration,
	}, log, metrics)

	store := core.NewSQLDocumentStore(db, log)
	contexts := core.NewContextProvider(core.ContextConfig{
		MaxChars: cfg.Context.MaxChars,
		MinChars: cfg.Context.MinChars,
		Marker:   cfg.Context.Marker,
	}, log)

	return &app{
		cfg:       cfg,
		log:       log,
		db:        db,
		backend:   backend,
		store:     store,
		sessions:  sessions,
		resolver:  resolver,
		invoker:   invoker,
		assistant: core.NewAssistant(store, contexts, resolver, invoker, cfg.Persona, log, metrics),
		attempts:  attempts,
		metrics:   metrics,
		renderer:  core.NewTranscriptRenderer(cfg.Export.Font),
	}, nil
}

// Close 刷新调用日志并关闭数据库
func (a *app) Close() {
	a.attempts.Close()
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}

func revealCredentials(cfg *config.Config) ([]string, error) {
	var sp core.SecretProvider = core.NewNoOpSecretProvider()
	if cfg.SecretKey != "" {
		aes, err := security.NewAESSecretProvider(cfg.SecretKey)
		if err != nil {
			return nil, fmt.Errorf("init secret provider: %w", err)
		}
		sp = aes
	}
	creds, err := core.RevealCredentials(sp, cfg.Credentials)
	if err != nil {
		return nil, err
	}
	if len(creds) == 0 {
		return nil, fmt.Errorf("%w: set DOCQA_API_KEYS or credentials in the config file", core.ErrConfiguration)
	}
	return creds, nil
}

func newBackend(cfg *config.Config) (adapter.Backend, error) {
	httpClient := core.NewHTTPClient(0)
	switch cfg.Transport {
	case "sdk":
		b := adapter.NewGenAIAdapter(cfg.BaseURL, cfg.APIVersion, httpClient)
		b.StructuredRoles = cfg.StructuredRoles
		return b, nil
	case "rest", "":
		b := adapter.NewGeminiAdapter(cfg.BaseURL, cfg.APIVersion, httpClient)
		b.StructuredRoles = cfg.StructuredRoles
		return b, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// initDatabase 初始化数据库
func initDatabase(path string, log *logrus.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error), // 只在出错时记录日志
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if err := models.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Debugf("Database initialized: %s", path)
	return db, nil
}

// newLogger 创建日志器；配置了 log.file 时同时写入带轮转的文件
func newLogger(cfg config.LogConfig, format string) (*logrus.Logger, io.Closer, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if format == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	if cfg.File == "" {
		return log, io.NopCloser(nil), nil
	}
	rotator, err := core.NewLogRotator(cfg.File, cfg.MaxSizeMB)
	if err != nil {
		return nil, nil, err
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotator))
	return log, rotator, nil
}

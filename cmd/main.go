package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docqa/config"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

var version = "1.0.0"

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Document question-answering assistant backed by Gemini",
	Long: `docqa answers questions about one uploaded reference document.

Examples:
  docqa serve                     # HTTP API on server.port
  docqa chat                      # interactive terminal session
  docqa models                    # show the resolved model ranking
  docqa upload handbook.pdf       # replace the reference document
  docqa encrypt AIzaSy...         # produce an enc: credential`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (optional)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(encryptCmd)
}

// bootstrap 加载配置、日志和全部组件
func bootstrap(format string) (*app, io.Closer, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Log.Format != "" && format == "" {
		format = cfg.Log.Format
	}
	log, logCloser, err := newLogger(cfg.Log, format)
	if err != nil {
		return nil, nil, err
	}
	a, err := newApp(cfg, log)
	if err != nil {
		logCloser.Close()
		return nil, nil, err
	}
	return a, logCloser, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, logCloser, err := bootstrap("")
	if err != nil {
		return err
	}
	defer logCloser.Close()
	defer a.Close()

	log := a.log
	gin.SetMode(a.cfg.Server.GinMode)

	var limiter *IPRateLimiter
	if a.cfg.Server.RateLimit > 0 {
		limiter = NewIPRateLimiter(rate.Limit(a.cfg.Server.RateLimit), a.cfg.Server.RateBurst)
		defer limiter.Stop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.sessions.StartSweeper(ctx, time.Minute)

	engine := newEngine(a, limiter)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler: engine,
	}

	go func() {
		log.Infof("Starting docqa on port %d (transport=%s, credentials=%d)", a.cfg.Server.Port, a.backend.Name(), len(a.sessions.Credentials()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Failed to start server: %v", err)
			stop()
		}
	}()

	// 等待中断信号以优雅地关闭服务器
	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("Server exited")
	return nil
}

// newEngine 创建 Gin 引擎并注册路由
func newEngine(a *app, limiter *IPRateLimiter) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.RecoveryWithWriter(a.log.Writer()))
	engine.Use(corsMiddleware())
	engine.Use(requestLoggerMiddleware(a.log))
	setupRoutes(engine, a, limiter)
	return engine
}

// setupRoutes 设置路由
func setupRoutes(engine *gin.Engine, a *app, limiter *IPRateLimiter) {
	// 公开路由
	engine.GET("/", handleRoot(a))
	engine.GET("/health", handleHealth(a))
	engine.GET("/metrics", handleMetrics(a))
	engine.GET("/dashboard", handleDashboard())

	v1 := engine.Group("/v1")
	{
		v1.GET("/status", handleStatus(a))
		v1.POST("/sessions", handleCreateSession(a))
		v1.DELETE("/sessions/:id", handleEndSession(a))
		v1.GET("/sessions/:id/turns", handleTranscript(a))
		v1.GET("/sessions/:id/export.pdf", handleExportPDF(a))
		v1.POST("/sessions/:id/messages", rateLimitMiddleware(limiter, a.log), handleAsk(a))
	}

	// 管理路由：静态共享口令
	admin := engine.Group("/admin")
	admin.Use(adminAuthMiddleware(a.cfg.Admin.Password))
	{
		admin.PUT("/document", handleUploadDocument(a))
		admin.GET("/document", handleGetDocument(a))
		admin.GET("/attempts", handleAttempts(a))
		admin.POST("/models/refresh", handleRefreshModels(a))
	}
}

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"docqa/core"
	"docqa/core/utils"
	"docqa/models"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxUploadBytes 单个参考文档的大小上限
const maxUploadBytes = 20 << 20

// handleRoot 处理根路径请求
func handleRoot(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, gin.H{
			"name":    "docqa",
			"version": version,
			"endpoints": gin.H{
				"health":    "/health",
				"status":    "/v1/status",
				"sessions":  "/v1/sessions",
				"ask":       "/v1/sessions/:id/messages",
				"metrics":   "/metrics",
				"dashboard": "/dashboard",
			},
			"transport": a.backend.Name(),
			"timestamp": time.Now().Unix(),
		})
	}
}

// handleHealth 处理健康检查
func handleHealth(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, models.HealthResponse{
			Status:    "healthy",
			Service:   "docqa",
			Sessions:  a.sessions.Count(),
			Timestamp: time.Now().Unix(),
		})
	}
}

func handleMetrics(a *app) gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(a.metrics.Registry, promhttp.HandlerOpts{}))
}

// handleStatus 模型、文档、凭证状态；?session= 时返回该会话缓存的模型
func handleStatus(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		var s *core.Session
		if id := c.Query("session"); id != "" {
			if found, err := a.sessions.Get(id); err == nil {
				s = found
			}
		}
		c.JSON(200, a.assistant.Status(c.Request.Context(), s, a.sessions.Credentials(), a.backend.Name()))
	}
}

func handleCreateSession(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := a.sessions.Create()
		c.JSON(201, models.SessionResponse{ID: s.ID, CreatedAt: s.CreatedAt})
	}
}

func handleEndSession(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := a.sessions.End(c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, models.NewSuccessResponse("Session ended", nil))
	}
}

// handleTranscript 返回对话记录；?format=html 时助手回复渲染为 HTML
func handleTranscript(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := a.sessions.Get(c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}

		turns := s.Turns()
		if c.Query("format") == "html" {
			turns, err = a.renderer.RenderHTML(turns)
			if err != nil {
				respondError(c, err)
				return
			}
		}
		c.JSON(200, models.TranscriptResponse{SessionID: s.ID, Turns: turns})
	}
}

func handleExportPDF(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := a.sessions.Get(c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}

		var buf bytes.Buffer
		title := "Conversation " + s.CreatedAt.Format("2006-01-02 15:04")
		if err := a.renderer.WritePDF(&buf, title, s.Turns()); err != nil {
			respondError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="transcript-%s.pdf"`, s.ID[:8]))
		c.Data(200, "application/pdf", buf.Bytes())
	}
}

// handleAsk 提问；失败也返回 200，回复内容为状态提示并标记 failed
func handleAsk(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := a.sessions.Get(c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}

		var req models.AskRequest
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Question) == "" {
			c.JSON(400, models.NewErrorDetail("question is required", "invalid_request_error"))
			return
		}

		turn := a.assistant.Ask(c.Request.Context(), s, strings.TrimSpace(req.Question))
		c.JSON(200, models.AskResponse{Reply: turn.Text, Failed: turn.Failed, Model: turn.Model})
	}
}

// handleUploadDocument 替换参考文档：multipart 的 file 字段或原始请求体
func handleUploadDocument(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

		var (
			filename string
			data     []byte
			err      error
		)
		if strings.HasPrefix(c.ContentType(), "multipart/") {
			fh, ferr := c.FormFile("file")
			if ferr != nil {
				c.JSON(400, models.NewErrorDetail("missing file field: "+ferr.Error(), "invalid_request_error"))
				return
			}
			filename = filepath.Base(fh.Filename)
			f, ferr := fh.Open()
			if ferr != nil {
				respondError(c, ferr)
				return
			}
			data, err = io.ReadAll(f)
			f.Close()
		} else {
			filename = c.DefaultQuery("filename", "document")
			data, err = io.ReadAll(c.Request.Body)
		}
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				respondError(c, err)
				return
			}
			c.JSON(400, models.NewErrorDetail("read upload: "+err.Error(), "invalid_request_error"))
			return
		}

		doc, err := a.store.WriteDocument(c.Request.Context(), filename, data)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, models.NewSuccessResponse("Document saved", doc))
	}
}

func handleGetDocument(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := a.store.ReadDocument(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, models.NewSuccessResponse("ok", doc))
	}
}

// handleAttempts 最近的远程调用记录和按模型统计
func handleAttempts(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		logs, err := a.attempts.Recent(limit)
		if err != nil {
			respondError(c, err)
			return
		}
		stats, err := a.attempts.Stats()
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, models.AttemptsResponse{Attempts: logs, Stats: stats})
	}
}

// handleRefreshModels 清除所有会话缓存的模型解析结果，并返回一次新的排名
func handleRefreshModels(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		n := a.sessions.InvalidateAll()
		res := a.resolver.ResolveOrFallback(c.Request.Context(), a.sessions.Credentials()[0])

		candidates := make([]string, 0, len(res.Candidates))
		for _, m := range res.Candidates {
			candidates = append(candidates, utils.ShortModelName(m))
		}
		c.JSON(200, models.NewSuccessResponse(fmt.Sprintf("Invalidated %d cached resolution(s)", n), gin.H{
			"model":      utils.ShortModelName(res.Model),
			"candidates": candidates,
			"discovered": res.Discovered,
		}))
	}
}

// respondError 将领域错误映射为 HTTP 状态码
func respondError(c *gin.Context, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, core.ErrSessionNotFound):
		c.JSON(404, models.NewErrorDetail(err.Error(), "not_found_error"))
	case errors.Is(err, core.ErrNoDocument):
		c.JSON(404, models.NewErrorDetail(err.Error(), "not_found_error"))
	case errors.Is(err, core.ErrUnsupportedDocument):
		c.JSON(415, models.NewErrorDetail(err.Error(), "invalid_request_error"))
	case errors.As(err, &maxErr):
		c.JSON(413, models.NewErrorDetail("document too large", "invalid_request_error"))
	default:
		c.JSON(500, models.NewErrorDetail(err.Error(), "server_error"))
	}
}

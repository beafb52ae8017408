package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/shouni/go-manga-press/pkg/domain"
	"github.com/shouni/go-manga-press/pkg/progress"
	"github.com/shouni/go-manga-press/pkg/store"
	"github.com/shouni/go-manga-press/pkg/workflow"

	"github.com/gin-gonic/gin"
)

// Service は API が利用するジョブ操作です。*workflow.Manager が実装します。
type Service interface {
	Start(ctx context.Context, req workflow.StartRequest) (*domain.GenerationJob, error)
	Job(ctx context.Context, jobID string) (*domain.GenerationJob, error)
	Cancel(ctx context.Context, jobID string) error
	Pages(ctx context.Context, jobID string) ([]store.PageRecord, error)
	Page(ctx context.Context, jobID string, pageNumber int) (*store.PageRecord, error)
	Regenerate(ctx context.Context, req domain.RegenerationRequest) (*workflow.RegenerationResult, error)
	StartRegeneration(ctx context.Context, req domain.RegenerationRequest) (*domain.RegenerationJob, error)
	Regeneration(ctx context.Context, id string) (*domain.RegenerationJob, error)
	Subscribe(ctx context.Context, id string) (*progress.Subscription, error)
}

// Handler は HTTP ハンドラ群です。
type Handler struct {
	svc Service
}

// NewHandler は Handler を初期化します。
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// NewRouter はルーティングを設定した gin.Engine を返します。
func NewRouter(svc Service) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	h := NewHandler(svc)
	r.GET("/healthz", h.health)
	h.RegisterRoutes(r.Group("/api/v1"))
	return r
}

// RegisterRoutes は /api/v1 配下のルートを登録します。
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/jobs", h.createJob)
	rg.GET("/jobs/:id", h.getJob)
	rg.POST("/jobs/:id/cancel", h.cancelJob)
	rg.GET("/jobs/:id/pages", h.listPages)
	rg.GET("/jobs/:id/pages/:page/image", h.pageImage)
	rg.GET("/jobs/:id/progress", h.jobProgress)

	rg.POST("/panels/:id/regenerate", h.regeneratePanel)
	rg.GET("/regenerations/:id", h.getRegeneration)
	rg.GET("/regenerations/:id/progress", h.regenerationProgress)
}

// NewServer は handler を提供する http.Server を返します。
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// requestLogger はリクエストごとに slog でアクセスログを出力します。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.InfoContext(c.Request.Context(), "HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start).Round(time.Millisecond))
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

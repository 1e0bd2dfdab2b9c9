// Package api 提供抓取系统的管理接口：健康检查、分区查看与手动触发运行。
package api

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"eazyfind/internal/api/middleware"
	"eazyfind/internal/config"
	"eazyfind/internal/model"
	"eazyfind/internal/pkg/logger"
	"eazyfind/internal/pkg/taskqueue"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RunSubmitter 将运行请求发布到队列。
type RunSubmitter interface {
	SubmitRun(ctx context.Context, category string, source string) (string, error)
	QueueLength(ctx context.Context) (int64, error)
}

// RunGuard 查询分类是否正在运行。
type RunGuard interface {
	Held(ctx context.Context, category string) (bool, error)
}

// Pinger 依赖的存活检查。
type Pinger func(ctx context.Context) error

// Deps 管理接口依赖。Guard 与 Pingers 可以为空。
type Deps struct {
	Partitions config.Partitions
	Seeder     PartitionSeeder
	Runs       RunSubmitter
	Guard      RunGuard
	Pingers    map[string]Pinger
}

// Server 管理 API。
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	router *gin.Engine
	deps   Deps
}

// NewServer 创建管理 API 并注册路由。
//
// 参数:
//
//	cfg: 应用配置
//	log: 日志记录器
//	deps: 分区配置、目录初始化、运行队列等依赖
//
// 返回值:
//
//	*Server: 服务实例
func NewServer(cfg *config.Config, log *slog.Logger, deps Deps) *Server {
	log = logger.OrDiscard(log)
	if cfg.App.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))

	s := &Server{
		cfg:    cfg,
		logger: log,
		router: r,
		deps:   deps,
	}
	s.registerRoutes()
	return s
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/healthz", s.handleHealthz)

	api := s.router.Group("/api")
	api.GET("/partitions", s.handleListPartitions)
	api.POST("/partitions/sync", s.handleSyncPartitions)
	api.GET("/runs/queue", s.handleQueueStatus)
	api.GET("/runs/:category", s.handleRunStatus)
	api.POST("/runs/:category", s.handleSubmitRun)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.deps.Pingers))
	healthy := true
	for name, ping := range s.deps.Pingers {
		if err := ping(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": checks})
}

type sourceResponse struct {
	Store                     model.StoreKey `json:"store"`
	URL                       string         `json:"url"`
	RequiresCategoryInference bool           `json:"requires_category_inference"`
}

type partitionResponse struct {
	ID       uint               `json:"id,omitempty"`
	Store    model.StoreKey     `json:"store"`
	Category model.CategoryType `json:"category"`
	Sources  []sourceResponse   `json:"sources"`
}

// handleListPartitions 列出已配置的分区，并附上目录中的分区 ID。
func (s *Server) handleListPartitions(c *gin.Context) {
	ids := make(map[string]uint)
	if s.deps.Seeder != nil {
		rows, err := s.deps.Seeder.ListPartitions(c.Request.Context())
		if err != nil {
			s.logger.Error("list partitions failed", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list partitions failed"})
			return
		}
		for _, p := range rows {
			ids[p.String()] = p.ID
		}
	}

	out := make([]partitionResponse, 0)
	for _, p := range s.deps.Partitions.Pairs() {
		resp := partitionResponse{
			ID:       ids[p.String()],
			Store:    p.Store,
			Category: p.Category,
			Sources:  make([]sourceResponse, 0),
		}
		for _, src := range s.deps.Partitions[p.Category] {
			if src.Store != p.Store {
				continue
			}
			resp.Sources = append(resp.Sources, sourceResponse{
				Store:                     src.Store,
				URL:                       src.URL,
				RequiresCategoryInference: src.RequiresCategoryInference,
			})
		}
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, gin.H{"partitions": out})
}

// handleSyncPartitions 按分区配置补齐目录中的商店、分类与分区行。
func (s *Server) handleSyncPartitions(c *gin.Context) {
	n, err := SeedPartitions(c.Request.Context(), s.deps.Seeder, s.deps.Partitions)
	if err != nil {
		s.logger.Error("sync partitions failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sync partitions failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"partitions": n})
}

// handleSubmitRun 手动触发一次分类运行。
func (s *Server) handleSubmitRun(c *gin.Context) {
	category, ok := s.configuredCategory(c)
	if !ok {
		return
	}
	if s.deps.Runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run queue unavailable"})
		return
	}

	runID, err := s.deps.Runs.SubmitRun(c.Request.Context(), string(category), taskqueue.SourceManual)
	if err != nil {
		s.logger.Error("submit run failed",
			slog.String("category", string(category)),
			slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, gin.H{"error": "submit run failed"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "category": category})
}

// handleRunStatus 返回分类当前是否有运行持有互斥锁。
func (s *Server) handleRunStatus(c *gin.Context) {
	category, ok := s.configuredCategory(c)
	if !ok {
		return
	}
	if s.deps.Guard == nil {
		c.JSON(http.StatusOK, gin.H{"category": category, "running": false})
		return
	}
	held, err := s.deps.Guard.Held(c.Request.Context(), string(category))
	if err != nil {
		s.logger.Error("check run guard failed",
			slog.String("category", string(category)),
			slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, gin.H{"error": "check run status failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"category": category, "running": held})
}

// handleQueueStatus 返回运行队列长度与已配置的分类。
func (s *Server) handleQueueStatus(c *gin.Context) {
	if s.deps.Runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run queue unavailable"})
		return
	}
	n, err := s.deps.Runs.QueueLength(c.Request.Context())
	if err != nil {
		s.logger.Error("queue length failed", slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, gin.H{"error": "queue length failed"})
		return
	}

	categories := make([]string, 0)
	for _, cat := range s.deps.Partitions.Categories() {
		categories = append(categories, string(cat))
	}
	sort.Strings(categories)
	c.JSON(http.StatusOK, gin.H{"length": n, "categories": categories})
}

// configuredCategory 解析路径中的分类；未知或未配置时写入错误响应。
func (s *Server) configuredCategory(c *gin.Context) (model.CategoryType, bool) {
	category, err := model.ParseCategory(c.Param("category"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	if len(s.deps.Partitions[category]) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "category has no configured sources"})
		return "", false
	}
	return category, true
}

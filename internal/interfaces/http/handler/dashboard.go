package handler

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"homepage-chat-api/internal/application/cache"
	"homepage-chat-api/internal/domain/entity"
	"homepage-chat-api/internal/infrastructure/persistence/redis"
	"homepage-chat-api/internal/interfaces/http/dto"
	"homepage-chat-api/pkg/logger"
)

const (
	defaultMetricDays = 7
	maxMetricDays     = 90
)

// dashboardMetrics 看板展示的用量指标
var dashboardMetrics = []entity.Metric{
	entity.MetricEmbedding,
	entity.MetricRerank,
	entity.MetricLLMRequests,
	entity.MetricLLMTokens,
}

// CostReporter 成本与阈值报告
type CostReporter interface {
	DailyCost(ctx context.Context) (*entity.DailyCost, error)
	CheckLimits(ctx context.Context) (*entity.LimitReport, error)
	Dashboard(ctx context.Context) (*entity.CostDashboard, error)
}

// UsageStats 按日用量统计
type UsageStats interface {
	DailyStats(ctx context.Context, metric entity.Metric, days int) (map[string]int64, error)
}

// CacheAdmin 缓存清理
type CacheAdmin interface {
	ClearTier(ctx context.Context, tier cache.Tier) (int64, error)
	ClearAll(ctx context.Context) (int64, error)
}

// StoreStats 缓存存储概况
type StoreStats interface {
	Stats(ctx context.Context) (*redis.Stats, error)
}

// cacheTypes 清理参数到缓存层级
var cacheTypes = map[string]cache.Tier{
	"answers":    cache.TierAnswer,
	"docs":       cache.TierDocs,
	"embeddings": cache.TierEmbedding,
}

// DashboardHandler 管理后台看板处理器
type DashboardHandler struct {
	cost   CostReporter
	usage  UsageStats
	caches CacheAdmin
	store  StoreStats
	db     HealthChecker
	redis  HealthChecker
}

// NewDashboardHandler 创建看板处理器，db 为当前使用的相似度检索后端
func NewDashboardHandler(cost CostReporter, usage UsageStats, caches CacheAdmin, store StoreStats, db, redisChecker HealthChecker) *DashboardHandler {
	return &DashboardHandler{
		cost:   cost,
		usage:  usage,
		caches: caches,
		store:  store,
		db:     db,
		redis:  redisChecker,
	}
}

// Overview 当日概览
// @Summary 看板概览
// @Tags Admin
// @Produce json
// @Success 200 {object} dto.Response[dto.OverviewResponse]
// @Router /api/admin/dashboard/overview [get]
func (h *DashboardHandler) Overview(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		daily  *entity.DailyCost
		limits *entity.LimitReport
		stats  = dto.CacheStats{MemoryUsed: "N/A"}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		daily, err = h.cost.DailyCost(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		limits, err = h.cost.CheckLimits(gctx)
		return err
	})
	g.Go(func() error {
		s, err := h.store.Stats(gctx)
		if err != nil {
			logger.Warn(gctx, "failed to read cache stats", "error", err.Error())
			return nil
		}
		stats = dto.CacheStats{MemoryUsed: s.MemoryUsed, Keys: s.Keys}
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Error(ctx, "failed to build dashboard overview", err)
		dto.InternalError(c, "failed to load dashboard overview")
		return
	}

	dto.Success(c, dto.OverviewResponse{
		TotalRequests: daily.Breakdown[entity.MetricLLMRequests].Count,
		TotalTokens:   daily.Breakdown[entity.MetricLLMTokens].Count,
		TotalCost:     daily.TotalCost,
		Cache:         stats,
		Limits:        *limits,
	})
}

// Metrics 最近 N 天的用量趋势
// @Summary 用量趋势
// @Tags Admin
// @Produce json
// @Param days query int false "天数 (1-90)" default(7)
// @Success 200 {object} dto.Response[dto.MetricsResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/admin/dashboard/metrics [get]
func (h *DashboardHandler) Metrics(c *gin.Context) {
	days := defaultMetricDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxMetricDays {
			dto.BadRequest(c, fmt.Sprintf("days must be an integer within [1,%d]", maxMetricDays))
			return
		}
		days = n
	}

	ctx := c.Request.Context()
	results := make([]map[string]int64, len(dashboardMetrics))

	g, gctx := errgroup.WithContext(ctx)
	for i, metric := range dashboardMetrics {
		g.Go(func() error {
			stats, err := h.usage.DailyStats(gctx, metric, days)
			if err != nil {
				return fmt.Errorf("daily stats %s: %w", metric, err)
			}
			results[i] = stats
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error(ctx, "failed to load usage metrics", err)
		dto.InternalError(c, "failed to load usage metrics")
		return
	}

	resp := make(dto.MetricsResponse, len(dashboardMetrics))
	for i, metric := range dashboardMetrics {
		resp[metric] = results[i]
	}
	dto.Success(c, resp)
}

// Cost 成本看板
// @Summary 成本看板
// @Tags Admin
// @Produce json
// @Success 200 {object} dto.Response[entity.CostDashboard]
// @Router /api/admin/dashboard/cost [get]
func (h *DashboardHandler) Cost(c *gin.Context) {
	board, err := h.cost.Dashboard(c.Request.Context())
	if err != nil {
		logger.Error(c.Request.Context(), "failed to load cost dashboard", err)
		dto.InternalError(c, "failed to load cost dashboard")
		return
	}
	dto.Success(c, board)
}

// Health 依赖健康状态，任一依赖异常时总体为 degraded
// @Summary 依赖健康状态
// @Tags Admin
// @Produce json
// @Success 200 {object} dto.Response[dto.HealthStatusResponse]
// @Router /api/admin/dashboard/health [get]
func (h *DashboardHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
	defer cancel()

	var dbStatus, redisStatus string
	var g errgroup.Group
	g.Go(func() error {
		dbStatus = componentStatus(ctx, h.db)
		return nil
	})
	g.Go(func() error {
		redisStatus = componentStatus(ctx, h.redis)
		return nil
	})
	_ = g.Wait()

	overall := "healthy"
	if dbStatus != "healthy" || redisStatus != "healthy" {
		overall = "degraded"
	}
	dto.Success(c, dto.HealthStatusResponse{
		Database: dbStatus,
		Redis:    redisStatus,
		Overall:  overall,
	})
}

// ClearCache 按类型清理缓存，all 清理全部缓存层级与推荐问题，不触及用量计数
// @Summary 清理缓存
// @Tags Admin
// @Produce json
// @Param cache_type query string false "answers/docs/embeddings/all" default(all)
// @Success 200 {object} dto.Response[dto.CacheClearResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/admin/cache/clear [post]
func (h *DashboardHandler) ClearCache(c *gin.Context) {
	var req dto.CacheClearRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		dto.BadRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()

	if req.CacheType == "" || req.CacheType == "all" {
		deleted, err := h.caches.ClearAll(ctx)
		if err != nil {
			logger.Error(ctx, "failed to clear cache", err)
			dto.InternalError(c, "failed to clear cache")
			return
		}
		logger.Info(ctx, "cache cleared", "cache_type", "all", "deleted", deleted)
		dto.Success(c, dto.CacheClearResponse{Success: true, Message: "All cache cleared", Deleted: deleted})
		return
	}

	tier, ok := cacheTypes[req.CacheType]
	if !ok {
		dto.BadRequest(c, fmt.Sprintf("Invalid cache type: %s", req.CacheType))
		return
	}
	deleted, err := h.caches.ClearTier(ctx, tier)
	if err != nil {
		logger.Error(ctx, "failed to clear cache", err, "cache_type", req.CacheType)
		dto.InternalError(c, "failed to clear cache")
		return
	}
	logger.Info(ctx, "cache cleared", "cache_type", req.CacheType, "deleted", deleted)
	dto.Success(c, dto.CacheClearResponse{
		Success: true,
		Message: fmt.Sprintf("Cleared %d keys matching %s", deleted, req.CacheType),
		Deleted: deleted,
	})
}

func componentStatus(ctx context.Context, checker HealthChecker) string {
	if checker == nil {
		return "unhealthy: not configured"
	}
	if err := checker.HealthCheck(ctx); err != nil {
		return "unhealthy: " + err.Error()
	}
	return "healthy"
}

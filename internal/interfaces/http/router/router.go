// Package router 提供 HTTP 路由配置
package router

import (
	"homepage-chat-api/internal/config"
	"homepage-chat-api/internal/interfaces/http/handler"
	"homepage-chat-api/internal/interfaces/http/middleware"
	"homepage-chat-api/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers 路由依赖的处理器集合
type Handlers struct {
	Health    *handler.HealthHandler
	Chat      *handler.ChatHandler
	Dashboard *handler.DashboardHandler
}

// Router HTTP 路由器
type Router struct {
	engine   *gin.Engine
	cfg      *config.Config
	handlers Handlers
	jwt      *utils.JWTManager
	limiter  middleware.RateLimiter
}

// New 创建新的路由器
func New(cfg *config.Config, handlers Handlers, jwtManager *utils.JWTManager, limiter middleware.RateLimiter) *Router {
	// 设置 Gin 模式
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine:   gin.New(),
		cfg:      cfg,
		handlers: handlers,
		jwt:      jwtManager,
		limiter:  limiter,
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// setupMiddleware 配置中间件
func (r *Router) setupMiddleware() {
	// 基础中间件
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())

	// CORS 中间件
	r.engine.Use(middleware.CORS(r.cfg.Security.CORS))

	// 追踪中间件
	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}

	// 指标中间件
	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics())
	}
}

// setupRoutes 配置路由
func (r *Router) setupRoutes() {
	// 系统端点
	r.engine.GET("/health", r.handlers.Health.Health)
	r.engine.GET("/ready", r.handlers.Health.Ready)
	r.engine.GET("/live", r.handlers.Health.Live)

	// Prometheus 指标端点
	if r.cfg.Observability.Metrics.Enabled {
		r.engine.GET(r.cfg.Observability.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	api := r.engine.Group("/api")
	{
		api.POST("/chat",
			middleware.RateLimit(r.cfg.Security.RateLimit, r.limiter, middleware.ClientIPKey("chat")),
			r.handlers.Chat.Chat,
		)
		api.GET("/suggestions", r.handlers.Chat.Suggestions)
	}

	// 管理后台
	admin := api.Group("/admin", middleware.AdminAuth(r.jwt))
	{
		dashboard := admin.Group("/dashboard")
		{
			dashboard.GET("/overview", r.handlers.Dashboard.Overview)
			dashboard.GET("/metrics", r.handlers.Dashboard.Metrics)
			dashboard.GET("/health", r.handlers.Dashboard.Health)
			dashboard.GET("/cost", r.handlers.Dashboard.Cost)
		}
		admin.POST("/cache/clear", r.handlers.Dashboard.ClearCache)
	}
}

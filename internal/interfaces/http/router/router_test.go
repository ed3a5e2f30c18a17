package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homepage-chat-api/internal/application/cache"
	"homepage-chat-api/internal/application/chat"
	"homepage-chat-api/internal/application/quota"
	"homepage-chat-api/internal/config"
	redisstore "homepage-chat-api/internal/infrastructure/persistence/redis"
	"homepage-chat-api/internal/interfaces/http/handler"
	"homepage-chat-api/internal/interfaces/http/middleware"
	"homepage-chat-api/pkg/utils"
)

type denyLimiter struct{}

func (denyLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return false, nil
}

func newTestRouter(t *testing.T, limiter middleware.RateLimiter) (*Router, *utils.JWTManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	client := redisstore.NewClientFromRedis(rdb)
	store := redisstore.NewStore(client)

	cacheMgr := cache.NewManager(store, cache.DefaultTTLs())
	counters := quota.NewCounters(store)
	monitor := quota.NewCostMonitor(counters, quota.DefaultLimits())

	cfg := &config.Config{}
	cfg.App.Name = "homepage-chat-api"
	cfg.Observability.Metrics.Enabled = true
	cfg.Observability.Metrics.Path = "/metrics"
	cfg.Security.RateLimit = config.RateLimitConfig{Enabled: true, Requests: 1, Window: time.Minute}

	jwtManager := utils.NewJWTManager("secret", "homepage-admin")
	handlers := Handlers{
		Health:    handler.NewHealthHandler("test", map[string]handler.HealthChecker{"redis": client}),
		Chat:      handler.NewChatHandler(nil, chat.NewSuggestionService(cacheMgr, []string{"q1"})),
		Dashboard: handler.NewDashboardHandler(monitor, counters, cacheMgr, client, client, client),
	}
	return New(cfg, handlers, jwtManager, limiter), jwtManager
}

func TestRoutes(t *testing.T) {
	r, jwtManager := newTestRouter(t, denyLimiter{})
	token, err := jwtManager.GenerateToken("admin", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"live", http.MethodGet, "/live", "", http.StatusOK},
		{"ready", http.MethodGet, "/ready", "", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", "", http.StatusOK},
		{"suggestions", http.MethodGet, "/api/suggestions", "", http.StatusOK},
		{"chat rate limited", http.MethodPost, "/api/chat", "", http.StatusTooManyRequests},
		{"admin without token", http.MethodGet, "/api/admin/dashboard/overview", "", http.StatusUnauthorized},
		{"admin overview", http.MethodGet, "/api/admin/dashboard/overview", token, http.StatusOK},
		{"admin metrics", http.MethodGet, "/api/admin/dashboard/metrics?days=3", token, http.StatusOK},
		{"admin cache clear", http.MethodPost, "/api/admin/cache/clear?cache_type=docs", token, http.StatusOK},
		{"unknown", http.MethodGet, "/api/unknown", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			r.Engine().ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

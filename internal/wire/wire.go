//go:build wireinject
// +build wireinject

package wire

import (
	"context"

	"github.com/google/wire"

	"homepage-chat-api/internal/application/quota"
	"homepage-chat-api/internal/application/rerank"
	"homepage-chat-api/internal/config"
	"homepage-chat-api/internal/domain/repository"
	"homepage-chat-api/internal/domain/service"
	"homepage-chat-api/internal/infrastructure/persistence/redis"
	"homepage-chat-api/internal/interfaces/http/handler"
	"homepage-chat-api/internal/interfaces/http/middleware"
	"homepage-chat-api/internal/interfaces/http/router"
)

// InitializeApp 初始化整个应用（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	wire.Build(
		StoreSet,
		RemoteSet,
		PipelineSet,
		RouterSet,
	)
	return nil, nil, nil
}

// StoreSet 存储提供者集合
var StoreSet = wire.NewSet(
	ProvidePostgresClient,
	ProvideRedisClient,
	ProvideVectorStore,
	ProvideDocumentSearcher,
	redis.NewStore,
	redis.NewRateLimiter,
	wire.Bind(new(repository.KVStore), new(*redis.Store)),
	wire.Bind(new(middleware.RateLimiter), new(*redis.RateLimiter)),
)

// RemoteSet 外部模型服务提供者集合
var RemoteSet = wire.NewSet(
	ProvideEmbedder,
	ProvideReranker,
	ProvideChatModel,
)

// PipelineSet 问答流水线提供者集合
var PipelineSet = wire.NewSet(
	ProvideCacheManager,
	quota.NewCounters,
	wire.Bind(new(service.UsageRecorder), new(*quota.Counters)),
	ProvideCostMonitor,
	ProvideRetrievalEngine,
	rerank.NewStage,
	ProvideGenerationStage,
	ProvideOrchestrator,
	ProvideSuggestionService,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideJWTManager,
	ProvideHealthHandler,
	ProvideDashboardHandler,
	handler.NewChatHandler,
	wire.Struct(new(router.Handlers), "*"),
	router.New,
)

// Package wire 提供依赖注入配置
package wire

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"

	"homepage-chat-api/internal/application/cache"
	"homepage-chat-api/internal/application/chat"
	"homepage-chat-api/internal/application/generation"
	"homepage-chat-api/internal/application/quota"
	"homepage-chat-api/internal/application/rerank"
	"homepage-chat-api/internal/application/retrieval"
	"homepage-chat-api/internal/config"
	"homepage-chat-api/internal/domain/repository"
	"homepage-chat-api/internal/domain/service"
	"homepage-chat-api/internal/infrastructure/embedding"
	"homepage-chat-api/internal/infrastructure/llm"
	"homepage-chat-api/internal/infrastructure/persistence/milvus"
	"homepage-chat-api/internal/infrastructure/persistence/postgres"
	"homepage-chat-api/internal/infrastructure/persistence/redis"
	rerankclient "homepage-chat-api/internal/infrastructure/rerank"
	"homepage-chat-api/internal/interfaces/http/handler"
	"homepage-chat-api/pkg/logger"
	"homepage-chat-api/pkg/utils"
)

// VectorStore 当前启用的相似度检索后端
type VectorStore struct {
	Name     string
	Searcher repository.DocumentSearcher
	Health   handler.HealthChecker
}

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideVectorStore 按 vector.backend 选择 pgvector 或 Milvus
func ProvideVectorStore(ctx context.Context, cfg *config.Config, pg *postgres.Client) (*VectorStore, func(), error) {
	switch cfg.Vector.Backend {
	case "milvus":
		client, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
		if err != nil {
			return nil, nil, err
		}
		if err := client.EnsureCollection(ctx, cfg.Embedding.Dimension); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		logger.Info(ctx, "similarity search backed by milvus", "collection", cfg.Vector.Milvus.Collection)
		store := &VectorStore{
			Name:     "milvus",
			Searcher: milvus.NewDocumentRepository(client),
			Health:   client,
		}
		cleanup := func() {
			_ = client.Close()
		}
		return store, cleanup, nil
	case "pgvector", "":
		logger.Info(ctx, "similarity search backed by pgvector", "table", cfg.Vector.Table)
		return &VectorStore{
			Name:     "postgres",
			Searcher: postgres.NewDocumentRepository(pg, cfg.Vector.Table),
			Health:   pg,
		}, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported vector backend %q", cfg.Vector.Backend)
	}
}

// ProvideDocumentSearcher 取出检索接口
func ProvideDocumentSearcher(store *VectorStore) repository.DocumentSearcher {
	return store.Searcher
}

// ProvideEmbedder 按 embedding.provider 选择 DashScope 或 OpenAI 兼容接口
func ProvideEmbedder(ctx context.Context, cfg *config.Config) (service.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "openai":
		return embedding.NewEinoEmbedder(ctx, &cfg.Embedding)
	case "dashscope", "":
		return embedding.NewClient(&cfg.Embedding), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Embedding.Provider)
	}
}

// ProvideReranker 提供远程重排序客户端
func ProvideReranker(cfg *config.Config) service.Reranker {
	return rerankclient.NewClient(&cfg.Rerank)
}

// ProvideChatModel 提供流式对话模型
func ProvideChatModel(ctx context.Context, cfg *config.Config) (model.BaseChatModel, error) {
	return llm.NewChatModel(ctx, &cfg.LLM)
}

// ProvideCacheManager 提供多级缓存
func ProvideCacheManager(store repository.KVStore, cfg *config.Config) *cache.Manager {
	return cache.NewManager(store, cache.TTLs{
		Answer:      cfg.Cache.TTL.Answer,
		Docs:        cfg.Cache.TTL.Docs,
		Embedding:   cfg.Cache.TTL.Embedding,
		Suggestions: cfg.Cache.TTL.Suggestions,
	})
}

// ProvideCostMonitor 提供成本监控
func ProvideCostMonitor(counters *quota.Counters, cfg *config.Config) *quota.CostMonitor {
	return quota.NewCostMonitor(counters, quota.Limits{
		DailyEmbedding: cfg.Usage.DailyEmbeddingLimit,
		DailyRerank:    cfg.Usage.DailyRerankLimit,
		DailyLLMTokens: cfg.Usage.DailyLLMTokenLimit,
		MonthlyBudget:  cfg.Usage.MonthlyBudgetCNY,
	})
}

// ProvideRetrievalEngine 提供检索阶段
func ProvideRetrievalEngine(embedder service.Embedder, searcher repository.DocumentSearcher, cacheMgr *cache.Manager, usage service.UsageRecorder, cfg *config.Config) *retrieval.Engine {
	return retrieval.NewEngine(embedder, searcher, cacheMgr, usage, cfg.Retrieval.Threshold)
}

// ProvideGenerationStage 提供生成阶段
func ProvideGenerationStage(chatModel model.BaseChatModel, usage service.UsageRecorder, cfg *config.Config) *generation.Stage {
	return generation.NewStage(chatModel, usage, cfg.LLM.Persona)
}

// ProvideOrchestrator 提供问答编排器
func ProvideOrchestrator(cacheMgr *cache.Manager, engine *retrieval.Engine, reranker *rerank.Stage, generator *generation.Stage, cfg *config.Config) *chat.Orchestrator {
	return chat.NewOrchestrator(cacheMgr, engine, reranker, generator, chat.Options{
		TopK:             cfg.Retrieval.TopK,
		RerankTopN:       cfg.Retrieval.RerankTopN,
		MaxMessageLength: cfg.Chat.MaxMessageLength,
	})
}

// ProvideSuggestionService 提供推荐问题服务
func ProvideSuggestionService(cacheMgr *cache.Manager, cfg *config.Config) *chat.SuggestionService {
	return chat.NewSuggestionService(cacheMgr, cfg.Chat.Suggestions)
}

// ProvideHealthHandler 就绪检查覆盖 PostgreSQL、Redis 与 Milvus（启用时）
func ProvideHealthHandler(cfg *config.Config, pg *postgres.Client, redisClient *redis.Client, store *VectorStore) *handler.HealthHandler {
	checks := map[string]handler.HealthChecker{
		"postgres": pg,
		"redis":    redisClient,
	}
	if store.Name != "postgres" {
		checks[store.Name] = store.Health
	}
	return handler.NewHealthHandler(cfg.App.Version, checks)
}

// ProvideDashboardHandler 提供看板处理器
func ProvideDashboardHandler(monitor *quota.CostMonitor, counters *quota.Counters, cacheMgr *cache.Manager, redisClient *redis.Client, pg *postgres.Client) *handler.DashboardHandler {
	return handler.NewDashboardHandler(monitor, counters, cacheMgr, redisClient, pg, redisClient)
}

// ProvideJWTManager 提供管理后台令牌校验
func ProvideJWTManager(cfg *config.Config) *utils.JWTManager {
	return utils.NewJWTManager(cfg.Security.AdminJWT.Secret, cfg.Security.AdminJWT.Issuer)
}

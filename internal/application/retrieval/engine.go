// Package retrieval 实现查询向量化与相似文档召回
package retrieval

import (
	"context"
	"fmt"
	"time"

	"homepage-chat-api/internal/application/cache"
	"homepage-chat-api/internal/domain/entity"
	"homepage-chat-api/internal/domain/repository"
	"homepage-chat-api/internal/domain/service"
	apperrors "homepage-chat-api/pkg/errors"
	"homepage-chat-api/pkg/logger"
	"homepage-chat-api/pkg/metrics"
)

const (
	DefaultTopK      = 10
	DefaultThreshold = 0.5
)

// Engine 检索引擎
type Engine struct {
	embedder  service.Embedder
	searcher  repository.DocumentSearcher
	cache     *cache.Manager
	usage     service.UsageRecorder
	threshold float64
}

// NewEngine 创建检索引擎，threshold <= 0 时使用默认值
func NewEngine(embedder service.Embedder, searcher repository.DocumentSearcher, cacheMgr *cache.Manager, usage service.UsageRecorder, threshold float64) *Engine {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Engine{
		embedder:  embedder,
		searcher:  searcher,
		cache:     cacheMgr,
		usage:     usage,
		threshold: threshold,
	}
}

// Retrieve 召回相似文档，可能返回空切片。
// 查询顺序：文档集缓存 -> 向量缓存 -> Embedding 服务 -> 相似度检索。
func (e *Engine) Retrieve(ctx context.Context, query string, topK int, threshold float64) ([]entity.Document, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	start := time.Now()
	defer func() {
		metrics.PipelineStageDuration.WithLabelValues("retrieve").Observe(time.Since(start).Seconds())
	}()

	if docs, ok := e.cache.GetDocumentSet(ctx, query); ok {
		logger.Debug(ctx, "document set cache hit", "query", logger.MaskContent(query, 50))
		return docs, nil
	}

	vec, err := e.cache.LoadEmbedding(ctx, query, func(ctx context.Context) ([]float32, error) {
		vectors, err := e.embedder.Embed(ctx, []string{query})
		if err != nil {
			return nil, err
		}
		if len(vectors) != 1 || len(vectors[0]) == 0 {
			return nil, fmt.Errorf("embedder returned %d vectors for 1 text", len(vectors))
		}
		e.usage.Increment(ctx, entity.MetricEmbedding, 1)
		return vectors[0], nil
	})
	if err != nil {
		logger.Error(ctx, "query embedding failed", err)
		return nil, apperrors.ErrEmbeddingFailed.WithError(err)
	}

	docs, err := e.searcher.SearchSimilar(ctx, repository.SimilarityQuery{
		Vector:    vec,
		TopK:      topK,
		Threshold: threshold,
	})
	if err != nil {
		logger.Error(ctx, "similarity search failed", err)
		return nil, apperrors.ErrRetrievalFailed.WithError(err)
	}

	if len(docs) > 0 {
		e.cache.SetDocumentSet(ctx, query, docs)
	}

	logger.Info(ctx, "documents retrieved",
		"count", len(docs),
		"query", logger.MaskContent(query, 50),
	)
	return docs, nil
}

// RetrieveWithFallback 召回文档，无结果时返回单个占位文档，结果永不为空
func (e *Engine) RetrieveWithFallback(ctx context.Context, query string, topK int) ([]entity.Document, error) {
	docs, err := e.Retrieve(ctx, query, topK, e.threshold)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		metrics.FallbackTotal.WithLabelValues("retrieval").Inc()
		logger.Warn(ctx, "no documents matched, using fallback", "query", logger.MaskContent(query, 50))
		return []entity.Document{entity.NewFallbackDocument()}, nil
	}
	return docs, nil
}

// Package rerank 实现检索结果重排序及其降级
package rerank

import (
	"context"
	"time"

	"homepage-chat-api/internal/domain/entity"
	"homepage-chat-api/internal/domain/service"
	"homepage-chat-api/pkg/logger"
	"homepage-chat-api/pkg/metrics"
)

// DefaultTopN 默认保留文档数
const DefaultTopN = 3

// Stage 重排序阶段，远程失败时返回原顺序的前 topN 条
type Stage struct {
	reranker service.Reranker
	usage    service.UsageRecorder
}

// NewStage 创建重排序阶段
func NewStage(reranker service.Reranker, usage service.UsageRecorder) *Stage {
	return &Stage{
		reranker: reranker,
		usage:    usage,
	}
}

// Rerank 按相关度重排文档，不向调用方返回错误
func (s *Stage) Rerank(ctx context.Context, query string, docs []entity.Document, topN int) []entity.Document {
	if topN <= 0 {
		topN = DefaultTopN
	}
	if len(docs) == 0 {
		return docs
	}

	start := time.Now()
	defer func() {
		metrics.PipelineStageDuration.WithLabelValues("rerank").Observe(time.Since(start).Seconds())
	}()

	contents := make([]string, len(docs))
	for i, d := range docs {
		contents[i] = d.Content
	}

	results, err := s.reranker.Rerank(ctx, query, contents, topN)
	if err == nil {
		if out, ok := applyResults(docs, results, topN); ok {
			s.usage.Increment(ctx, entity.MetricRerank, 1)
			return out
		}
		logger.Warn(ctx, "rerank returned unusable results, keeping original order", "results", len(results))
	} else {
		logger.Warn(ctx, "rerank failed, keeping original order", "error", err.Error())
	}

	s.usage.Increment(ctx, entity.MetricRerankFallback, 1)
	metrics.FallbackTotal.WithLabelValues("rerank").Inc()
	return head(docs, topN)
}

// applyResults 按远端顺序映射回原文档并附上分数；任一 index 越界则整体无效
func applyResults(docs []entity.Document, results []service.RerankResult, topN int) ([]entity.Document, bool) {
	if len(results) == 0 {
		return nil, false
	}

	out := make([]entity.Document, 0, min(len(results), topN))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(docs) {
			return nil, false
		}
		if len(out) == topN {
			break
		}
		d := docs[r.Index]
		score := r.RelevanceScore
		d.RerankScore = &score
		out = append(out, d)
	}
	return out, true
}

func head(docs []entity.Document, n int) []entity.Document {
	if len(docs) <= n {
		return docs
	}
	return docs[:n]
}

// ShouldRerank 少于两条文档或首条为占位文档时跳过重排
func ShouldRerank(docs []entity.Document) bool {
	return len(docs) > 1 && !docs[0].IsFallback()
}

// Head 返回前 n 条文档
func Head(docs []entity.Document, n int) []entity.Document {
	if n <= 0 {
		n = DefaultTopN
	}
	return head(docs, n)
}

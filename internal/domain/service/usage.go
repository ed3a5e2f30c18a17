// Package service 定义领域服务端口
package service

import (
	"context"

	"homepage-chat-api/internal/domain/entity"
)

// UsageRecorder 记录用量计数（port）
// 约定：实现为 best-effort，失败只记录日志，不阻塞主流程。
type UsageRecorder interface {
	Increment(ctx context.Context, metric entity.Metric, n int64)
}

// Embedder 文本向量化（port），输出与输入一一对应
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// RerankResult 远程重排序返回的单条结果
type RerankResult struct {
	Index          int
	RelevanceScore float64
}

// Reranker 远程重排序（port），结果按相关度从高到低
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error)
}

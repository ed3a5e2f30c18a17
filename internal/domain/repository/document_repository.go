package repository

import (
	"context"

	"homepage-chat-api/internal/domain/entity"
)

// SimilarityQuery 相似度检索参数
type SimilarityQuery struct {
	Vector []float32
	TopK   int
	// Threshold 最低余弦相似度
	Threshold float64
}

// DocumentSearcher 向量相似度检索
// 返回结果按相似度降序排列，且全部满足 Threshold
type DocumentSearcher interface {
	SearchSimilar(ctx context.Context, q SimilarityQuery) ([]entity.Document, error)
}

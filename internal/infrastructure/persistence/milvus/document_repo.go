package milvus

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"

	domain "homepage-chat-api/internal/domain/entity"
	"homepage-chat-api/internal/domain/repository"
	"homepage-chat-api/pkg/metrics"
)

// DocumentRepository 基于 Milvus 的相似度检索（COSINE 度量，score 即相似度）
type DocumentRepository struct {
	client *Client
}

var _ repository.DocumentSearcher = (*DocumentRepository)(nil)

// NewDocumentRepository 创建文档检索仓储
func NewDocumentRepository(client *Client) *DocumentRepository {
	return &DocumentRepository{client: client}
}

// SearchSimilar 检索并按阈值过滤
func (r *DocumentRepository) SearchSimilar(ctx context.Context, q repository.SimilarityQuery) ([]domain.Document, error) {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return nil, fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.DocumentRepository.SearchSimilar")
	span.SetAttributes(
		attribute.Int("search.top_k", q.TopK),
		attribute.Float64("search.threshold", q.Threshold),
	)
	defer span.End()

	ef := r.client.config.SearchEf
	if ef < q.TopK {
		ef = q.TopK
	}
	sp, err := entity.NewIndexHNSWSearchParam(ef)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	start := time.Now()
	results, err := r.client.milvus.Search(ctx,
		r.client.config.Collection,
		nil,
		"",
		[]string{FieldContent, FieldSourceType, FieldSourceID},
		[]entity.Vector{entity.FloatVector(q.Vector)},
		FieldVector,
		entity.COSINE,
		q.TopK,
		sp,
	)
	metrics.VectorSearchDuration.WithLabelValues("milvus").Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		metrics.VectorSearchTotal.WithLabelValues("milvus", "error").Inc()
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	metrics.VectorSearchTotal.WithLabelValues("milvus", "ok").Inc()

	docs := toDocuments(results, q.Threshold)
	span.SetAttributes(attribute.Int("search.result_count", len(docs)))
	return docs, nil
}

// toDocuments 将检索结果转换为文档，丢弃低于阈值的条目
func toDocuments(results []client.SearchResult, threshold float64) []domain.Document {
	docs := make([]domain.Document, 0)
	for _, result := range results {
		if result.Err != nil {
			continue
		}
		contentCol, _ := result.Fields.GetColumn(FieldContent).(*entity.ColumnVarChar)
		sourceTypeCol, _ := result.Fields.GetColumn(FieldSourceType).(*entity.ColumnVarChar)
		sourceIDCol, _ := result.Fields.GetColumn(FieldSourceID).(*entity.ColumnInt64)

		for i := 0; i < result.ResultCount; i++ {
			score := float64(result.Scores[i])
			if score < threshold {
				continue
			}
			doc := domain.Document{Similarity: score}
			if contentCol != nil {
				doc.Content = contentCol.Data()[i]
			}
			if sourceTypeCol != nil {
				doc.SourceType = domain.SourceType(sourceTypeCol.Data()[i])
			}
			if sourceIDCol != nil {
				id := sourceIDCol.Data()[i]
				doc.SourceID = &id
			}
			docs = append(docs, doc)
		}
	}
	return docs
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"homepage-chat-api/internal/domain/entity"
	"homepage-chat-api/internal/domain/repository"
	"homepage-chat-api/pkg/metrics"
)

const defaultEmbeddingTable = "embeddings"

var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DocumentRepository 基于 pgvector 的相似度检索
// 表结构由数据导入任务维护：content, source_type, source_id, embedding vector(N)
type DocumentRepository struct {
	client *Client
	query  string
}

var _ repository.DocumentSearcher = (*DocumentRepository)(nil)

// NewDocumentRepository 创建文档检索仓储
func NewDocumentRepository(client *Client, table string) *DocumentRepository {
	if !identPattern.MatchString(table) {
		table = defaultEmbeddingTable
	}
	return &DocumentRepository{
		client: client,
		query: fmt.Sprintf(`SELECT content, source_type, source_id,
       1 - (embedding <=> CAST(@vec AS vector)) AS similarity
FROM %s
WHERE 1 - (embedding <=> CAST(@vec AS vector)) >= @threshold
ORDER BY embedding <=> CAST(@vec AS vector)
LIMIT @limit
`, table),
	}
}

type documentRow struct {
	Content    string
	SourceType string
	SourceID   sql.NullInt64
	Similarity float64
}

// SearchSimilar 余弦相似度检索，按距离升序（即相似度降序）返回
func (r *DocumentRepository) SearchSimilar(ctx context.Context, q repository.SimilarityQuery) ([]entity.Document, error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.SearchSimilar")
	span.SetAttributes(
		attribute.Int("search.top_k", q.TopK),
		attribute.Float64("search.threshold", q.Threshold),
	)
	defer span.End()

	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}

	start := time.Now()
	var rows []documentRow
	err := r.client.db.WithContext(ctx).Raw(r.query, map[string]interface{}{
		"vec":       VectorLiteral(q.Vector),
		"threshold": q.Threshold,
		"limit":     q.TopK,
	}).Scan(&rows).Error
	metrics.VectorSearchDuration.WithLabelValues("pgvector").Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		metrics.VectorSearchTotal.WithLabelValues("pgvector", "error").Inc()
		return nil, fmt.Errorf("failed to search similar documents: %w", err)
	}
	metrics.VectorSearchTotal.WithLabelValues("pgvector", "ok").Inc()

	docs := make([]entity.Document, 0, len(rows))
	for _, row := range rows {
		doc := entity.Document{
			Content:    row.Content,
			SourceType: entity.SourceType(row.SourceType),
			Similarity: row.Similarity,
		}
		if row.SourceID.Valid {
			id := row.SourceID.Int64
			doc.SourceID = &id
		}
		docs = append(docs, doc)
	}

	span.SetAttributes(attribute.Int("search.result_count", len(docs)))
	return docs, nil
}

// VectorLiteral 将向量格式化为 pgvector 文本字面量，如 [0.1,0.2]
func VectorLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

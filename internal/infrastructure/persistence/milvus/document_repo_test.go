package milvus

import (
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "homepage-chat-api/internal/domain/entity"
)

func TestToDocuments(t *testing.T) {
	results := []client.SearchResult{{
		ResultCount: 3,
		Scores:      []float32{0.9, 0.6, 0.3},
		Fields: client.ResultSet{
			entity.NewColumnVarChar(FieldContent, []string{"a", "b", "c"}),
			entity.NewColumnVarChar(FieldSourceType, []string{"personal_info", "project", "project"}),
			entity.NewColumnInt64(FieldSourceID, []int64{1, 2, 3}),
		},
	}}

	docs := toDocuments(results, 0.5)
	require.Len(t, docs, 2)

	assert.Equal(t, "a", docs[0].Content)
	assert.Equal(t, domain.SourceTypePersonalInfo, docs[0].SourceType)
	assert.InDelta(t, 0.9, docs[0].Similarity, 1e-6)
	require.NotNil(t, docs[1].SourceID)
	assert.Equal(t, int64(2), *docs[1].SourceID)
}

func TestToDocumentsEmpty(t *testing.T) {
	docs := toDocuments(nil, 0.5)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
}

func TestEmbeddingsSchema(t *testing.T) {
	s := EmbeddingsSchema("homepage_embeddings", 1024)
	assert.Equal(t, "homepage_embeddings", s.CollectionName)
	require.Len(t, s.Fields, 5)
	assert.Equal(t, "1024", s.Fields[1].TypeParams["dim"])
}

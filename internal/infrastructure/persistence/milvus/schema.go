package milvus

import (
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// 集合字段名
const (
	FieldID         = "id"
	FieldVector     = "vector"
	FieldContent    = "content"
	FieldSourceType = "source_type"
	FieldSourceID   = "source_id"
)

// EmbeddingsSchema 主页资料向量集合 Schema，由导入任务创建
func EmbeddingsSchema(collection string, dim int) *entity.Schema {
	return &entity.Schema{
		CollectionName: collection,
		Description:    "Homepage profile facts for semantic search",
		Fields: []*entity.Field{
			{
				Name:       FieldID,
				DataType:   entity.FieldTypeInt64,
				PrimaryKey: true,
				AutoID:     true,
			},
			{
				Name:     FieldVector,
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(dim),
				},
			},
			{
				Name:     FieldContent,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
			{
				Name:     FieldSourceType,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "50",
				},
			},
			{
				Name:     FieldSourceID,
				DataType: entity.FieldTypeInt64,
			},
		},
	}
}

// Package entity 定义领域实体
package entity

// SourceType 检索文档来源
type SourceType string

const (
	// SourceTypePersonalInfo 个人资料事实
	SourceTypePersonalInfo SourceType = "personal_info"
	// SourceTypeProject 项目经历
	SourceTypeProject SourceType = "project"
	// SourceTypeFallback 检索无结果时的占位文档，不代表真实命中
	SourceTypeFallback SourceType = "fallback"
)

// FallbackDocumentContent 占位文档的固定内容
const FallbackDocumentContent = "抱歉，我没有找到与您问题相关的信息。您可以尝试问一些关于我的技能、项目经验或工作经历的问题。"

// Document 检索得到的一条上下文文档
type Document struct {
	Content     string     `json:"content" msgpack:"content"`
	SourceType  SourceType `json:"source_type" msgpack:"source_type"`
	SourceID    *int64     `json:"source_id,omitempty" msgpack:"source_id,omitempty"`
	Similarity  float64    `json:"similarity" msgpack:"similarity"`
	RerankScore *float64   `json:"rerank_score,omitempty" msgpack:"rerank_score,omitempty"`
}

// IsFallback 是否为占位文档
func (d Document) IsFallback() bool {
	return d.SourceType == SourceTypeFallback
}

// NewFallbackDocument 构造占位文档
func NewFallbackDocument() Document {
	return Document{
		Content:    FallbackDocumentContent,
		SourceType: SourceTypeFallback,
		Similarity: 0,
	}
}

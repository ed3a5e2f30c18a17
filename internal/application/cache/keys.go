package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"

	"homepage-chat-api/internal/domain/entity"
)

// Tier 缓存层级
type Tier string

const (
	TierAnswer    Tier = "answer"
	TierDocs      Tier = "docs"
	TierEmbedding Tier = "embedding"
)

const (
	answerPrefix    = "chat:answer:"
	docsPrefix      = "chat:docs:"
	embeddingPrefix = "embedding:query:"

	// SuggestionsKey 推荐问题缓存键
	SuggestionsKey = "suggestions"

	// historyHashTurns 参与历史摘要的最近消息数
	historyHashTurns = 3
)

// Prefix 返回层级对应的键前缀
func (t Tier) Prefix() string {
	switch t {
	case TierAnswer:
		return answerPrefix
	case TierDocs:
		return docsPrefix
	case TierEmbedding:
		return embeddingPrefix
	default:
		return ""
	}
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// AnswerKey 答案缓存键
func AnswerKey(query, historyHash string) string {
	return answerPrefix + md5Hex(query+historyHash)
}

// DocsKey 文档集缓存键
func DocsKey(query string) string {
	return docsPrefix + md5Hex(query)
}

// EmbeddingKey 查询向量缓存键
func EmbeddingKey(text string) string {
	return embeddingPrefix + md5Hex(text)
}

// HistoryHash 对最近 3 条消息做摘要，取 md5 前 8 位；无历史时返回空串
func HistoryHash(turns []entity.ConversationTurn) string {
	recent := entity.LastTurns(turns, historyHashTurns)
	if len(recent) == 0 {
		return ""
	}
	b, err := json.Marshal(recent)
	if err != nil {
		return ""
	}
	return md5Hex(string(b))[:8]
}

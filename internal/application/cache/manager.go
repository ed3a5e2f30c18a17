// Package cache 实现答案、文档集与查询向量三级缓存
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"

	"homepage-chat-api/internal/domain/entity"
	"homepage-chat-api/internal/domain/repository"
	"homepage-chat-api/pkg/logger"
	"homepage-chat-api/pkg/metrics"
)

// TTLs 各层过期时间
type TTLs struct {
	Answer      time.Duration
	Docs        time.Duration
	Embedding   time.Duration
	Suggestions time.Duration
}

// DefaultTTLs 默认过期时间
func DefaultTTLs() TTLs {
	return TTLs{
		Answer:      24 * time.Hour,
		Docs:        time.Hour,
		Embedding:   7 * 24 * time.Hour,
		Suggestions: 5 * time.Minute,
	}
}

// embeddingLoadTimeout 合并后的向量计算的最长耗时
const embeddingLoadTimeout = 30 * time.Second

// Manager 多级缓存管理器
// 读失败视为未命中，写失败只记录日志。
type Manager struct {
	store       repository.KVStore
	ttl         TTLs
	group       singleflight.Group
	loadTimeout time.Duration
}

// NewManager 创建缓存管理器，ttl 中未设置的项使用默认值
func NewManager(store repository.KVStore, ttl TTLs) *Manager {
	def := DefaultTTLs()
	if ttl.Answer <= 0 {
		ttl.Answer = def.Answer
	}
	if ttl.Docs <= 0 {
		ttl.Docs = def.Docs
	}
	if ttl.Embedding <= 0 {
		ttl.Embedding = def.Embedding
	}
	if ttl.Suggestions <= 0 {
		ttl.Suggestions = def.Suggestions
	}
	return &Manager{store: store, ttl: ttl, loadTimeout: embeddingLoadTimeout}
}

// GetAnswer 读取缓存答案
func (m *Manager) GetAnswer(ctx context.Context, query, historyHash string) (string, bool) {
	b, ok := m.get(ctx, TierAnswer, AnswerKey(query, historyHash))
	if !ok {
		return "", false
	}
	return string(b), true
}

// SetAnswer 写入答案
func (m *Manager) SetAnswer(ctx context.Context, query, historyHash, answer string) {
	m.set(ctx, TierAnswer, AnswerKey(query, historyHash), []byte(answer), m.ttl.Answer)
}

// GetDocumentSet 读取文档集
func (m *Manager) GetDocumentSet(ctx context.Context, query string) ([]entity.Document, bool) {
	key := DocsKey(query)
	b, ok := m.get(ctx, TierDocs, key)
	if !ok {
		return nil, false
	}
	var docs []entity.Document
	if err := msgpack.Unmarshal(b, &docs); err != nil {
		logger.Warn(ctx, "discarding undecodable cache entry", "tier", string(TierDocs), "key", key, "error", err.Error())
		return nil, false
	}
	return docs, true
}

// SetDocumentSet 写入文档集
func (m *Manager) SetDocumentSet(ctx context.Context, query string, docs []entity.Document) {
	b, err := msgpack.Marshal(docs)
	if err != nil {
		logger.Warn(ctx, "failed to encode document set", "error", err.Error())
		return
	}
	m.set(ctx, TierDocs, DocsKey(query), b, m.ttl.Docs)
}

// GetEmbedding 读取查询向量
func (m *Manager) GetEmbedding(ctx context.Context, text string) ([]float32, bool) {
	key := EmbeddingKey(text)
	b, ok := m.get(ctx, TierEmbedding, key)
	if !ok {
		return nil, false
	}
	var vec []float32
	if err := msgpack.Unmarshal(b, &vec); err != nil || len(vec) == 0 {
		logger.Warn(ctx, "discarding undecodable cache entry", "tier", string(TierEmbedding), "key", key)
		return nil, false
	}
	return vec, true
}

// SetEmbedding 写入查询向量
func (m *Manager) SetEmbedding(ctx context.Context, text string, vec []float32) {
	b, err := msgpack.Marshal(vec)
	if err != nil {
		logger.Warn(ctx, "failed to encode embedding", "error", err.Error())
		return
	}
	m.set(ctx, TierEmbedding, EmbeddingKey(text), b, m.ttl.Embedding)
}

// LoadEmbedding 优先读缓存，未命中时调用 compute 并回写。
// 同一文本的并发计算合并为一次；合并的计算不继承任一调用方的取消，
// 每个调用方只在自己的 ctx 结束时放弃等待。
func (m *Manager) LoadEmbedding(ctx context.Context, text string, compute func(ctx context.Context) ([]float32, error)) ([]float32, error) {
	if vec, ok := m.GetEmbedding(ctx, text); ok {
		return vec, nil
	}

	ch := m.group.DoChan(EmbeddingKey(text), func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.loadTimeout)
		defer cancel()

		vec, err := compute(loadCtx)
		if err != nil {
			return nil, err
		}
		m.SetEmbedding(loadCtx, text, vec)
		return vec, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]float32), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetSuggestions 读取推荐问题
func (m *Manager) GetSuggestions(ctx context.Context) ([]string, bool) {
	b, ok := m.get(ctx, "suggestions", SuggestionsKey)
	if !ok {
		return nil, false
	}
	var out []string
	if err := msgpack.Unmarshal(b, &out); err != nil {
		return nil, false
	}
	return out, true
}

// SetSuggestions 写入推荐问题
func (m *Manager) SetSuggestions(ctx context.Context, suggestions []string) {
	b, err := msgpack.Marshal(suggestions)
	if err != nil {
		return
	}
	m.set(ctx, "suggestions", SuggestionsKey, b, m.ttl.Suggestions)
}

// ClearTier 删除某一层的全部缓存，返回删除数量
func (m *Manager) ClearTier(ctx context.Context, tier Tier) (int64, error) {
	prefix := tier.Prefix()
	if prefix == "" {
		return 0, fmt.Errorf("unknown cache tier %q", tier)
	}
	return m.clearPrefix(ctx, prefix)
}

// ClearAll 删除三级缓存与推荐问题，不影响用量计数
func (m *Manager) ClearAll(ctx context.Context) (int64, error) {
	var total int64
	for _, tier := range []Tier{TierAnswer, TierDocs, TierEmbedding} {
		n, err := m.ClearTier(ctx, tier)
		if err != nil {
			return total, err
		}
		total += n
	}
	n, err := m.store.Delete(ctx, SuggestionsKey)
	if err != nil {
		return total, fmt.Errorf("failed to delete suggestions: %w", err)
	}
	return total + n, nil
}

func (m *Manager) clearPrefix(ctx context.Context, prefix string) (int64, error) {
	keys, err := m.store.ScanPrefix(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("failed to scan %s: %w", prefix, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := m.store.Delete(ctx, keys...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s: %w", prefix, err)
	}
	return n, nil
}

func (m *Manager) get(ctx context.Context, tier Tier, key string) ([]byte, bool) {
	b, err := m.store.Get(ctx, key)
	switch {
	case err == nil:
		metrics.CacheRequestsTotal.WithLabelValues(string(tier), "hit").Inc()
		return b, true
	case errors.Is(err, repository.ErrKeyNotFound):
		metrics.CacheRequestsTotal.WithLabelValues(string(tier), "miss").Inc()
	default:
		metrics.CacheRequestsTotal.WithLabelValues(string(tier), "error").Inc()
		logger.Warn(ctx, "cache read failed", "tier", string(tier), "key", key, "error", err.Error())
	}
	return nil, false
}

func (m *Manager) set(ctx context.Context, tier Tier, key string, value []byte, ttl time.Duration) {
	if err := m.store.Set(ctx, key, value, ttl); err != nil {
		logger.Warn(ctx, "cache write failed", "tier", string(tier), "key", key, "error", err.Error())
	}
}

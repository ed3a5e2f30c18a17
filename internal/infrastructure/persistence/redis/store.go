package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"homepage-chat-api/internal/domain/repository"
)

// scanBatch SCAN 每批返回的建议数量
const scanBatch = 200

// Store 基于 Redis 的 KVStore 实现
type Store struct {
	client *Client
}

var _ repository.KVStore = (*Store)(nil)

// NewStore 创建键值存储
func NewStore(client *Client) *Store {
	return &Store{client: client}
}

// Get 读取值
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := startSpan(ctx, "redis.Get", key)
	defer span.End()

	val, err := s.client.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if IsNil(err) {
			span.SetAttributes(attribute.Bool("cache.hit", false))
			return nil, repository.ErrKeyNotFound
		}
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Bool("cache.hit", true))
	return val, nil
}

// Set 写入值（SET EX）
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, span := startSpan(ctx, "redis.Set", key)
	span.SetAttributes(attribute.Int64("redis.ttl_ms", ttl.Milliseconds()))
	defer span.End()

	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Delete 删除键
func (s *Store) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	ctx, span := tracer.Start(ctx, "redis.Del",
		trace.WithAttributes(attribute.Int("redis.key_count", len(keys))))
	defer span.End()

	n, err := s.client.rdb.Del(ctx, keys...).Result()
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	return n, nil
}

// IncrBy 原子自增
func (s *Store) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	ctx, span := startSpan(ctx, "redis.IncrBy", key)
	defer span.End()

	v, err := s.client.rdb.IncrBy(ctx, key, n).Result()
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	return v, nil
}

// Expire 设置过期时间
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, span := startSpan(ctx, "redis.Expire", key)
	defer span.End()

	if err := s.client.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// MGet 批量读取
func (s *Store) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	ctx, span := tracer.Start(ctx, "redis.MGet",
		trace.WithAttributes(attribute.Int("redis.key_count", len(keys))))
	defer span.End()

	vals, err := s.client.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	out := make([][]byte, len(vals))
	for i, v := range vals {
		switch val := v.(type) {
		case nil:
		case string:
			out[i] = []byte(val)
		default:
			return nil, fmt.Errorf("unexpected mget value type %T for key %s", v, keys[i])
		}
	}
	return out, nil
}

// ScanPrefix 使用 SCAN 迭代匹配前缀的键，不阻塞 Redis
func (s *Store) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "redis.ScanPrefix",
		trace.WithAttributes(attribute.String("redis.prefix", prefix)))
	defer span.End()

	var keys []string
	iter := s.client.rdb.Scan(ctx, 0, escapeGlob(prefix)+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("redis.key_count", len(keys)))
	return keys, nil
}

// IncrByWithTTL 在一个事务内自增并刷新过期时间
func (s *Store) IncrByWithTTL(ctx context.Context, key string, n int64, ttl time.Duration) (int64, error) {
	ctx, span := startSpan(ctx, "redis.IncrByWithTTL", key)
	defer span.End()

	var incr *redis.IntCmd
	_, err := s.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.IncrBy(ctx, key, n)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	return incr.Val(), nil
}

// escapeGlob 转义 glob 特殊字符
func escapeGlob(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}

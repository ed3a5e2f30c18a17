// Package redis 提供基于 Redis 的共享键值存储与限流实现
package redis

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"homepage-chat-api/internal/config"
)

var tracer = otel.Tracer("redis")

// Client Redis 客户端
type Client struct {
	rdb *redis.Client
}

// NewClient 创建 Redis 客户端
func NewClient(cfg *config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// 验证连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// NewClientFromRedis 包装已有的 go-redis 客户端
func NewClientFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Redis 获取底层 Redis 客户端
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// Close 关闭 Redis 连接
func (c *Client) Close() error {
	return c.rdb.Close()
}

// HealthCheck 健康检查
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "redis.HealthCheck")
	defer span.End()

	result, err := c.rdb.Ping(ctx).Result()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("health check failed: %w", err)
	}
	if result != "PONG" {
		return fmt.Errorf("unexpected ping response: %s", result)
	}
	return nil
}

// Stats 缓存占用概况
type Stats struct {
	MemoryUsed string `json:"memory_used"`
	Keys       int64  `json:"keys"`
}

// Stats 读取内存占用与键数量，INFO 不可用时 MemoryUsed 为 N/A
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	ctx, span := tracer.Start(ctx, "redis.Stats")
	defer span.End()

	keys, err := c.rdb.DBSize(ctx).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("dbsize failed: %w", err)
	}

	stats := &Stats{MemoryUsed: "N/A", Keys: keys}
	info, err := c.rdb.Info(ctx, "memory").Result()
	if err != nil {
		span.RecordError(err)
		return stats, nil
	}
	if v := parseInfoField(info, "used_memory_human"); v != "" {
		stats.MemoryUsed = v
	}

	span.SetAttributes(attribute.Int64("redis.keys", keys))
	return stats, nil
}

// parseInfoField 从 INFO 输出中提取字段
func parseInfoField(info, field string) string {
	scanner := bufio.NewScanner(strings.NewReader(info))
	prefix := field + ":"
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, prefix) {
			return strings.TrimPrefix(line, prefix)
		}
	}
	return ""
}

// startSpan 为单 key 操作开启 Span
func startSpan(ctx context.Context, name, key string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("redis.key", key)))
}

// IsNil 检查是否为 redis.Nil 错误
func IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

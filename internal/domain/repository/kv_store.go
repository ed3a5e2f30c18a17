// Package repository 定义数据访问接口
package repository

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound 键不存在
var ErrKeyNotFound = errors.New("key not found")

// KVStore 共享键值存储的最小原语集合，缓存分层、用量计数与临时状态均基于它实现
type KVStore interface {
	// Get 读取值，不存在时返回 ErrKeyNotFound
	Get(ctx context.Context, key string) ([]byte, error)
	// Set 写入值并设置过期时间，ttl <= 0 表示不过期
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete 删除键，返回实际删除数量
	Delete(ctx context.Context, keys ...string) (int64, error)
	// IncrBy 原子自增并返回新值
	IncrBy(ctx context.Context, key string, n int64) (int64, error)
	// Expire 设置过期时间
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// MGet 批量读取，缺失的键对应 nil
	MGet(ctx context.Context, keys ...string) ([][]byte, error)
	// ScanPrefix 按前缀列出键
	ScanPrefix(ctx context.Context, prefix string) ([]string, error)
}

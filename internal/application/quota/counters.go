// Package quota 提供用量计数与成本监控
package quota

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"homepage-chat-api/internal/domain/entity"
	"homepage-chat-api/internal/domain/repository"
	"homepage-chat-api/internal/domain/service"
	"homepage-chat-api/pkg/logger"
)

const (
	// counterTTL 日计数键保留时长
	counterTTL = 30 * 24 * time.Hour
	dateLayout = "2006-01-02"
)

// CounterKey 返回指标在某日（UTC）的计数键
func CounterKey(metric entity.Metric, day time.Time) string {
	return fmt.Sprintf("metrics:%s:daily:%s", metric, day.UTC().Format(dateLayout))
}

// ttlIncrementer 支持在一次往返内自增并刷新过期时间的存储
type ttlIncrementer interface {
	IncrByWithTTL(ctx context.Context, key string, n int64, ttl time.Duration) (int64, error)
}

// Counters 基于共享存储的按日用量计数
type Counters struct {
	store repository.KVStore
	now   func() time.Time
}

var _ service.UsageRecorder = (*Counters)(nil)

// NewCounters 创建用量计数器
func NewCounters(store repository.KVStore) *Counters {
	return &Counters{
		store: store,
		now:   time.Now,
	}
}

// Increment 累加当日计数，失败只记录日志
func (c *Counters) Increment(ctx context.Context, metric entity.Metric, n int64) {
	if n <= 0 {
		return
	}
	key := CounterKey(metric, c.now())

	if s, ok := c.store.(ttlIncrementer); ok {
		if _, err := s.IncrByWithTTL(ctx, key, n, counterTTL); err != nil {
			logger.Warn(ctx, "failed to increment usage counter", "metric", string(metric), "error", err.Error())
		}
		return
	}

	if _, err := c.store.IncrBy(ctx, key, n); err != nil {
		logger.Warn(ctx, "failed to increment usage counter", "metric", string(metric), "error", err.Error())
		return
	}
	if err := c.store.Expire(ctx, key, counterTTL); err != nil {
		logger.Warn(ctx, "failed to set usage counter ttl", "metric", string(metric), "error", err.Error())
	}
}

// TodayCount 返回指标当日计数
func (c *Counters) TodayCount(ctx context.Context, metric entity.Metric) (int64, error) {
	counts, err := c.counts(ctx, []string{CounterKey(metric, c.now())})
	if err != nil {
		return 0, err
	}
	return counts[0], nil
}

// TodayCounts 批量返回多个指标的当日计数
func (c *Counters) TodayCounts(ctx context.Context, metrics ...entity.Metric) (map[entity.Metric]int64, error) {
	today := c.now()
	keys := make([]string, len(metrics))
	for i, m := range metrics {
		keys[i] = CounterKey(m, today)
	}
	counts, err := c.counts(ctx, keys)
	if err != nil {
		return nil, err
	}

	out := make(map[entity.Metric]int64, len(metrics))
	for i, m := range metrics {
		out[m] = counts[i]
	}
	return out, nil
}

// DailyStats 返回最近 days 天（含当日）的日期到计数映射
func (c *Counters) DailyStats(ctx context.Context, metric entity.Metric, days int) (map[string]int64, error) {
	if days <= 0 {
		return map[string]int64{}, nil
	}

	today := c.now().UTC()
	dates := make([]string, days)
	keys := make([]string, days)
	for i := 0; i < days; i++ {
		d := today.AddDate(0, 0, -i)
		dates[i] = d.Format(dateLayout)
		keys[i] = CounterKey(metric, d)
	}

	counts, err := c.counts(ctx, keys)
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64, days)
	for i, d := range dates {
		out[d] = counts[i]
	}
	return out, nil
}

// counts 批量读取计数，缺失键计为 0
func (c *Counters) counts(ctx context.Context, keys []string) ([]int64, error) {
	vals, err := c.store.MGet(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("failed to read usage counters: %w", err)
	}

	out := make([]int64, len(keys))
	for i := range keys {
		if i >= len(vals) || vals[i] == nil {
			continue
		}
		n, err := strconv.ParseInt(string(vals[i]), 10, 64)
		if err != nil {
			logger.Warn(ctx, "ignoring malformed usage counter", "key", keys[i])
			continue
		}
		out[i] = n
	}
	return out, nil
}

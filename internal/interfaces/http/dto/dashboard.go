package dto

import "homepage-chat-api/internal/domain/entity"

// CacheStats 缓存存储概况
type CacheStats struct {
	MemoryUsed string `json:"memory_used"`
	Keys       int64  `json:"keys"`
}

// OverviewResponse 看板概览（当日）
type OverviewResponse struct {
	TotalRequests int64              `json:"total_requests"`
	TotalTokens   int64              `json:"total_tokens"`
	TotalCost     float64            `json:"total_cost"`
	Cache         CacheStats         `json:"cache"`
	Limits        entity.LimitReport `json:"limits"`
}

// MetricsResponse 指标名 -> 日期 -> 计数
type MetricsResponse map[entity.Metric]map[string]int64

// HealthStatusResponse 依赖健康状态
type HealthStatusResponse struct {
	Database string `json:"database"`
	Redis    string `json:"redis"`
	Overall  string `json:"overall"`
}

// CacheClearRequest 清理缓存参数
type CacheClearRequest struct {
	CacheType string `form:"cache_type"`
}

// CacheClearResponse 清理结果
type CacheClearResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Deleted int64  `json:"deleted"`
}

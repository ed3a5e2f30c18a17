package entity

// Metric 用量计数指标
type Metric string

const (
	MetricEmbedding      Metric = "embedding"
	MetricRerank         Metric = "rerank"
	MetricRerankFallback Metric = "rerank.fallback"
	MetricLLMRequests    Metric = "llm.requests"
	MetricLLMTokens      Metric = "llm.tokens"
	MetricLLMFallback    Metric = "llm.fallback"
)

// Severity 告警级别
type Severity string

const (
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// LimitStatus 阈值检查总体状态
type LimitStatus string

const (
	LimitStatusOK       LimitStatus = "ok"
	LimitStatusWarning  LimitStatus = "warning"
	LimitStatusCritical LimitStatus = "critical"
)

// BudgetWarning 用量或预算告警
type BudgetWarning struct {
	Type     string   `json:"type"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// MetricCost 单个指标的用量与成本
type MetricCost struct {
	Count int64   `json:"count"`
	Cost  float64 `json:"cost"`
}

// DailyCost 当日成本快照
type DailyCost struct {
	Date        string                `json:"date"`
	Breakdown   map[Metric]MetricCost `json:"breakdown"`
	TotalCost   float64               `json:"total_cost"`
	DailyBudget float64               `json:"daily_budget"`
}

// MonthlyCost 当月成本快照
type MonthlyCost struct {
	Month      string  `json:"month"`
	TotalCost  float64 `json:"total_cost"`
	Budget     float64 `json:"budget"`
	Remaining  float64 `json:"remaining"`
	Percentage float64 `json:"percentage"`
}

// LimitReport 阈值检查结果
type LimitReport struct {
	Status   LimitStatus     `json:"status"`
	Warnings []BudgetWarning `json:"warnings"`
}

// CostDashboard 成本看板数据
type CostDashboard struct {
	Daily   DailyCost   `json:"daily"`
	Monthly MonthlyCost `json:"monthly"`
	Limits  LimitReport `json:"limits"`
}

package quota

import (
	"context"
	"fmt"
	"math"
	"time"

	"homepage-chat-api/internal/domain/entity"
)

// UnitCosts 各计费指标的单价（元）；降级计数不计费
var UnitCosts = map[entity.Metric]float64{
	entity.MetricEmbedding:   0.0005,
	entity.MetricRerank:      0.003,
	entity.MetricLLMTokens:   0.000002,
	entity.MetricLLMRequests: 0.001,
}

// billedMetrics 固定顺序的计费指标
var billedMetrics = []entity.Metric{
	entity.MetricEmbedding,
	entity.MetricRerank,
	entity.MetricLLMTokens,
	entity.MetricLLMRequests,
}

const (
	warnRatio = 0.8
)

// Limits 日用量上限与月预算
type Limits struct {
	DailyEmbedding int64
	DailyRerank    int64
	DailyLLMTokens int64
	MonthlyBudget  float64
}

// DefaultLimits 默认阈值
func DefaultLimits() Limits {
	return Limits{
		DailyEmbedding: 1000,
		DailyRerank:    500,
		DailyLLMTokens: 100000,
		MonthlyBudget:  50,
	}
}

// CostMonitor 根据用量计数推算成本并检查阈值。
// 阈值仅用于告警，不拦截请求。
type CostMonitor struct {
	counters *Counters
	limits   Limits
}

// NewCostMonitor 创建成本监控
func NewCostMonitor(counters *Counters, limits Limits) *CostMonitor {
	return &CostMonitor{
		counters: counters,
		limits:   limits,
	}
}

// Limits 返回当前阈值配置
func (m *CostMonitor) Limits() Limits {
	return m.limits
}

// DailyCost 当日成本明细
func (m *CostMonitor) DailyCost(ctx context.Context) (*entity.DailyCost, error) {
	counts, err := m.counters.TodayCounts(ctx, billedMetrics...)
	if err != nil {
		return nil, err
	}

	breakdown := make(map[entity.Metric]entity.MetricCost, len(billedMetrics))
	var total float64
	for _, metric := range billedMetrics {
		cost := float64(counts[metric]) * UnitCosts[metric]
		breakdown[metric] = entity.MetricCost{
			Count: counts[metric],
			Cost:  round(cost, 4),
		}
		total += cost
	}

	return &entity.DailyCost{
		Date:        m.counters.now().UTC().Format(dateLayout),
		Breakdown:   breakdown,
		TotalCost:   round(total, 4),
		DailyBudget: round(m.limits.MonthlyBudget/30, 2),
	}, nil
}

// MonthlyCost 当月（1 日至今日）累计成本
func (m *CostMonitor) MonthlyCost(ctx context.Context) (*entity.MonthlyCost, error) {
	today := m.counters.now().UTC()
	first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)

	var keys []string
	var unit []float64
	for d := first; !d.After(today); d = d.AddDate(0, 0, 1) {
		for _, metric := range billedMetrics {
			keys = append(keys, CounterKey(metric, d))
			unit = append(unit, UnitCosts[metric])
		}
	}

	counts, err := m.counters.counts(ctx, keys)
	if err != nil {
		return nil, err
	}

	var total float64
	for i, n := range counts {
		total += float64(n) * unit[i]
	}

	budget := m.limits.MonthlyBudget
	var pct float64
	if budget > 0 {
		pct = round(total/budget*100, 1)
	}

	return &entity.MonthlyCost{
		Month:      today.Format("2006-01"),
		TotalCost:  round(total, 2),
		Budget:     budget,
		Remaining:  round(budget-total, 2),
		Percentage: pct,
	}, nil
}

// CheckLimits 检查日用量上限与月预算
func (m *CostMonitor) CheckLimits(ctx context.Context) (*entity.LimitReport, error) {
	monthly, err := m.MonthlyCost(ctx)
	if err != nil {
		return nil, err
	}
	return m.checkLimits(ctx, monthly)
}

func (m *CostMonitor) checkLimits(ctx context.Context, monthly *entity.MonthlyCost) (*entity.LimitReport, error) {
	caps := []struct {
		metric entity.Metric
		limit  int64
	}{
		{entity.MetricEmbedding, m.limits.DailyEmbedding},
		{entity.MetricRerank, m.limits.DailyRerank},
		{entity.MetricLLMTokens, m.limits.DailyLLMTokens},
	}

	metrics := make([]entity.Metric, len(caps))
	for i, c := range caps {
		metrics[i] = c.metric
	}
	counts, err := m.counters.TodayCounts(ctx, metrics...)
	if err != nil {
		return nil, err
	}

	warnings := make([]entity.BudgetWarning, 0)
	for _, c := range caps {
		if c.limit <= 0 {
			continue
		}
		used := counts[c.metric]
		switch {
		case used >= c.limit:
			warnings = append(warnings, entity.BudgetWarning{
				Type:     fmt.Sprintf("%s_limit", c.metric),
				Message:  fmt.Sprintf("Daily %s limit reached: %d/%d", c.metric, used, c.limit),
				Severity: entity.SeverityCritical,
			})
		case float64(used) >= float64(c.limit)*warnRatio:
			warnings = append(warnings, entity.BudgetWarning{
				Type:     fmt.Sprintf("%s_warning", c.metric),
				Message:  fmt.Sprintf("Approaching daily %s limit: %d/%d", c.metric, used, c.limit),
				Severity: entity.SeverityMedium,
			})
		}
	}

	switch {
	case monthly.Percentage >= 100:
		warnings = append(warnings, entity.BudgetWarning{
			Type:     "budget_exceeded",
			Message:  fmt.Sprintf("Monthly budget exceeded: %.2f/%.2f CNY", monthly.TotalCost, monthly.Budget),
			Severity: entity.SeverityCritical,
		})
	case monthly.Percentage >= warnRatio*100:
		warnings = append(warnings, entity.BudgetWarning{
			Type:     "budget_warning",
			Message:  fmt.Sprintf("Approaching monthly budget: %.1f%% used", monthly.Percentage),
			Severity: entity.SeverityHigh,
		})
	}

	return &entity.LimitReport{
		Status:   limitStatus(warnings),
		Warnings: warnings,
	}, nil
}

// Dashboard 汇总当日、当月成本与阈值状态
func (m *CostMonitor) Dashboard(ctx context.Context) (*entity.CostDashboard, error) {
	daily, err := m.DailyCost(ctx)
	if err != nil {
		return nil, err
	}
	monthly, err := m.MonthlyCost(ctx)
	if err != nil {
		return nil, err
	}
	limits, err := m.checkLimits(ctx, monthly)
	if err != nil {
		return nil, err
	}

	return &entity.CostDashboard{
		Daily:   *daily,
		Monthly: *monthly,
		Limits:  *limits,
	}, nil
}

func limitStatus(warnings []entity.BudgetWarning) entity.LimitStatus {
	if len(warnings) == 0 {
		return entity.LimitStatusOK
	}
	for _, w := range warnings {
		if w.Severity == entity.SeverityCritical {
			return entity.LimitStatusCritical
		}
	}
	return entity.LimitStatusWarning
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

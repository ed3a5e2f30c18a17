// Package rerank 提供 DashScope 文本重排序服务客户端
package rerank

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"homepage-chat-api/internal/config"
	"homepage-chat-api/internal/domain/service"
	"homepage-chat-api/internal/infrastructure/httpx"
	"homepage-chat-api/pkg/logger"
	"homepage-chat-api/pkg/metrics"
	"homepage-chat-api/pkg/retry"
	"homepage-chat-api/pkg/tracer"
)

const serviceName = "rerank"

// Client 重排序客户端
type Client struct {
	endpoint string
	apiKey   string
	model    string
	policy   retry.Policy
	hc       *http.Client
}

var _ service.Reranker = (*Client)(nil)

type rerankRequest struct {
	Model      string           `json:"model"`
	Input      rerankInput      `json:"input"`
	Parameters rerankParameters `json:"parameters"`
}

type rerankInput struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankParameters struct {
	TopN            int  `json:"top_n"`
	ReturnDocuments bool `json:"return_documents"`
}

type rerankResponse struct {
	Output *struct {
		Results []struct {
			Index          *int     `json:"index"`
			RelevanceScore *float64 `json:"relevance_score"`
		} `json:"results"`
	} `json:"output"`
}

// NewClient 创建重排序客户端
func NewClient(cfg *config.RerankConfig) *Client {
	model := cfg.Model
	if model == "" {
		model = "gte-rerank"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	policy := retry.Policy{
		Attempts:     3,
		InitialDelay: time.Second,
		MaxDelay:     5 * time.Second,
		Retryable:    httpx.Retryable,
	}
	if cfg.Retry.Attempts > 0 {
		policy.Attempts = uint(cfg.Retry.Attempts)
	}
	if cfg.Retry.Initial > 0 {
		policy.InitialDelay = cfg.Retry.Initial
	}
	if cfg.Retry.Max > 0 {
		policy.MaxDelay = cfg.Retry.Max
	}

	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    model,
		policy:   policy,
		hc:       httpx.NewHTTPClient(timeout),
	}
}

// Rerank 对文档按与查询的相关性重新排序，返回远端给出的顺序
func (c *Client) Rerank(ctx context.Context, query string, documents []string, topN int) ([]service.RerankResult, error) {
	if len(documents) == 0 {
		return []service.RerankResult{}, nil
	}
	if topN <= 0 || topN > len(documents) {
		topN = len(documents)
	}

	ctx, span := tracer.Start(ctx, "rerank.Rerank")
	defer span.End()
	span.SetAttributes(
		attribute.String("rerank.model", c.model),
		attribute.Int("rerank.documents", len(documents)),
		attribute.Int("rerank.top_n", topN),
	)

	start := time.Now()
	defer func() {
		metrics.RemoteCallDuration.WithLabelValues(serviceName).Observe(time.Since(start).Seconds())
	}()

	req := &rerankRequest{
		Model: c.model,
		Input: rerankInput{Query: query, Documents: documents},
		Parameters: rerankParameters{
			TopN:            topN,
			ReturnDocuments: true,
		},
	}

	policy := c.policy
	policy.OnRetry = func(n uint, err error) {
		logger.Warn(ctx, "rerank request failed, retrying",
			"attempt", n+1,
			"error", err.Error(),
		)
	}

	var results []service.RerankResult
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		var resp rerankResponse
		if err := httpx.PostJSON(ctx, c.hc, c.endpoint, c.apiKey, req, &resp); err != nil {
			return err
		}
		r, err := parseResults(&resp, len(documents))
		if err != nil {
			return retry.Permanent(err)
		}
		results = r
		return nil
	})
	if err != nil {
		metrics.RemoteCallTotal.WithLabelValues(serviceName, "error").Inc()
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}

	metrics.RemoteCallTotal.WithLabelValues(serviceName, "success").Inc()
	return results, nil
}

// parseResults 校验每条结果的 index 与分数
func parseResults(resp *rerankResponse, docCount int) ([]service.RerankResult, error) {
	if resp.Output == nil {
		return nil, httpx.Malformed("missing output")
	}

	results := make([]service.RerankResult, 0, len(resp.Output.Results))
	for i, r := range resp.Output.Results {
		if r.Index == nil || r.RelevanceScore == nil {
			return nil, httpx.Malformed("result %d missing index or relevance_score", i)
		}
		if *r.Index < 0 || *r.Index >= docCount {
			return nil, httpx.Malformed("result %d index %d out of range", i, *r.Index)
		}
		results = append(results, service.RerankResult{
			Index:          *r.Index,
			RelevanceScore: *r.RelevanceScore,
		})
	}
	return results, nil
}

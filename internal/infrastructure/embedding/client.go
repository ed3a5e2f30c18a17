// Package embedding 提供 Embedding 服务客户端
package embedding

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"homepage-chat-api/internal/config"
	"homepage-chat-api/internal/infrastructure/httpx"
	"homepage-chat-api/pkg/logger"
	"homepage-chat-api/pkg/metrics"
	"homepage-chat-api/pkg/retry"
	"homepage-chat-api/pkg/tracer"
)

const serviceName = "embedding"

// Client DashScope 文本向量服务客户端
type Client struct {
	endpoint  string
	apiKey    string
	model     string
	dimension int
	batchSize int
	policy    retry.Policy
	hc        *http.Client
}

type embedRequest struct {
	Model      string          `json:"model"`
	Input      embedInput      `json:"input"`
	Parameters embedParameters `json:"parameters"`
}

type embedInput struct {
	Texts []string `json:"texts"`
}

type embedParameters struct {
	Dimension int `json:"dimension,omitempty"`
}

type embedResponse struct {
	Output *struct {
		Embeddings []struct {
			TextIndex int       `json:"text_index"`
			Embedding []float32 `json:"embedding"`
		} `json:"embeddings"`
	} `json:"output"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// NewClient 创建 Embedding 客户端
func NewClient(cfg *config.EmbeddingConfig) *Client {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	model := cfg.Model
	if model == "" {
		model = "text-embedding-v3"
	}
	policy := retry.DefaultPolicy()
	if cfg.Retry.Attempts > 0 {
		policy.Attempts = uint(cfg.Retry.Attempts)
	}
	if cfg.Retry.Initial > 0 {
		policy.InitialDelay = cfg.Retry.Initial
	}
	if cfg.Retry.Max > 0 {
		policy.MaxDelay = cfg.Retry.Max
	}
	policy.Retryable = httpx.Retryable

	return &Client{
		endpoint:  cfg.Endpoint,
		apiKey:    cfg.APIKey,
		model:     model,
		dimension: cfg.Dimension,
		batchSize: batchSize,
		policy:    policy,
		hc:        httpx.NewHTTPClient(cfg.Timeout),
	}
}

// Embed 按批次生成向量，结果顺序与输入一致
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if c.endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is empty")
	}

	ctx, span := tracer.Start(ctx, "embedding.Embed")
	defer span.End()
	span.SetAttributes(
		attribute.String("embedding.model", c.model),
		attribute.Int("embedding.texts", len(texts)),
	)

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += c.batchSize {
		end := i + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		vectors, err := c.embedBatch(ctx, texts[i:end])
		if err != nil {
			tracer.RecordError(span, err)
			return nil, err
		}
		all = append(all, vectors...)
	}

	return all, nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	defer func() {
		metrics.RemoteCallDuration.WithLabelValues(serviceName).Observe(time.Since(start).Seconds())
	}()

	req := &embedRequest{
		Model:      c.model,
		Input:      embedInput{Texts: texts},
		Parameters: embedParameters{Dimension: c.dimension},
	}

	policy := c.policy
	policy.OnRetry = func(n uint, err error) {
		logger.Warn(ctx, "embedding request failed, retrying",
			"attempt", n+1,
			"error", err.Error(),
		)
	}

	var vectors [][]float32
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		var resp embedResponse
		if err := httpx.PostJSON(ctx, c.hc, c.endpoint, c.apiKey, req, &resp); err != nil {
			return err
		}
		v, err := parseEmbeddings(&resp, len(texts))
		if err != nil {
			return retry.Permanent(err)
		}
		vectors = v
		return nil
	})
	if err != nil {
		metrics.RemoteCallTotal.WithLabelValues(serviceName, "error").Inc()
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}

	metrics.RemoteCallTotal.WithLabelValues(serviceName, "success").Inc()
	return vectors, nil
}

// parseEmbeddings 按 text_index 排序并校验数量
func parseEmbeddings(resp *embedResponse, want int) ([][]float32, error) {
	if resp.Output == nil {
		return nil, httpx.Malformed("missing output")
	}
	items := resp.Output.Embeddings
	if len(items) != want {
		return nil, httpx.Malformed("expected %d embeddings, got %d", want, len(items))
	}

	sort.Slice(items, func(i, j int) bool { return items[i].TextIndex < items[j].TextIndex })

	vectors := make([][]float32, len(items))
	for i, item := range items {
		if item.TextIndex != i {
			return nil, httpx.Malformed("unexpected text_index %d", item.TextIndex)
		}
		if len(item.Embedding) == 0 {
			return nil, httpx.Malformed("empty embedding at index %d", i)
		}
		vectors[i] = item.Embedding
	}
	return vectors, nil
}

package embedding

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"

	"homepage-chat-api/internal/config"
	"homepage-chat-api/internal/domain/service"
)

// EinoEmbedder 将 Eino Embedder 适配为 service.Embedder，用于 OpenAI 兼容的向量服务
type EinoEmbedder struct {
	inner embedding.Embedder
}

var _ service.Embedder = (*EinoEmbedder)(nil)

// NewEinoEmbedder 创建基于 Eino 的 Embedder
func NewEinoEmbedder(ctx context.Context, cfg *config.EmbeddingConfig) (*EinoEmbedder, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("embedding base_url is required")
	}

	var dims *int
	if cfg.Dimension > 0 {
		d := cfg.Dimension
		dims = &d
	}

	inner, err := openai.NewEmbedder(ctx, &openai.EmbeddingConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: dims,
		Timeout:    cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create eino embedder: %w", err)
	}

	return NewEinoEmbedderFrom(inner), nil
}

// NewEinoEmbedderFrom 包装已有的 Eino Embedder
func NewEinoEmbedderFrom(inner embedding.Embedder) *EinoEmbedder {
	return &EinoEmbedder{inner: inner}
}

// Embed 生成向量并转换为 float32
func (e *EinoEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors, err := e.inner.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("eino embed failed: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("eino embed returned %d vectors for %d texts", len(vectors), len(texts))
	}

	out := make([][]float32, len(vectors))
	for i, v := range vectors {
		f := make([]float32, len(v))
		for j, x := range v {
			f[j] = float32(x)
		}
		out[i] = f
	}
	return out, nil
}

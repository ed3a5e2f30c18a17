// Package milvus 提供 Milvus 向量检索实现，作为 pgvector 之外的可选后端
package milvus

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"homepage-chat-api/internal/config"
)

var tracer = otel.Tracer("milvus")

const (
	hnswM              = 16
	hnswEfConstruction = 200
)

// Client Milvus 客户端
type Client struct {
	milvus client.Client
	config *config.MilvusConfig
}

// NewClient 创建 Milvus 客户端
func NewClient(ctx context.Context, cfg *config.MilvusConfig) (*Client, error) {
	mc := client.Config{
		Address: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
	}
	if cfg.User != "" && cfg.Password != "" {
		mc.Username = cfg.User
		mc.Password = cfg.Password
	}

	milvusClient, err := client.NewClient(ctx, mc)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	return &Client{
		milvus: milvusClient,
		config: cfg,
	}, nil
}

// Close 关闭 Milvus 连接
func (c *Client) Close() error {
	return c.milvus.Close()
}

// HealthCheck 健康检查
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "milvus.HealthCheck")
	defer span.End()

	if _, err := c.milvus.HasCollection(ctx, c.config.Collection); err != nil {
		span.RecordError(err)
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// EnsureCollection 确保集合存在并已加载，不存在时按 dim 建表并创建 HNSW 索引
func (c *Client) EnsureCollection(ctx context.Context, dim int) error {
	ctx, span := tracer.Start(ctx, "milvus.EnsureCollection",
		trace.WithAttributes(
			attribute.String("collection", c.config.Collection),
			attribute.Int("dim", dim),
		))
	defer span.End()

	has, err := c.milvus.HasCollection(ctx, c.config.Collection)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !has {
		if err := c.createCollection(ctx, dim); err != nil {
			span.RecordError(err)
			return err
		}
	}

	if err := c.milvus.LoadCollection(ctx, c.config.Collection, false); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

func (c *Client) createCollection(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("milvus collection %s does not exist and no dimension configured", c.config.Collection)
	}
	if err := c.milvus.CreateCollection(ctx, EmbeddingsSchema(c.config.Collection, dim), entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexHNSW(entity.COSINE, hnswM, hnswEfConstruction)
	if err != nil {
		return fmt.Errorf("failed to build index params: %w", err)
	}
	if err := c.milvus.CreateIndex(ctx, c.config.Collection, FieldVector, idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

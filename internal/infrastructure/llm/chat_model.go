// Package llm 提供对话模型的创建
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"homepage-chat-api/internal/config"
)

// NewChatModel 创建 OpenAI 兼容的流式对话模型
func NewChatModel(ctx context.Context, cfg *config.LLMConfig) (model.BaseChatModel, error) {
	if cfg.APIBase == "" {
		return nil, fmt.Errorf("llm api_base is required")
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.APIBase,
		Model:       cfg.Model,
		MaxTokens:   &maxTokens,
		Temperature: ptrFloat32(float32(cfg.Temperature)),
		Timeout:     timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create eino chat model: %w", err)
	}

	return chatModel, nil
}

func ptrFloat32(f float32) *float32 {
	return &f
}

// Package generation 基于检索上下文流式生成回答
package generation

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"homepage-chat-api/internal/domain/entity"
	"homepage-chat-api/internal/domain/service"
	"homepage-chat-api/pkg/logger"
	"homepage-chat-api/pkg/metrics"
)

// Result 一次生成的最终结果
type Result struct {
	Text string
	// Fallback 模型失败，Text 为摘录式回答
	Fallback bool
	// Completed 生产者正常结束；消费者取消时为 false
	Completed bool
}

// Stream 生成中的回答流
type Stream struct {
	chunks chan string
	done   chan struct{}
	result Result
}

// Chunks 回答片段，生产者结束后关闭
func (s *Stream) Chunks() <-chan string {
	return s.chunks
}

// Done 生产者退出后关闭
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Result 等待生产者退出并返回结果
func (s *Stream) Result() Result {
	<-s.done
	return s.result
}

// Stage 生成阶段
type Stage struct {
	model   model.BaseChatModel
	usage   service.UsageRecorder
	persona string
}

// NewStage 创建生成阶段
func NewStage(chatModel model.BaseChatModel, usage service.UsageRecorder, persona string) *Stage {
	return &Stage{
		model:   chatModel,
		usage:   usage,
		persona: persona,
	}
}

// GenerateStream 启动流式生成。
// 片段通过无缓冲通道逐个转发；ctx 取消后生产者立即退出，不记录用量。
func (s *Stage) GenerateStream(ctx context.Context, query string, docs []entity.Document, history []entity.ConversationTurn) *Stream {
	st := &Stream{
		chunks: make(chan string),
		done:   make(chan struct{}),
	}
	go s.produce(ctx, st, BuildMessages(s.persona, query, docs, history), docs)
	return st
}

// Generate 生成完整回答
func (s *Stage) Generate(ctx context.Context, query string, docs []entity.Document, history []entity.ConversationTurn) Result {
	st := s.GenerateStream(ctx, query, docs, history)
	for range st.Chunks() {
	}
	return st.Result()
}

func (s *Stage) produce(ctx context.Context, st *Stream, msgs []*schema.Message, docs []entity.Document) {
	start := time.Now()
	defer func() {
		close(st.chunks)
		close(st.done)
		metrics.PipelineStageDuration.WithLabelValues("generate").Observe(time.Since(start).Seconds())
	}()

	var answer strings.Builder
	send := func(chunk string) bool {
		select {
		case st.chunks <- chunk:
			return true
		case <-ctx.Done():
			return false
		}
	}

	err := s.stream(ctx, msgs, func(chunk string) bool {
		if !send(chunk) {
			return false
		}
		answer.WriteString(chunk)
		return true
	})

	if ctx.Err() != nil {
		logger.Info(ctx, "generation abandoned by consumer", "emitted_runes", utf8.RuneCountInString(answer.String()))
		metrics.RemoteCallTotal.WithLabelValues("llm", "cancelled").Inc()
		return
	}

	if err != nil {
		logger.Error(ctx, "llm generation failed, using extractive fallback", err)
		metrics.RemoteCallTotal.WithLabelValues("llm", "error").Inc()
		metrics.FallbackTotal.WithLabelValues("generation").Inc()
		s.usage.Increment(ctx, entity.MetricLLMFallback, 1)

		fallback := FallbackAnswer(docs)
		if !send(fallback) {
			return
		}
		st.result = Result{Text: fallback, Fallback: true, Completed: true}
		return
	}

	text := answer.String()
	metrics.RemoteCallTotal.WithLabelValues("llm", "success").Inc()
	s.usage.Increment(ctx, entity.MetricLLMTokens, int64(utf8.RuneCountInString(text)/4))
	s.usage.Increment(ctx, entity.MetricLLMRequests, 1)
	st.result = Result{Text: text, Completed: true}
}

// stream 读取模型增量，emit 返回 false 时停止
func (s *Stage) stream(ctx context.Context, msgs []*schema.Message, emit func(string) bool) error {
	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      "answer",
		Type:      "ChatModel",
		Component: components.ComponentOfChatModel,
	})
	reader, err := s.model.Stream(ctx, msgs)
	if err != nil {
		return err
	}
	defer reader.Close()

	for {
		msg, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		if !emit(msg.Content) {
			return ctx.Err()
		}
	}
}

// Package chat 编排问答流水线：输入校验、缓存、检索、重排与生成
package chat

import (
	"context"
	"time"
	"unicode/utf8"

	"homepage-chat-api/internal/application/cache"
	"homepage-chat-api/internal/application/generation"
	"homepage-chat-api/internal/application/rerank"
	"homepage-chat-api/internal/application/retrieval"
	"homepage-chat-api/internal/domain/entity"
	apperrors "homepage-chat-api/pkg/errors"
	"homepage-chat-api/pkg/logger"
	"homepage-chat-api/pkg/metrics"
)

const (
	// minCacheableRunes 短于此长度的回答不缓存
	minCacheableRunes = 10
	sourceCount       = 2
	sourceExcerpt     = 100
)

// Options 编排参数
type Options struct {
	TopK             int
	RerankTopN       int
	MaxMessageLength int
}

// Request 一次提问
type Request struct {
	Message string
	History []entity.ConversationTurn
}

// Source 回答引用的文档摘录
type Source struct {
	Content string `json:"content"`
}

// Reply 非流式回答
type Reply struct {
	Text    string
	Sources []Source
	Cached  bool
}

// Orchestrator 问答流水线编排
type Orchestrator struct {
	cache     *cache.Manager
	retriever *retrieval.Engine
	reranker  *rerank.Stage
	generator *generation.Stage
	opts      Options
}

// NewOrchestrator 创建编排器
func NewOrchestrator(cacheMgr *cache.Manager, retriever *retrieval.Engine, reranker *rerank.Stage, generator *generation.Stage, opts Options) *Orchestrator {
	if opts.TopK <= 0 {
		opts.TopK = retrieval.DefaultTopK
	}
	if opts.RerankTopN <= 0 {
		opts.RerankTopN = rerank.DefaultTopN
	}
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = DefaultMaxMessageLength
	}
	return &Orchestrator{
		cache:     cacheMgr,
		retriever: retriever,
		reranker:  reranker,
		generator: generator,
		opts:      opts,
	}
}

// Answer 非流式回答，命中答案缓存时不调用任何下游
func (o *Orchestrator) Answer(ctx context.Context, req Request) (*Reply, error) {
	query, historyHash, err := o.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	if text, ok := o.cache.GetAnswer(ctx, query, historyHash); ok {
		logger.Info(ctx, "answer cache hit", "query", logger.MaskContent(query, 50))
		metrics.PipelineRequestsTotal.WithLabelValues("sync", "cached").Inc()
		return &Reply{Text: text, Sources: []Source{}, Cached: true}, nil
	}

	docs, err := o.documents(ctx, query)
	if err != nil {
		metrics.PipelineRequestsTotal.WithLabelValues("sync", "error").Inc()
		return nil, err
	}

	res := o.generator.Generate(ctx, query, docs, req.History)
	if !res.Completed {
		metrics.PipelineRequestsTotal.WithLabelValues("sync", "aborted").Inc()
		return nil, ctx.Err()
	}
	o.finalize(ctx, "sync", query, historyHash, res)

	return &Reply{Text: res.Text, Sources: sources(docs)}, nil
}

// Stream 流式回答。答案缓存对流式请求不生效。
// 调用方必须在读完后调用 Complete，或在放弃时调用 Close。
func (o *Orchestrator) Stream(ctx context.Context, req Request) (*AnswerStream, error) {
	query, historyHash, err := o.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	docs, err := o.documents(ctx, query)
	if err != nil {
		metrics.PipelineRequestsTotal.WithLabelValues("stream", "error").Inc()
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	gen := o.generator.GenerateStream(streamCtx, query, docs, req.History)

	return &AnswerStream{
		gen:    gen,
		cancel: cancel,
		finalize: func(ctx context.Context, res generation.Result) {
			o.finalize(ctx, "stream", query, historyHash, res)
		},
	}, nil
}

// prepare 清洗输入、拦截注入并计算历史摘要
func (o *Orchestrator) prepare(ctx context.Context, req Request) (string, string, error) {
	query := Sanitize(req.Message, o.opts.MaxMessageLength)
	if query == "" {
		return "", "", apperrors.ErrInvalidParam.WithDetail("message is empty")
	}
	if DetectInjection(query) {
		logger.Warn(ctx, "prompt injection detected", "query", logger.MaskContent(query, 100))
		return "", "", apperrors.ErrContentPolicy
	}
	return query, cache.HistoryHash(req.History), nil
}

// documents 检索并按需重排
func (o *Orchestrator) documents(ctx context.Context, query string) ([]entity.Document, error) {
	docs, err := o.retriever.RetrieveWithFallback(ctx, query, o.opts.TopK)
	if err != nil {
		return nil, err
	}
	if !rerank.ShouldRerank(docs) {
		return rerank.Head(docs, o.opts.RerankTopN), nil
	}
	return o.reranker.Rerank(ctx, query, docs, o.opts.RerankTopN), nil
}

func (o *Orchestrator) finalize(ctx context.Context, mode, query, historyHash string, res generation.Result) {
	start := time.Now()
	defer func() {
		metrics.PipelineStageDuration.WithLabelValues("finalize").Observe(time.Since(start).Seconds())
	}()

	if res.Fallback {
		metrics.PipelineRequestsTotal.WithLabelValues(mode, "fallback").Inc()
		return
	}
	if utf8.RuneCountInString(res.Text) > minCacheableRunes {
		o.cache.SetAnswer(context.WithoutCancel(ctx), query, historyHash, res.Text)
	}
	metrics.PipelineRequestsTotal.WithLabelValues(mode, "completed").Inc()
}

func sources(docs []entity.Document) []Source {
	n := min(len(docs), sourceCount)
	out := make([]Source, 0, n)
	for _, d := range docs[:n] {
		content := d.Content
		if r := []rune(content); len(r) > sourceExcerpt {
			content = string(r[:sourceExcerpt])
		}
		out = append(out, Source{Content: content})
	}
	return out
}

package chat

import (
	"context"
	"sync"

	"homepage-chat-api/internal/application/generation"
)

// AnswerStream 两阶段回答流：先消费 Chunks，完整读完后调用 Complete 落缓存。
// 中途放弃时调用 Close，不会写入缓存也不记录生成用量。
type AnswerStream struct {
	gen      *generation.Stream
	cancel   context.CancelFunc
	finalize func(ctx context.Context, res generation.Result)
	once     sync.Once
}

// Chunks 回答片段
func (s *AnswerStream) Chunks() <-chan string {
	return s.gen.Chunks()
}

// Complete 等待生产者结束，仅在正常结束时执行收尾。返回是否完成收尾
func (s *AnswerStream) Complete(ctx context.Context) bool {
	defer s.Close()

	select {
	case <-s.gen.Done():
	case <-ctx.Done():
		return false
	}

	res := s.gen.Result()
	if !res.Completed {
		return false
	}

	finalized := false
	s.once.Do(func() {
		s.finalize(ctx, res)
		finalized = true
	})
	return finalized
}

// Close 取消生成，可重复调用
func (s *AnswerStream) Close() {
	s.cancel()
}

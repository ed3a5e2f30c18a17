package chat

import (
	"context"

	"homepage-chat-api/internal/application/cache"
)

// SuggestionService 推荐问题
type SuggestionService struct {
	cache    *cache.Manager
	defaults []string
}

// NewSuggestionService 创建推荐问题服务
func NewSuggestionService(cacheMgr *cache.Manager, defaults []string) *SuggestionService {
	return &SuggestionService{cache: cacheMgr, defaults: defaults}
}

// List 优先返回缓存，未命中时回填配置中的默认问题
func (s *SuggestionService) List(ctx context.Context) []string {
	if cached, ok := s.cache.GetSuggestions(ctx); ok && len(cached) > 0 {
		return cached
	}
	out := append([]string(nil), s.defaults...)
	if out == nil {
		out = []string{}
	}
	s.cache.SetSuggestions(ctx, out)
	return out
}

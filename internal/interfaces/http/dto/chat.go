package dto

import (
	"homepage-chat-api/internal/application/chat"
	"homepage-chat-api/internal/domain/entity"
)

// ChatMessage 历史消息
type ChatMessage struct {
	Role    string `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content"`
}

// ChatRequest 对话请求
type ChatRequest struct {
	Message  string        `json:"message" binding:"required,min=1,max=2000"`
	Messages []ChatMessage `json:"messages" binding:"omitempty,max=20,dive"`
	// Stream 缺省为 true
	Stream *bool `json:"stream"`
}

// IsStream 是否以 SSE 返回
func (r *ChatRequest) IsStream() bool {
	return r.Stream == nil || *r.Stream
}

// ToRequest 转换为编排层请求
func (r *ChatRequest) ToRequest() chat.Request {
	history := make([]entity.ConversationTurn, 0, len(r.Messages))
	for _, m := range r.Messages {
		role := entity.Role(m.Role)
		if !role.Valid() || m.Content == "" {
			continue
		}
		history = append(history, entity.ConversationTurn{
			Role:    role,
			Content: m.Content,
		})
	}
	return chat.Request{
		Message: r.Message,
		History: history,
	}
}

// ChatResponse 非流式对话响应
type ChatResponse struct {
	Response string        `json:"response"`
	Sources  []chat.Source `json:"sources"`
}

// NewChatResponse 由编排结果构造响应
func NewChatResponse(reply *chat.Reply) ChatResponse {
	sources := reply.Sources
	if sources == nil {
		sources = []chat.Source{}
	}
	return ChatResponse{
		Response: reply.Text,
		Sources:  sources,
	}
}

// SuggestionsResponse 推荐问题
type SuggestionsResponse struct {
	Suggestions []string `json:"suggestions"`
}

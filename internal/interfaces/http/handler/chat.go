// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"homepage-chat-api/internal/application/chat"
	"homepage-chat-api/internal/interfaces/http/dto"
	"homepage-chat-api/pkg/logger"
	"homepage-chat-api/pkg/metrics"
)

const sseDone = "[DONE]"

// answerStream 两阶段回答流
type answerStream interface {
	Chunks() <-chan string
	Complete(ctx context.Context) bool
	Close()
}

// ChatHandler 对话处理器
type ChatHandler struct {
	answer      func(ctx context.Context, req chat.Request) (*chat.Reply, error)
	openStream  func(ctx context.Context, req chat.Request) (answerStream, error)
	suggestions *chat.SuggestionService
}

// NewChatHandler 创建对话处理器
func NewChatHandler(orch *chat.Orchestrator, suggestions *chat.SuggestionService) *ChatHandler {
	return &ChatHandler{
		answer: orch.Answer,
		openStream: func(ctx context.Context, req chat.Request) (answerStream, error) {
			s, err := orch.Stream(ctx, req)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		suggestions: suggestions,
	}
}

// Chat 对话接口
// @Summary 对话
// @Description 基于个人资料检索回答问题，stream=true 时以 SSE 返回
// @Tags Chat
// @Accept json
// @Produce json,text/event-stream
// @Param body body dto.ChatRequest true "对话请求"
// @Success 200 {object} dto.ChatResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Router /api/chat [post]
func (h *ChatHandler) Chat(c *gin.Context) {
	var req dto.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.ErrorWithDetail(c, http.StatusBadRequest, "invalid request", &dto.ErrorDetail{Details: err.Error()})
		return
	}

	if req.IsStream() {
		h.stream(c, req.ToRequest())
		return
	}

	reply, err := h.answer(c.Request.Context(), req.ToRequest())
	if err != nil {
		dto.AppError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewChatResponse(reply))
}

// stream 以 SSE 逐段输出，完整读完后写入结束标记并收尾
func (h *ChatHandler) stream(c *gin.Context, req chat.Request) {
	ctx := c.Request.Context()

	s, err := h.openStream(ctx, req)
	if err != nil {
		dto.AppError(c, err)
		return
	}
	defer s.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	drained := false
	c.Stream(func(w io.Writer) bool {
		select {
		case chunk, ok := <-s.Chunks():
			if !ok {
				drained = true
				return false
			}
			writeEvent(w, chunk)
			return true
		case <-ctx.Done():
			return false
		}
	})

	if !drained || ctx.Err() != nil {
		metrics.PipelineRequestsTotal.WithLabelValues("stream", "aborted").Inc()
		logger.Debug(ctx, "client disconnected before stream finished")
		return
	}

	writeEvent(c.Writer, sseDone)
	c.Writer.Flush()
	s.Complete(ctx)
}

// Suggestions 推荐问题
// @Summary 推荐问题
// @Tags Chat
// @Produce json
// @Success 200 {object} dto.SuggestionsResponse
// @Router /api/suggestions [get]
func (h *ChatHandler) Suggestions(c *gin.Context) {
	c.JSON(http.StatusOK, dto.SuggestionsResponse{
		Suggestions: h.suggestions.List(c.Request.Context()),
	})
}

// writeEvent 写出一条 SSE 事件，多行内容拆成连续的 data 行
func writeEvent(w io.Writer, data string) {
	data = strings.ReplaceAll(data, "\r\n", "\n")
	for _, line := range strings.Split(data, "\n") {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = io.WriteString(w, "\n")
}

// Package middleware 提供 HTTP 中间件
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	apperrors "homepage-chat-api/pkg/errors"
	"homepage-chat-api/pkg/logger"
)

// Recovery Panic 恢复中间件
// 流式响应已写出头部时只记录日志，不再改写状态码。
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			logger.Error(c.Request.Context(), "panic recovered",
				fmt.Errorf("%v", rec),
				"stack", string(debug.Stack()),
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"code":       apperrors.CodeInternalError,
				"message":    "internal server error",
				"request_id": c.GetString("request_id"),
			})
		}()

		c.Next()
	}
}

package middleware

import (
	"context"
	"net/http"

	"kama_chat_client/pkg/errorx"

	"github.com/gin-gonic/gin"
)

// SessionLookup 返回当前登录用户，未登录时返回空串
type SessionLookup func(ctx context.Context) (string, error)

// RequireSession 桥接接口需要已登录的会话
// 将用户 ID 存入上下文，供后续 Handler 使用
func RequireSession(lookup SessionLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		userId, err := lookup(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"code": errorx.GetCode(err),
				"msg":  err.Error(),
			})
			return
		}
		if userId == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": errorx.CodeUnauthorized,
				"msg":  "尚未登录",
			})
			return
		}
		c.Set("user_id", userId)
		c.Next()
	}
}

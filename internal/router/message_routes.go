package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterMessageRoutes 当前会话的消息与输入状态
func (rt *Router) RegisterMessageRoutes(rg *gin.RouterGroup) {
	rg.GET("/messages", rt.handlers.Message.List)
	rg.POST("/messages", rt.handlers.Message.Send)

	typingGroup := rg.Group("/typing")
	{
		typingGroup.POST("/start", rt.handlers.Message.StartTyping)
		typingGroup.POST("/stop", rt.handlers.Message.StopTyping)
	}
}

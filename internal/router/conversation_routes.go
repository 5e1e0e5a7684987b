package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterConversationRoutes 会话列表、选中与未读
func (rt *Router) RegisterConversationRoutes(rg *gin.RouterGroup) {
	convGroup := rg.Group("/conversations")
	{
		convGroup.GET("", rt.handlers.Conversation.List)               // 会话列表
		convGroup.POST("/load", rt.handlers.Conversation.Load)         // 重新拉取会话列表
		convGroup.POST("/access", rt.handlers.Conversation.Access)     // 打开与某用户的单聊
		convGroup.POST("/deselect", rt.handlers.Conversation.Deselect) // 关闭当前会话
		convGroup.POST("/:id/select", rt.handlers.Conversation.Select) // 打开会话
		convGroup.GET("/:id/unread", rt.handlers.Conversation.Unread)  // 某会话未读数
		convGroup.GET("/:id/typing", rt.handlers.Conversation.Typing)  // 对方是否正在输入
	}

	rg.GET("/unread/total", rt.handlers.Conversation.TotalUnread)
	rg.GET("/notifications", rt.handlers.Conversation.Notifications)
}

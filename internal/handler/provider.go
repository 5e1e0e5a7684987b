// Package handler 本地桥接服务的请求处理器
// 本文件定义 Handler 聚合结构和构造函数
package handler

import (
	"kama_chat_client/internal/service"
)

// Handlers 聚合所有 Handler 实例，Router 通过它访问各个 Handler
type Handlers struct {
	Conversation *ConversationHandler
	Message      *MessageHandler
	Contact      *ContactHandler
	Status       *StatusHandler
	Session      *SessionHandler
}

// NewHandlers 创建并注入所有 Handler 实例
func NewHandlers(svc *service.Services, theme string) *Handlers {
	return &Handlers{
		Conversation: NewConversationHandler(svc.Chat),
		Message:      NewMessageHandler(svc.Chat),
		Contact:      NewContactHandler(svc.Contact),
		Status:       NewStatusHandler(svc.Status),
		Session:      NewSessionHandler(svc.Chat, svc.Contact, svc.Status, theme),
	}
}

// Package service 定义桥接层依赖的业务接口
// Handler 只依赖这些接口，具体实现由 chat.Engine、contact.Service、status.Service 提供
package service

import (
	"context"

	"kama_chat_client/internal/dto/respond"
	"kama_chat_client/internal/model"
	"kama_chat_client/internal/service/chat"
)

// ChatService 会话、消息、未读与输入状态
type ChatService interface {
	SessionInfo(ctx context.Context) (chat.SessionInfo, error)
	SelfId(ctx context.Context) (string, error)
	Logout(ctx context.Context) error

	// 会话列表
	LoadConversations(ctx context.Context) error
	ConversationsState(ctx context.Context) (chat.ConversationsState, error)
	AccessConversation(ctx context.Context, otherUserId string) (model.Conversation, error)
	SelectConversation(ctx context.Context, conversationId string) error
	DeselectConversation(ctx context.Context) error

	// 未读
	UnreadCountFor(ctx context.Context, conversationId string) (int, error)
	TotalUnreadCount(ctx context.Context) (int, error)
	Notifications(ctx context.Context) ([]model.Notification, error)

	// 消息与输入状态
	Messages(ctx context.Context) (chat.MessagesState, error)
	SendMessage(ctx context.Context, body string) (model.Message, error)
	StartTyping(ctx context.Context) error
	StopTyping(ctx context.Context) error
	IsPeerTyping(ctx context.Context, conversationId string) (bool, error)
}

// ContactService 联系人搜索
type ContactService interface {
	Search(ctx context.Context, query string) ([]model.Participant, error)
	Clear()
	State() respond.ContactSearchRespond
}

// StatusService 联系人动态
type StatusService interface {
	Fetch(ctx context.Context) (respond.StatusFeedRespond, error)
	Feed() respond.StatusFeedRespond
	MarkViewed(ctx context.Context, statusId string) error
	Viewers(ctx context.Context, statusId string) []model.Participant
	Reset()
}

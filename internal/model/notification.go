// Package model 定义客户端状态核心使用的领域模型
// 本文件定义未读通知模型
package model

// Notification 未读标记
// 与已加载的消息列表解耦，即使从未拉取过该会话的消息，未读数依然有效
type Notification struct {
	MessageId      string `json:"message_id"` // 等于被引用消息的 ID
	ConversationId string `json:"conversation_id"`
}

// Package model 定义客户端状态核心使用的领域模型
// 本文件定义消息模型
package model

import (
	"time"
	"unicode/utf8"

	"kama_chat_client/pkg/constants"
	"kama_chat_client/pkg/enum/message/message_status_enum"
)

// Message 单条聊天消息，属于且仅属于一个会话
type Message struct {
	// Id 消息全局唯一标识
	// 本地乐观消息在服务端确认前使用 LocalId 作为 Id
	Id string `json:"id"`
	// LocalId 本地生成的雪花 ID，仅乐观发送的消息有值
	LocalId        string    `json:"local_id,omitempty"`
	ConversationId string    `json:"conversation_id"`
	SenderId       string    `json:"sender_id"`
	SenderName     string    `json:"sender_name,omitempty"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
	// Status 投递状态，参见 pkg/enum/message/message_status_enum
	Status int8 `json:"status"`
}

// StatusName 返回投递状态的字符串形式
func (m Message) StatusName() string {
	return message_status_enum.Name(m.Status)
}

// Pending 是否仍在等待服务端确认
func (m Message) Pending() bool {
	return m.Status == message_status_enum.Pending
}

// Summary 生成会话列表摘要，排序时间戳由调用方给出
// 消息没有发送时间时以排序时间戳代替
func (m Message) Summary(orderAt time.Time) MessageSummary {
	sentAt := m.CreatedAt
	if sentAt.IsZero() {
		sentAt = orderAt
	}
	return MessageSummary{
		MessageId: m.Id,
		SenderId:  m.SenderId,
		Snippet:   Snippet(m.Body),
		Timestamp: sentAt,
		OrderAt:   orderAt,
	}
}

// Snippet 按字符截断消息正文
func Snippet(body string) string {
	if utf8.RuneCountInString(body) <= constants.SNIPPET_MAX_RUNES {
		return body
	}
	runes := []rune(body)
	return string(runes[:constants.SNIPPET_MAX_RUNES]) + "…"
}

// Package model 定义客户端状态核心使用的领域模型
// 本文件定义本地快照，以及快照在 sqlite 中的表结构
package model

import "time"

// Snapshot 某个用户的本地快照
// 只包含会话列表和未读通知，消息正文每次打开会话时重新拉取
type Snapshot struct {
	UserId        string         `json:"user_id"`
	Conversations []Conversation `json:"conversations"`
	Notifications []Notification `json:"notifications"`
	SavedAt       time.Time      `json:"saved_at"`
}

// ConversationRecord 会话快照行
// 对应数据库 conversation_snapshot 表
type ConversationRecord struct {
	// UserId + ConversationId 联合主键
	UserId         string `gorm:"column:user_id;primaryKey;type:varchar(64)"`
	ConversationId string `gorm:"column:conversation_id;primaryKey;type:varchar(64)"`

	// Position 快照时在有序列表中的位置，恢复时按它插入以保留并列时的先后顺序
	Position int `gorm:"column:position;not null"`

	// Payload 会话 JSON
	Payload string `gorm:"column:payload;type:TEXT;not null"`

	SavedAt time.Time `gorm:"column:saved_at"`
}

// TableName 指定表名
func (ConversationRecord) TableName() string {
	return "conversation_snapshot"
}

// NotificationRecord 未读通知快照行
// 对应数据库 notification_snapshot 表
type NotificationRecord struct {
	UserId         string `gorm:"column:user_id;primaryKey;type:varchar(64)"`
	MessageId      string `gorm:"column:message_id;primaryKey;type:varchar(64)"`
	ConversationId string `gorm:"column:conversation_id;index;type:varchar(64);not null"`
	Position       int    `gorm:"column:position;not null"`
}

// TableName 指定表名
func (NotificationRecord) TableName() string {
	return "notification_snapshot"
}

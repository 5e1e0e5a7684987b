// Package model 定义客户端状态核心使用的领域模型
// 本文件定义会话模型，会话列表按最新消息时间排序
package model

import (
	"slices"
	"time"
)

// Participant 会话参与者
type Participant struct {
	Id       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	// Self 标记该参与者是否为当前登录用户，由注册表在写入时根据本机身份计算
	Self bool `json:"self"`
}

// MessageSummary 会话列表中展示的最新消息摘要
type MessageSummary struct {
	MessageId string `json:"message_id"`
	SenderId  string `json:"sender_id"`
	Snippet   string `json:"snippet"`
	// Timestamp 消息发送时间
	Timestamp time.Time `json:"timestamp"`
	// OrderAt 排序时间戳，由事件协调器按应用顺序盖章；为零值时按 Timestamp 排序
	OrderAt time.Time `json:"order_at,omitempty"`
}

// SortKey 排序用时间戳
func (s MessageSummary) SortKey() time.Time {
	if s.OrderAt.IsZero() {
		return s.Timestamp
	}
	return s.OrderAt
}

// Conversation 会话（单聊或群聊）
type Conversation struct {
	Id            string          `json:"id"`
	Name          string          `json:"name,omitempty"` // 群聊显示名称，单聊为空
	IsGroup       bool            `json:"is_group"`
	Participants  []Participant   `json:"participants"`
	LatestMessage *MessageSummary `json:"latest_message,omitempty"`
}

// Clone 深拷贝，防止调用方修改注册表内部状态
func (c Conversation) Clone() Conversation {
	out := c
	out.Participants = slices.Clone(c.Participants)
	if c.LatestMessage != nil {
		latest := *c.LatestMessage
		out.LatestMessage = &latest
	}
	return out
}

// Peer 返回单聊中的对方；群聊或找不到时返回 false
func (c Conversation) Peer() (Participant, bool) {
	if c.IsGroup {
		return Participant{}, false
	}
	for _, p := range c.Participants {
		if !p.Self {
			return p, true
		}
	}
	return Participant{}, false
}

// DisplayName 群聊显示群名，单聊显示对方用户名
func (c Conversation) DisplayName() string {
	if c.IsGroup {
		return c.Name
	}
	if peer, ok := c.Peer(); ok {
		return peer.Username
	}
	return c.Name
}

// LatestAt 返回排序用时间戳，没有最新消息时为零值
func (c Conversation) LatestAt() time.Time {
	if c.LatestMessage == nil {
		return time.Time{}
	}
	return c.LatestMessage.SortKey()
}

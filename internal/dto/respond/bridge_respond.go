package respond

import "kama_chat_client/internal/model"

// ConversationView 会话列表项
// 使用位置:
//   - internal/handler/conversation_handler.go: ListConversations
type ConversationView struct {
	model.Conversation
	DisplayName string `json:"display_name"`
	Unread      int    `json:"unread"`
	Selected    bool   `json:"selected"`
}

// ConversationListRespond 会话列表及其加载状态
type ConversationListRespond struct {
	State         string             `json:"state"`
	Error         string             `json:"error,omitempty"`
	Conversations []ConversationView `json:"conversations"`
}

// MessageListRespond 当前打开会话的消息列表
type MessageListRespond struct {
	ConversationId string          `json:"conversation_id"`
	State          string          `json:"state"`
	Error          string          `json:"error,omitempty"`
	Messages       []model.Message `json:"messages"`
}

// UnreadRespond 未读数
type UnreadRespond struct {
	ConversationId string `json:"conversation_id,omitempty"`
	Count          int    `json:"count"`
}

// TypingRespond 对方是否正在输入
type TypingRespond struct {
	ConversationId string `json:"conversation_id"`
	Typing         bool   `json:"typing"`
}

// SessionRespond 当前会话身份与连接状态
type SessionRespond struct {
	UserId        string   `json:"user_id"`
	State         string   `json:"state"`
	Connected     bool     `json:"connected"`
	Theme         string   `json:"theme"`
	Subscriptions []string `json:"subscriptions"`
	Selected      string   `json:"selected,omitempty"`
}

// ContactSearchRespond 联系人搜索结果
type ContactSearchRespond struct {
	Query     string              `json:"query"`
	Searching bool                `json:"searching"`
	Results   []model.Participant `json:"results"`
}

// StatusFeedRespond 动态列表
type StatusFeedRespond struct {
	Loading bool                `json:"loading"`
	Mine    *model.StatusGroup  `json:"mine,omitempty"`
	Others  []model.StatusGroup `json:"others"`
	Viewed  []string            `json:"viewed"`
}

// Package ledger 实现未读通知账本
// 按会话记录未读消息 ID，与消息正文和已加载的消息列表无关
// 账本本身不做并发保护，只允许在事件循环中访问
package ledger

import (
	"cmp"
	"slices"

	"kama_chat_client/internal/model"
)

// Ledger 未读通知账本
type Ledger struct {
	// byConversation 会话 ID -> 消息 ID 集合
	byConversation map[string]map[string]struct{}
	// order 记录每个会话内通知的到达顺序，用于快照和展示
	order map[string][]string
	total int
}

// New 创建空账本
func New() *Ledger {
	return &Ledger{
		byConversation: make(map[string]map[string]struct{}),
		order:          make(map[string][]string),
	}
}

// Record 记录一条未读通知
// 同一 (会话, 消息) 已存在时不做任何事并返回 false
func (l *Ledger) Record(conversationId, messageId string) bool {
	if conversationId == "" || messageId == "" {
		return false
	}
	set, ok := l.byConversation[conversationId]
	if !ok {
		set = make(map[string]struct{})
		l.byConversation[conversationId] = set
	}
	if _, exists := set[messageId]; exists {
		return false
	}
	set[messageId] = struct{}{}
	l.order[conversationId] = append(l.order[conversationId], messageId)
	l.total++
	return true
}

// Clear 删除某会话的全部通知，返回删除的数量
func (l *Ledger) Clear(conversationId string) int {
	set, ok := l.byConversation[conversationId]
	if !ok {
		return 0
	}
	removed := len(set)
	delete(l.byConversation, conversationId)
	delete(l.order, conversationId)
	l.total -= removed
	return removed
}

// CountFor 某会话的未读数，只访问该会话自己的条目
func (l *Ledger) CountFor(conversationId string) int {
	return len(l.byConversation[conversationId])
}

// TotalCount 全局未读数
func (l *Ledger) TotalCount() int {
	return l.total
}

// Has 判断某条通知是否存在
func (l *Ledger) Has(conversationId, messageId string) bool {
	_, ok := l.byConversation[conversationId][messageId]
	return ok
}

// Entries 导出全部通知，会话之间无固定顺序，会话内按到达顺序
func (l *Ledger) Entries() []model.Notification {
	out := make([]model.Notification, 0, l.total)
	for conversationId, ids := range l.order {
		for _, id := range ids {
			out = append(out, model.Notification{MessageId: id, ConversationId: conversationId})
		}
	}
	slices.SortStableFunc(out, func(a, b model.Notification) int {
		return cmp.Compare(a.ConversationId, b.ConversationId)
	})
	return out
}

// Restore 从快照恢复，已存在的条目会被跳过
func (l *Ledger) Restore(entries []model.Notification) int {
	restored := 0
	for _, n := range entries {
		if l.Record(n.ConversationId, n.MessageId) {
			restored++
		}
	}
	return restored
}

// Reset 清空账本
func (l *Ledger) Reset() {
	l.byConversation = make(map[string]map[string]struct{})
	l.order = make(map[string][]string)
	l.total = 0
}

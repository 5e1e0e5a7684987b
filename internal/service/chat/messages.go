// Package chat 实现客户端聊天核心：事件协调器、消息列表、输入状态以及单线程事件循环
// messages.go
// 核心职责：当前打开会话的消息列表
// 1. 只追加，不按时间重排已追加的消息
// 2. 按消息 ID 去重
// 3. 每次切换会话开启新的一代 (generation)，过期的拉取结果直接丢弃
package chat

import (
	"context"
	"slices"

	"kama_chat_client/internal/model"
	"kama_chat_client/pkg/enum/load_state_enum"
	"kama_chat_client/pkg/enum/message/message_status_enum"
)

// MessagesState 消息列表的只读视图
type MessagesState struct {
	ConversationId string
	State          int8
	Err            error
	Messages       []model.Message
}

// MessageList 当前打开会话的消息列表，只在事件循环中访问
type MessageList struct {
	conversationId string
	generation     uint64
	state          int8
	err            error
	items          []model.Message
	index          map[string]int // 消息 ID -> 下标
	cancel         context.CancelFunc
}

// NewMessageList 创建空列表
func NewMessageList() *MessageList {
	return &MessageList{index: make(map[string]int)}
}

// Begin 切换到新会话并进入 Loading，取消上一次未完成的拉取
// 返回本次拉取的代号
func (l *MessageList) Begin(conversationId string, cancel context.CancelFunc) uint64 {
	l.cancelFetch()
	l.generation++
	l.conversationId = conversationId
	l.state = load_state_enum.Loading
	l.err = nil
	l.items = nil
	l.index = make(map[string]int)
	l.cancel = cancel
	return l.generation
}

// Clear 关闭当前会话
func (l *MessageList) Clear() {
	l.cancelFetch()
	l.generation++
	l.conversationId = ""
	l.state = load_state_enum.Idle
	l.err = nil
	l.items = nil
	l.index = make(map[string]int)
}

// ConversationId 列表所属会话
func (l *MessageList) ConversationId() string {
	return l.conversationId
}

// Contains 列表中是否已有该消息
func (l *MessageList) Contains(messageId string) bool {
	_, ok := l.index[messageId]
	return ok
}

// Len 消息数量
func (l *MessageList) Len() int {
	return len(l.items)
}

// Append 追加一条消息
// 不属于当前会话或 ID 已存在时返回 false
func (l *MessageList) Append(msg model.Message) bool {
	if l.conversationId == "" || msg.ConversationId != l.conversationId || msg.Id == "" {
		return false
	}
	if _, ok := l.index[msg.Id]; ok {
		return false
	}
	l.index[msg.Id] = len(l.items)
	l.items = append(l.items, msg)
	return true
}

// ApplyFetch 写入拉取到的历史消息
// 会话或代号不匹配时视为过期结果，返回 false 且不做任何修改
// 加载期间实时追加的消息排在历史消息之后
func (l *MessageList) ApplyFetch(conversationId string, generation uint64, fetched []model.Message) bool {
	if conversationId != l.conversationId || generation != l.generation {
		return false
	}
	merged := make([]model.Message, 0, len(fetched)+len(l.items))
	index := make(map[string]int, len(fetched)+len(l.items))
	for _, batch := range [][]model.Message{fetched, l.items} {
		for _, m := range batch {
			if m.Id == "" {
				continue
			}
			if _, ok := index[m.Id]; ok {
				continue
			}
			index[m.Id] = len(merged)
			merged = append(merged, m)
		}
	}
	l.items = merged
	l.index = index
	l.state = load_state_enum.Ready
	l.err = nil
	l.cancel = nil
	return true
}

// FailFetch 记录拉取失败，过期结果返回 false
func (l *MessageList) FailFetch(conversationId string, generation uint64, err error) bool {
	if conversationId != l.conversationId || generation != l.generation {
		return false
	}
	l.state = load_state_enum.Error
	l.err = err
	l.cancel = nil
	return true
}

// Promote 把乐观消息就地替换为服务端确认的消息
// 若推送回显已先到达，移除回显，只保留乐观消息所在位置
func (l *MessageList) Promote(localId string, confirmed model.Message) bool {
	pos, ok := l.index[localId]
	if !ok {
		return false
	}
	confirmed.LocalId = localId
	if confirmed.Status == message_status_enum.Pending {
		confirmed.Status = message_status_enum.Sent
	}
	l.items[pos] = confirmed
	if echo, ok := l.index[confirmed.Id]; ok && echo != pos {
		l.items = slices.Delete(l.items, echo, echo+1)
	}
	l.reindex()
	return true
}

// FailPending 把乐观消息标记为发送失败
func (l *MessageList) FailPending(localId string) bool {
	pos, ok := l.index[localId]
	if !ok || !l.items[pos].Pending() {
		return false
	}
	l.items[pos].Status = message_status_enum.Failed
	return true
}

// Snapshot 返回当前列表的拷贝
func (l *MessageList) Snapshot() MessagesState {
	return MessagesState{
		ConversationId: l.conversationId,
		State:          l.state,
		Err:            l.err,
		Messages:       slices.Clone(l.items),
	}
}

func (l *MessageList) reindex() {
	l.index = make(map[string]int, len(l.items))
	for i, m := range l.items {
		l.index[m.Id] = i
	}
}

func (l *MessageList) cancelFetch() {
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}

// Package registry 实现会话注册表
// 保存本地已知的全部会话、会话列表顺序以及"当前打开的会话"指针
// 注册表本身不做并发保护，只允许在事件循环中访问
package registry

import (
	"cmp"
	"iter"
	"slices"
	"time"

	"kama_chat_client/internal/model"
	"kama_chat_client/pkg/errorx"
)

// SelectHook 选中会话时同步触发的副作用（清空未读、拉取历史等）
type SelectHook func(conversationId string)

type entry struct {
	conv model.Conversation
	seq  uint64 // 插入顺序，时间戳相同时先插入者在前
}

// Registry 会话注册表
type Registry struct {
	selfId   string
	entries  map[string]*entry
	nextSeq  uint64
	selected string
	hooks    []SelectHook
}

// New 创建注册表，selfId 用于给参与者打上 self 标记
func New(selfId string) *Registry {
	return &Registry{
		selfId:  selfId,
		entries: make(map[string]*entry),
	}
}

// SelfId 当前登录用户 ID
func (r *Registry) SelfId() string {
	return r.selfId
}

// OnSelect 注册选中会话时的副作用
func (r *Registry) OnSelect(hook SelectHook) {
	r.hooks = append(r.hooks, hook)
}

// Upsert 按 ID 插入或替换会话
// 替换时保留原插入顺序；传入的会话没有最新消息，或其最新消息比本地旧时，保留本地的最新消息，
// 因此只有 latestMessage 真正变化时才会影响排序
// 返回值表示是否为新建
func (r *Registry) Upsert(conv model.Conversation) bool {
	if conv.Id == "" {
		return false
	}
	conv = conv.Clone()
	for i := range conv.Participants {
		conv.Participants[i].Self = conv.Participants[i].Id == r.selfId
	}

	if e, ok := r.entries[conv.Id]; ok {
		current := e.conv.LatestMessage
		if current != nil && (conv.LatestMessage == nil || conv.LatestMessage.SortKey().Before(current.SortKey())) {
			conv.LatestMessage = current
		}
		e.conv = conv
		return false
	}

	r.nextSeq++
	r.entries[conv.Id] = &entry{conv: conv, seq: r.nextSeq}
	return true
}

// Get 获取会话副本
func (r *Registry) Get(conversationId string) (model.Conversation, bool) {
	e, ok := r.entries[conversationId]
	if !ok {
		return model.Conversation{}, false
	}
	return e.conv.Clone(), true
}

// Has 会话是否已知
func (r *Registry) Has(conversationId string) bool {
	_, ok := r.entries[conversationId]
	return ok
}

// Len 已知会话数量
func (r *Registry) Len() int {
	return len(r.entries)
}

// ApplyLatestMessage 更新会话的最新消息摘要
// 会话未知时静默忽略并返回 false
func (r *Registry) ApplyLatestMessage(conversationId string, summary model.MessageSummary) bool {
	e, ok := r.entries[conversationId]
	if !ok {
		return false
	}
	e.conv.LatestMessage = &summary
	return true
}

// OrderStamp 返回一个严格晚于当前所有会话的排序时间戳
// 事件协调器用它给新消息盖章，使"移到顶部"遵循应用顺序而不受消息时钟偏差影响
func (r *Registry) OrderStamp(now time.Time) time.Time {
	var newest time.Time
	for _, e := range r.entries {
		if at := e.conv.LatestAt(); at.After(newest) {
			newest = at
		}
	}
	if !now.After(newest) {
		return newest.Add(time.Nanosecond)
	}
	return now
}

// Select 设置选中指针并触发副作用
// 会话未知时返回 UnknownConversation
func (r *Registry) Select(conversationId string) error {
	if _, ok := r.entries[conversationId]; !ok {
		return errorx.Wrapf(errorx.ErrUnknownConversation, errorx.CodeUnknownConversation, "会话 %s 不存在", conversationId)
	}
	r.selected = conversationId
	for _, hook := range r.hooks {
		hook(conversationId)
	}
	return nil
}

// Deselect 清空选中指针
func (r *Registry) Deselect() {
	r.selected = ""
}

// Selected 当前选中的会话 ID
func (r *Registry) Selected() (string, bool) {
	return r.selected, r.selected != ""
}

// IsSelected 判断会话是否为当前选中的会话
func (r *Registry) IsSelected(conversationId string) bool {
	return r.selected != "" && r.selected == conversationId
}

// Ordered 返回按最新消息时间倒序排列的会话序列
// 每次遍历都重新排序，不缓存结果
func (r *Registry) Ordered() iter.Seq[model.Conversation] {
	return func(yield func(model.Conversation) bool) {
		for _, e := range r.sorted() {
			if !yield(e.conv.Clone()) {
				return
			}
		}
	}
}

// OrderedList 以切片形式返回排序后的会话
func (r *Registry) OrderedList() []model.Conversation {
	return slices.Collect(r.Ordered())
}

// FindParticipant 在单聊会话中查找指定用户
func (r *Registry) FindParticipant(userId string) (model.Participant, bool) {
	for _, e := range r.sorted() {
		if e.conv.IsGroup {
			continue
		}
		for _, p := range e.conv.Participants {
			if p.Id == userId {
				return p, true
			}
		}
	}
	return model.Participant{}, false
}

// Reset 登出时清空全部状态，保留已注册的副作用
func (r *Registry) Reset(selfId string) {
	r.selfId = selfId
	r.entries = make(map[string]*entry)
	r.nextSeq = 0
	r.selected = ""
}

func (r *Registry) sorted() []*entry {
	list := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		list = append(list, e)
	}
	slices.SortFunc(list, func(a, b *entry) int {
		if c := b.conv.LatestAt().Compare(a.conv.LatestAt()); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	return list
}

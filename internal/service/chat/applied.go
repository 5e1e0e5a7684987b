package chat

// appliedSet 已应用的消息 ID，按会话分组，登出前不淘汰
type appliedSet struct {
	ids map[string]map[string]struct{}
}

func newAppliedSet() *appliedSet {
	return &appliedSet{ids: make(map[string]map[string]struct{})}
}

func (s *appliedSet) Has(conversationId, messageId string) bool {
	_, ok := s.ids[conversationId][messageId]
	return ok
}

// Add 返回 false 表示已存在
func (s *appliedSet) Add(conversationId, messageId string) bool {
	set, ok := s.ids[conversationId]
	if !ok {
		set = make(map[string]struct{})
		s.ids[conversationId] = set
	}
	if _, ok := set[messageId]; ok {
		return false
	}
	set[messageId] = struct{}{}
	return true
}

// Len 某会话已应用的消息数
func (s *appliedSet) Len(conversationId string) int {
	return len(s.ids[conversationId])
}

func (s *appliedSet) Reset() {
	clear(s.ids)
}

package chat

// TypingTracker 记录对方的输入状态，只在事件循环中访问
// 后到的事件覆盖先到的事件
type TypingTracker struct {
	peers map[string]struct{}
}

// NewTypingTracker 创建输入状态表
func NewTypingTracker() *TypingTracker {
	return &TypingTracker{peers: make(map[string]struct{})}
}

// Start 标记对方正在输入
func (t *TypingTracker) Start(conversationId string) {
	t.peers[conversationId] = struct{}{}
}

// Stop 清除输入标记
func (t *TypingTracker) Stop(conversationId string) {
	delete(t.peers, conversationId)
}

// IsTyping 对方是否正在输入
func (t *TypingTracker) IsTyping(conversationId string) bool {
	_, ok := t.peers[conversationId]
	return ok
}

// Reset 清空
func (t *TypingTracker) Reset() {
	t.peers = make(map[string]struct{})
}

package request

// AccessConversationRequest 打开（必要时创建）与某用户的单聊
type AccessConversationRequest struct {
	UserId string `json:"user_id" binding:"required"`
}

// SendMessageRequest 在当前打开的会话中发送消息
type SendMessageRequest struct {
	Body string `json:"body" binding:"required,max=4000"`
}

// SearchContactsRequest 联系人搜索
type SearchContactsRequest struct {
	Q string `form:"q" binding:"max=64"`
}

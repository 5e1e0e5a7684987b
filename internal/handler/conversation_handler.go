// Package handler 本地桥接服务的请求处理器
// 本文件处理会话列表、选中与未读相关的请求
package handler

import (
	"kama_chat_client/internal/dto/request"
	"kama_chat_client/internal/dto/respond"
	"kama_chat_client/internal/service"
	"kama_chat_client/pkg/enum/load_state_enum"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 会话请求处理器
type ConversationHandler struct {
	chatSvc service.ChatService
}

// NewConversationHandler 构造函数
func NewConversationHandler(chatSvc service.ChatService) *ConversationHandler {
	return &ConversationHandler{chatSvc: chatSvc}
}

// List 按最新消息倒序的会话列表，附带未读数
// GET /conversations
func (h *ConversationHandler) List(c *gin.Context) {
	state, err := h.chatSvc.ConversationsState(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}
	out := respond.ConversationListRespond{
		State:         load_state_enum.Name(state.State),
		Conversations: make([]respond.ConversationView, 0, len(state.Conversations)),
	}
	if state.Err != nil {
		out.Error = state.Err.Error()
	}
	for _, conv := range state.Conversations {
		out.Conversations = append(out.Conversations, respond.ConversationView{
			Conversation: conv,
			DisplayName:  conv.DisplayName(),
			Unread:       state.Unread[conv.Id],
			Selected:     conv.Id == state.Selected,
		})
	}
	HandleSuccess(c, out)
}

// Load 从服务端重新拉取会话列表
// POST /conversations/load
func (h *ConversationHandler) Load(c *gin.Context) {
	if err := h.chatSvc.LoadConversations(c.Request.Context()); err != nil {
		HandleError(c, err)
		return
	}
	h.List(c)
}

// Access 打开与某用户的单聊，不存在时由服务端创建
// POST /conversations/access
func (h *ConversationHandler) Access(c *gin.Context) {
	var req request.AccessConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	conv, err := h.chatSvc.AccessConversation(c.Request.Context(), req.UserId)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, respond.ConversationView{
		Conversation: conv,
		DisplayName:  conv.DisplayName(),
		Selected:     true,
	})
}

// Select POST /conversations/:id/select
func (h *ConversationHandler) Select(c *gin.Context) {
	if err := h.chatSvc.SelectConversation(c.Request.Context(), c.Param("id")); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

// Deselect POST /conversations/deselect
func (h *ConversationHandler) Deselect(c *gin.Context) {
	if err := h.chatSvc.DeselectConversation(c.Request.Context()); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

// Unread GET /conversations/:id/unread
func (h *ConversationHandler) Unread(c *gin.Context) {
	id := c.Param("id")
	n, err := h.chatSvc.UnreadCountFor(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, respond.UnreadRespond{ConversationId: id, Count: n})
}

// Typing 对方是否正在输入
// GET /conversations/:id/typing
func (h *ConversationHandler) Typing(c *gin.Context) {
	id := c.Param("id")
	typing, err := h.chatSvc.IsPeerTyping(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, respond.TypingRespond{ConversationId: id, Typing: typing})
}

// TotalUnread GET /unread/total
func (h *ConversationHandler) TotalUnread(c *gin.Context) {
	n, err := h.chatSvc.TotalUnreadCount(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, respond.UnreadRespond{Count: n})
}

// Notifications GET /notifications
func (h *ConversationHandler) Notifications(c *gin.Context) {
	list, err := h.chatSvc.Notifications(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, list)
}

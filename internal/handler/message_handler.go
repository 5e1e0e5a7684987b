package handler

import (
	"kama_chat_client/internal/dto/request"
	"kama_chat_client/internal/dto/respond"
	"kama_chat_client/internal/model"
	"kama_chat_client/internal/service"
	"kama_chat_client/pkg/enum/load_state_enum"

	"github.com/gin-gonic/gin"
)

// MessageHandler 当前打开会话的消息与输入状态
type MessageHandler struct {
	chatSvc service.ChatService
}

// NewMessageHandler 构造函数
func NewMessageHandler(chatSvc service.ChatService) *MessageHandler {
	return &MessageHandler{chatSvc: chatSvc}
}

// List GET /messages
func (h *MessageHandler) List(c *gin.Context) {
	state, err := h.chatSvc.Messages(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}
	out := respond.MessageListRespond{
		ConversationId: state.ConversationId,
		State:          load_state_enum.Name(state.State),
		Messages:       state.Messages,
	}
	if out.Messages == nil {
		out.Messages = []model.Message{}
	}
	if state.Err != nil {
		out.Error = state.Err.Error()
	}
	HandleSuccess(c, out)
}

// Send 发送消息
// POST /messages
// 发送失败时 data 中仍返回那条 failed 状态的消息
func (h *MessageHandler) Send(c *gin.Context) {
	var req request.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	msg, err := h.chatSvc.SendMessage(c.Request.Context(), req.Body)
	if err != nil {
		if msg.Id != "" {
			HandleErrorWithData(c, err, msg)
			return
		}
		HandleError(c, err)
		return
	}
	HandleSuccess(c, msg)
}

// StartTyping POST /typing/start
func (h *MessageHandler) StartTyping(c *gin.Context) {
	if err := h.chatSvc.StartTyping(c.Request.Context()); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

// StopTyping POST /typing/stop
func (h *MessageHandler) StopTyping(c *gin.Context) {
	if err := h.chatSvc.StopTyping(c.Request.Context()); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

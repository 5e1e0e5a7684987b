package handler

import (
	"kama_chat_client/internal/dto/respond"
	"kama_chat_client/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionHandler 当前身份、连接状态与界面主题
type SessionHandler struct {
	chatSvc    service.ChatService
	contactSvc service.ContactService
	statusSvc  service.StatusService
	theme      string
}

// NewSessionHandler 构造函数
func NewSessionHandler(chatSvc service.ChatService, contactSvc service.ContactService, statusSvc service.StatusService, theme string) *SessionHandler {
	return &SessionHandler{chatSvc: chatSvc, contactSvc: contactSvc, statusSvc: statusSvc, theme: theme}
}

// Get GET /session
func (h *SessionHandler) Get(c *gin.Context) {
	info, err := h.chatSvc.SessionInfo(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}
	subs := info.Subscriptions
	if subs == nil {
		subs = []string{}
	}
	HandleSuccess(c, respond.SessionRespond{
		UserId:        info.UserId,
		State:         info.State.String(),
		Connected:     info.Connected,
		Theme:         h.theme,
		Subscriptions: subs,
		Selected:      info.Selected,
	})
}

// Logout POST /session/logout
// 断开实时连接，清空会话、未读、搜索结果和动态
func (h *SessionHandler) Logout(c *gin.Context) {
	userId := c.GetString("user_id")
	if err := h.chatSvc.Logout(c.Request.Context()); err != nil {
		HandleError(c, err)
		return
	}
	h.contactSvc.Clear()
	h.statusSvc.Reset()
	zap.L().Info("session logged out", zap.String("user_id", userId))
	HandleSuccess(c, nil)
}

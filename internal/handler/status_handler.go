package handler

import (
	"kama_chat_client/internal/service"

	"github.com/gin-gonic/gin"
)

// StatusHandler 联系人动态
type StatusHandler struct {
	statusSvc service.StatusService
}

// NewStatusHandler 构造函数
func NewStatusHandler(statusSvc service.StatusService) *StatusHandler {
	return &StatusHandler{statusSvc: statusSvc}
}

// Feed GET /statuses
func (h *StatusHandler) Feed(c *gin.Context) {
	HandleSuccess(c, h.statusSvc.Feed())
}

// Load POST /statuses/load
func (h *StatusHandler) Load(c *gin.Context) {
	feed, err := h.statusSvc.Fetch(c.Request.Context())
	if err != nil {
		HandleErrorWithData(c, err, feed)
		return
	}
	HandleSuccess(c, feed)
}

// View POST /statuses/:id/view
func (h *StatusHandler) View(c *gin.Context) {
	if err := h.statusSvc.MarkViewed(c.Request.Context(), c.Param("id")); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

// Viewers GET /statuses/:id/viewers
func (h *StatusHandler) Viewers(c *gin.Context) {
	HandleSuccess(c, h.statusSvc.Viewers(c.Request.Context(), c.Param("id")))
}

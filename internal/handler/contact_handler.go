package handler

import (
	"kama_chat_client/internal/dto/request"
	"kama_chat_client/internal/service"

	"github.com/gin-gonic/gin"
)

// ContactHandler 联系人搜索
type ContactHandler struct {
	contactSvc service.ContactService
}

// NewContactHandler 构造函数
func NewContactHandler(contactSvc service.ContactService) *ContactHandler {
	return &ContactHandler{contactSvc: contactSvc}
}

// Search GET /contacts/search?q=
func (h *ContactHandler) Search(c *gin.Context) {
	var req request.SearchContactsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	if _, err := h.contactSvc.Search(c.Request.Context(), req.Q); err != nil {
		HandleErrorWithData(c, err, h.contactSvc.State())
		return
	}
	HandleSuccess(c, h.contactSvc.State())
}

// Clear POST /contacts/clear
func (h *ContactHandler) Clear(c *gin.Context) {
	h.contactSvc.Clear()
	HandleSuccess(c, h.contactSvc.State())
}

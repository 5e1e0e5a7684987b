package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterSessionRoutes 登出，GET /session 为公开路由
func (rt *Router) RegisterSessionRoutes(rg *gin.RouterGroup) {
	rg.POST("/session/logout", rt.handlers.Session.Logout)
}

package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterContactRoutes 联系人搜索
func (rt *Router) RegisterContactRoutes(rg *gin.RouterGroup) {
	contactGroup := rg.Group("/contacts")
	{
		contactGroup.GET("/search", rt.handlers.Contact.Search)
		contactGroup.POST("/clear", rt.handlers.Contact.Clear)
	}
}

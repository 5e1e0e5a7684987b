package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterStatusRoutes 联系人动态
func (rt *Router) RegisterStatusRoutes(rg *gin.RouterGroup) {
	statusGroup := rg.Group("/statuses")
	{
		statusGroup.GET("", rt.handlers.Status.Feed)                // 当前动态列表
		statusGroup.POST("/load", rt.handlers.Status.Load)          // 拉取动态
		statusGroup.POST("/:id/view", rt.handlers.Status.View)      // 标记已读
		statusGroup.GET("/:id/viewers", rt.handlers.Status.Viewers) // 查看者列表
	}
}

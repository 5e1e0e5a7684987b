// Package router 本地桥接服务的路由注册
// 本文件是路由注册的入口，聚合所有子模块的路由
package router

import (
	"kama_chat_client/internal/handler"
	"kama_chat_client/internal/infrastructure/metrics"
	"kama_chat_client/internal/infrastructure/middleware"

	"github.com/gin-gonic/gin"
)

// Router 路由管理器
type Router struct {
	handlers *handler.Handlers
	session  middleware.SessionLookup
}

// NewRouter 创建路由管理器
// session 为 nil 时不校验登录状态
func NewRouter(handlers *handler.Handlers, session middleware.SessionLookup) *Router {
	return &Router{handlers: handlers, session: session}
}

// RegisterRoutes 注册所有路由
func (rt *Router) RegisterRoutes(r *gin.Engine) {
	// 公开路由：指标与身份状态
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/session", rt.handlers.Session.Get)

	authed := r.Group("/")
	if rt.session != nil {
		authed.Use(middleware.RequireSession(rt.session))
	}
	rt.RegisterSessionRoutes(authed)
	rt.RegisterConversationRoutes(authed)
	rt.RegisterMessageRoutes(authed)
	rt.RegisterContactRoutes(authed)
	rt.RegisterStatusRoutes(authed)
}

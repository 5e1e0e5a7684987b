// Package https_server 本地桥接服务
// 负责创建 Gin 引擎实例并配置中间件与路由
package https_server

import (
	"fmt"
	"net/http"
	"time"

	"kama_chat_client/internal/config"
	"kama_chat_client/internal/handler"
	"kama_chat_client/internal/infrastructure/logger"
	"kama_chat_client/internal/infrastructure/middleware"
	"kama_chat_client/internal/router"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Init 创建 Gin 引擎
// 配置顺序：日志与恢复中间件、CORS、安全响应头、业务路由
func Init(conf *config.MainConfig, handlers *handler.Handlers, session middleware.SessionLookup) *gin.Engine {
	if conf.Mode != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()

	engine.Use(logger.GinLogger())
	engine.Use(logger.GinRecovery(true))

	// 界面可能运行在任意本地端口上
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type"}
	engine.Use(cors.New(corsConfig))

	engine.Use(middleware.SecureHeaders(allowedHosts(conf), conf.Mode == "dev"))

	rt := router.NewRouter(handlers, session)
	rt.RegisterRoutes(engine)
	return engine
}

// NewServer 包装为 http.Server，便于优雅关闭
func NewServer(conf *config.MainConfig, engine *gin.Engine) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", conf.Host, conf.Port),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func allowedHosts(conf *config.MainConfig) []string {
	return []string{
		fmt.Sprintf("%s:%d", conf.Host, conf.Port),
		fmt.Sprintf("localhost:%d", conf.Port),
		fmt.Sprintf("127.0.0.1:%d", conf.Port),
	}
}

package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/unrolled/secure"
	"go.uber.org/zap"
)

// SecureHeaders 为桥接服务加上安全响应头
// 桥接服务只监听本机，因此不做 TLS 跳转，只限制 Host 并禁止页面被嵌入
func SecureHeaders(allowedHosts []string, dev bool) gin.HandlerFunc {
	secureMiddleware := secure.New(secure.Options{
		AllowedHosts:          allowedHosts,
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'",
		IsDevelopment:         dev,
	})

	return func(c *gin.Context) {
		if err := secureMiddleware.Process(c.Writer, c.Request); err != nil {
			// 不能在中间件里 Fatal，只终止当前请求
			zap.L().Warn("secure middleware rejected request", zap.String("host", c.Request.Host), zap.Error(err))
			c.Abort()
			return
		}
		// Process 可能已经写出了响应
		if status := c.Writer.Status(); status >= 300 && status < 400 {
			c.Abort()
			return
		}
		c.Next()
	}
}

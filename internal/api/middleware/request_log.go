package middleware

import (
	"log/slog"
	"time"

	"eazyfind/internal/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RequestLogger 记录每个请求的方法、路径、状态码与耗时。
// 5xx 响应以 error 级别记录，/healthz 与 /metrics 以 debug 级别记录。
func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	log = logger.OrDiscard(log)
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.Request.URL.Path
		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.String("client_ip", c.ClientIP()),
			slog.String("latency", time.Since(start).String()),
		}

		switch {
		case status >= 500:
			log.Error("http request", attrs...)
		case path == "/healthz" || path == "/metrics":
			log.Debug("http request", attrs...)
		default:
			log.Info("http request", attrs...)
		}
	}
}

package apiserver

import (
	"strings"
	"time"

	"github.com/VK7KSM/ElfRadio/internal/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// requestLogger logs mutating API calls and any error response.
// Read-only polling (health, config reads, metrics scrapes) and the
// long-lived /ws upgrade are skipped to keep the log focused on
// operator actions.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		statusCode := c.Writer.Status()

		shouldLog := method != "GET"
		if strings.HasPrefix(path, "/metrics") || path == "/ws" {
			shouldLog = false
		}
		if statusCode >= 400 {
			shouldLog = true
		}
		if !shouldLog {
			return
		}

		fields := []zap.Field{
			zap.Int("status", statusCode),
			zap.String("method", method),
			zap.String("path", path),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case statusCode >= 500:
			logger.L().Error("http request", fields...)
		case statusCode >= 400:
			logger.L().Warn("http request", fields...)
		default:
			logger.L().Info("http request", fields...)
		}
	}
}

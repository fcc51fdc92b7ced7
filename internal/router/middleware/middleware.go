package middleware

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"go.uber.org/zap"
)

const (
	LoggerKey    = "logger"
	ViewerKey    = "viewer"
	ViewerHeader = "X-User-ID"
)

// LoggingMiddleware puts a request-scoped logger under LoggerKey and logs
// every finished request.
func LoggingMiddleware(log *zap.Logger) func(*ginext.Context) {
	return func(c *ginext.Context) {
		start := time.Now()
		reqLog := log.With(
			zap.String("request_id", uuid.NewString()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		)
		c.Set(LoggerKey, reqLog)

		c.Next()

		reqLog.Info("Request handled",
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// ViewerMiddleware reads the caller's user id from X-User-ID. The header is
// trusted as is; a request without it is anonymous.
func ViewerMiddleware() func(*ginext.Context) {
	return func(c *ginext.Context) {
		c.Set(ViewerKey, strings.TrimSpace(c.GetHeader(ViewerHeader)))
		c.Next()
	}
}

func Viewer(c *ginext.Context) string {
	return c.GetString(ViewerKey)
}

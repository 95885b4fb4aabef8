package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"wafa/pkg/logx"
)

const RequestIDHeader = "X-Request-ID"

// RequestID propagates or assigns an X-Request-ID and stores it under
// "request_id".
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func RequestLogger(log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []logx.Field{
			logx.String("method", c.Request.Method),
			logx.String("path", routePath(c)),
			logx.Int("status", status),
			logx.Duration("duration", time.Since(start)),
			logx.String("client_ip", c.ClientIP()),
			logx.Int("bytes", c.Writer.Size()),
			logx.String("request_id", c.GetString("request_id")),
		}
		switch {
		case status >= 500:
			log.Error("http_request", fields...)
		case status >= 400:
			log.Warn("http_request", fields...)
		default:
			log.Info("http_request", fields...)
		}
	}
}

func RequestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		RecordHTTPRequest(c.Request.Method, routePath(c), c.Writer.Status(), time.Since(start))
	}
}

// routePath prefers the route template so unmatched paths do not explode
// label cardinality.
func routePath(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return "unmatched"
}

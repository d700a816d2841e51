package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/fatflowers/pcbuilder/pkg/logctx"
	"github.com/fatflowers/pcbuilder/pkg/tool"
)

const HeaderRequestID = "X-Request-ID"

// maxTraceIDLen caps client supplied request ids.
const maxTraceIDLen = 128

// TraceMiddleware adds a trace ID to the request context.
// It reads X-Request-ID if provided by the client; otherwise generates a UUIDv7.
// The trace ID is stored in both gin.Context and the request's context.Context.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(HeaderRequestID)
		if traceID == "" || len(traceID) > maxTraceIDLen {
			traceID = tool.GenerateUUIDV7()
		}

		c.Set(logctx.GinKeyTraceID, traceID)
		c.Request = c.Request.WithContext(logctx.WithTraceID(c.Request.Context(), traceID))
		c.Next()
	}
}

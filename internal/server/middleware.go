package server

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lsp-backend/internal/jsonrpc"
)

const (
	HeaderRequestID = "X-Request-ID"
	CtxKeyRequestID = "request_id"
)

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(HeaderRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(CtxKeyRequestID, rid)
		c.Writer.Header().Set(HeaderRequestID, rid)
		c.Next()
	}
}

func GetRequestID(c *gin.Context) string {
	return c.GetString(CtxKeyRequestID)
}

// Logger attaches a request scoped logger to the request context and logs
// one line per request.
func Logger(l zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqLog := l.With().Str("request_id", GetRequestID(c)).Logger()
		c.Request = c.Request.WithContext(reqLog.WithContext(c.Request.Context()))

		c.Next()

		status := c.Writer.Status()
		ev := reqLog.Info()
		if status >= 500 {
			ev = reqLog.Error()
		} else if status >= 400 {
			ev = reqLog.Warn()
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Int("bytes", c.Writer.Size()).
			Str("client_ip", c.ClientIP()).
			Msg("http_request")
	}
}

// Recovery turns a panic into an internal_error response.
func Recovery(l zerolog.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		l.Error().
			Str("request_id", GetRequestID(c)).
			Str("panic", fmt.Sprint(recovered)).
			Str("stack", string(debug.Stack())).
			Msg("panic_recovered")
		e := jsonrpc.NewError(jsonrpc.KindInternalError, nil)
		c.AbortWithStatusJSON(e.HTTPStatus, jsonrpc.ErrorResponse(nil, e))
	})
}

// Timeout bounds the request context. Handlers see the deadline through
// ctx and fail with internal_error once it passes.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

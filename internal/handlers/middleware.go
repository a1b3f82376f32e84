package handlers

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/imagecheck/internal/auth"
	"github.com/example/imagecheck/internal/logging"
)

// RequestIDHeader carries the request id in and out.
const RequestIDHeader = "X-Request-Id"

const maxRequestIDLength = 128

// RequestContext assigns a request id, stores it on the request context and
// writes one access log line per request.
func RequestContext(logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("http")
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.NewString()
		}
		c.Request = c.Request.WithContext(logging.ContextWithRequestID(c.Request.Context(), requestID))
		c.Header(RequestIDHeader, requestID)

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		reqLogger := logger.With(zap.String("request_id", requestID))
		if subject, ok := auth.SubjectFromContext(c.Request.Context()); ok {
			reqLogger = reqLogger.With(zap.String("subject", subject))
		}
		logErrors(c, reqLogger)
		reqLogger.Info("request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

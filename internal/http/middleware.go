package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"local-market/internal/metrics"
	"local-market/internal/service"
)

const (
	requestIDHeader = "X-Request-ID"

	ctxLoggerKey = "logger"
	ctxUserIDKey = "userID"
)

func corsMiddleware(allowOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		if allowOrigin != "*" {
			// cookies are only sent cross-origin to an explicit origin
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Add("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-Request-ID")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger tags every request with an id and logs its outcome.
func requestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Writer.Header().Set(requestIDHeader, reqID)

		entry := logger.WithField("request_id", reqID)
		c.Set(ctxLoggerKey, entry)

		start := time.Now()
		c.Next()

		entry.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"client":  c.ClientIP(),
		}).Info("request")
	}
}

func loggerFrom(c *gin.Context, fallback logrus.FieldLogger) logrus.FieldLogger {
	if v, ok := c.Get(ctxLoggerKey); ok {
		if entry, ok := v.(logrus.FieldLogger); ok {
			return entry
		}
	}
	return fallback
}

// requireSession rejects requests without a valid session cookie and stores
// the verified user id on the context.
func (h *Handler) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.Cookie(SessionCookie)
		if err != nil || raw == "" {
			h.respondError(c, service.ErrUnauthorized)
			return
		}

		userID, err := h.tokens.Verify(raw)
		if err != nil {
			h.cfg.Metrics.RecordSessionRejected()
			h.respondError(c, err)
			return
		}

		c.Set(ctxUserIDKey, userID)
		c.Next()
	}
}

// UserIDFromContext returns the user id stored by requireSession.
func UserIDFromContext(c *gin.Context) (int64, bool) {
	v, ok := c.Get(ctxUserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

func (h *Handler) rateLimit(record func(outcome string)) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.limiter.Allow(c.ClientIP()) {
			record(metrics.OutcomeRateLimited)
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}

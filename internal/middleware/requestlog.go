package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/harentsoaR/clinic-rbac/internal/logger"
	"github.com/harentsoaR/clinic-rbac/internal/metrics"
)

const RequestIDHeader = "X-Request-ID"

// Stack returns the global middlewares in order. RequestLogger wraps
// Recovery so a recovered panic is still logged and counted as a 500.
func Stack(log *logger.Logger, m *metrics.Metrics) []gin.HandlerFunc {
	return []gin.HandlerFunc{RequestLogger(log, m), Recovery(log)}
}

// RequestLogger tags each request with an id, logs it once it completes and
// records it in the HTTP metrics.
func RequestLogger(log *logger.Logger, m *metrics.Metrics) gin.HandlerFunc {
	entry := log.WithComponent("http")
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		duration := time.Since(start)
		if m != nil {
			m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
			m.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(duration.Seconds())
		}

		fields := logrus.Fields{
			"request_id":  requestID,
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status_code": status,
			"duration_ms": duration.Milliseconds(),
			"client_ip":   c.ClientIP(),
		}
		if userID := c.GetString("userID"); userID != "" {
			fields["user_id"] = userID
		}
		if len(c.Errors) > 0 {
			fields["error"] = c.Errors.String()
		}
		e := entry.WithFields(fields)
		switch {
		case status >= http.StatusInternalServerError:
			e.Error("Request failed")
		case status >= http.StatusBadRequest:
			e.Warn("Request rejected")
		default:
			e.Info("Request completed")
		}
	}
}

// Recovery turns a panic into a 500 and logs it.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	entry := log.WithComponent("http")
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				entry.WithFields(logrus.Fields{
					"error":      err,
					"path":       c.Request.URL.Path,
					"request_id": c.GetString("request_id"),
				}).Error("Panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			}
		}()
		c.Next()
	}
}

package httpserver

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/EarthNatchanon/Topgun2/internal/auth"
	"github.com/EarthNatchanon/Topgun2/internal/logging"
	"github.com/EarthNatchanon/Topgun2/internal/metrics"
)

const requestIDHeader = "X-Request-ID"

// requestID propagates the caller's X-Request-ID or assigns a new one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// accessLog logs one line per request, tagged with the API client on
// guarded routes, and counts it by route template.
func accessLog(m *metrics.Metrics) gin.HandlerFunc {
	log := logging.Component("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		m.HTTPRequest(c.Request.Method, route, status)

		attrs := []any{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration", time.Since(start),
			"request_id", c.GetString("request_id"),
		}
		if client := auth.Client(c); client != "" {
			attrs = append(attrs, "client", client)
		}
		log.Info("request", attrs...)
	}
}

package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/EarthNatchanon/Topgun2/internal/auth"
	"github.com/EarthNatchanon/Topgun2/internal/config"
	"github.com/EarthNatchanon/Topgun2/internal/handlers"
	"github.com/EarthNatchanon/Topgun2/internal/metrics"
	"github.com/EarthNatchanon/Topgun2/internal/records"
)

// Backend is the storage gateway as the router needs it.
type Backend interface {
	records.Store
	Ping(ctx context.Context) error
}

// NewRouter wires public endpoints and the record APIs.
// Public: /health, /ready, /metrics, GET /data, GET /data/:id, /stats
// Guarded by X-API-Key when keys are configured: POST, PUT, DELETE /data
//
// feed reports the ingestion client's connection state for /ready.
func NewRouter(cfg config.Config, st Backend, feed func() string, m *metrics.Metrics) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(accessLog(m))

	// Liveness: confirms the process is running.
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness: confirms the DB dependency is reachable. The feed state is
	// informational; a disconnected feed does not make the API unready.
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		feedState := "unknown"
		if feed != nil {
			feedState = feed()
		}

		if err := st.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error(), "feed": feedState})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "feed": feedState})
	})

	r.GET("/metrics", gin.WrapH(m.Handler()))

	svc := records.NewService(st)

	write := r.Group("/")
	if len(cfg.APIKeys) > 0 {
		write.Use(auth.APIKeyMiddleware(cfg.APIKeys))
	}

	handlers.RegisterRecordRoutes(r, write, svc)
	handlers.RegisterStatsRoutes(r, svc)

	return r
}

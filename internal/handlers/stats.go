package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/EarthNatchanon/Topgun2/internal/records"
)

// parseRFC3339 parses an RFC3339 timestamp and normalizes it to UTC.
// An empty string yields the zero time (an open bound).
func parseRFC3339(ts string) (time.Time, error) {
	if ts == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// RegisterStatsRoutes registers the record count endpoint.
//
// GET /stats?from=...&to=...
// - from and to are optional RFC3339 bounds
// - Returns the number of records in the window [from,to)
func RegisterStatsRoutes(r gin.IRoutes, svc *records.Service) {
	r.GET("/stats", func(c *gin.Context) {
		from, err := parseRFC3339(c.Query("from"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
		to, err := parseRFC3339(c.Query("to"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}

		// Validate window to avoid confusing results.
		if !from.IsZero() && !to.IsZero() && !from.Before(to) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be < to"})
			return
		}

		count, err := svc.Count(c.Request.Context(), from, to)
		if err != nil {
			writeError(c, err)
			return
		}

		resp := gin.H{"count": count}
		if !from.IsZero() {
			resp["from"] = from
		}
		if !to.IsZero() {
			resp["to"] = to
		}
		c.JSON(http.StatusOK, resp)
	})
}

package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/EarthNatchanon/Topgun2/internal/errors"
	"github.com/EarthNatchanon/Topgun2/internal/logging"
	"github.com/EarthNatchanon/Topgun2/internal/models"
	"github.com/EarthNatchanon/Topgun2/internal/records"
)

// RegisterRecordRoutes registers the record query and command endpoints.
//
// read:  GET /data, GET /data/:id
// write: POST /data, PUT /data/:id, DELETE /data/:id
//
// Writes return only after the store has committed (or rolled back).
func RegisterRecordRoutes(read, write gin.IRoutes, svc *records.Service) {
	read.GET("/data", func(c *gin.Context) {
		recs, err := svc.List(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, recs)
	})

	read.GET("/data/:id", func(c *gin.Context) {
		id, ok := recordID(c)
		if !ok {
			return
		}
		rec, found, err := svc.Get(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		if !found {
			writeError(c, apperrors.ErrNotFound)
			return
		}
		c.JSON(http.StatusOK, rec)
	})

	write.POST("/data", func(c *gin.Context) {
		p, ok := bindPayload(c)
		if !ok {
			return
		}
		id, err := svc.Create(c.Request.Context(), p)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "Data created", "id": id})
	})

	write.PUT("/data/:id", func(c *gin.Context) {
		id, ok := recordID(c)
		if !ok {
			return
		}
		p, ok := bindPayload(c)
		if !ok {
			return
		}
		if err := svc.Replace(c.Request.Context(), id, p); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Data updated"})
	})

	write.DELETE("/data/:id", func(c *gin.Context) {
		id, ok := recordID(c)
		if !ok {
			return
		}
		if err := svc.Remove(c.Request.Context(), id); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Data deleted"})
	})
}

// recordID parses :id. A non-integer id cannot name a record, so it is
// answered like any other unknown id.
func recordID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		writeError(c, apperrors.ErrNotFound)
		return 0, false
	}
	return id, true
}

func bindPayload(c *gin.Context) (models.Payload, bool) {
	var p models.Payload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
		return nil, false
	}
	return p, true
}

// writeError maps the error taxonomy onto HTTP statuses. Persistence
// errors are reported verbatim.
func writeError(c *gin.Context, err error) {
	switch {
	case apperrors.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case apperrors.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "Data not found"})
	default:
		logging.Component("http").Error("request failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

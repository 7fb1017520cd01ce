package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lilasstudio/crmlink/internal/resync"
)

// TriggerResync runs a bulk sweep synchronously and returns the run report.
// Overlapping runs are rejected by the run lock.
func (s *Server) TriggerResync(c *gin.Context) {
	var req struct {
		BatchSize      int  `json:"batch_size"`
		MaxProfiles    int  `json:"max_profiles"`
		OnlyUnresolved bool `json:"only_unresolved"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
	}

	report, err := s.resyncRunner.Run(c.Request.Context(), resync.Options{
		BatchSize:      req.BatchSize,
		MaxProfiles:    req.MaxProfiles,
		OnlyUnresolved: req.OnlyUnresolved,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}

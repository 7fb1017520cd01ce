package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lilasstudio/crmlink/internal/cache"
)

// GetMembership answers the messaging platform's "is this user an active
// member" question from the local package cache, never the CRM. Views are
// cached per platform user and invalidated on every package sync.
func (s *Server) GetMembership(c *gin.Context) {
	platformUserID := strings.TrimSpace(c.Param("platformUserId"))
	if platformUserID == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if view, ok := s.membership.Get(platformUserID); ok {
		c.JSON(http.StatusOK, gin.H{"data": view, "cached": true})
		return
	}

	profile, err := s.profileSvc.GetByPlatformUserID(c.Request.Context(), platformUserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	snapshot, err := s.packageSvc.GetCached(c.Request.Context(), profile.ID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	now := s.clock.Now()
	view := cache.MembershipView{
		PlatformUserID: platformUserID,
		CustomerID:     snapshot.CustomerID,
		ComputedAt:     now,
	}
	for _, item := range snapshot.Items {
		if item.Usable(now) {
			view.Active = true
			view.RemainingUnits += item.RemainingUnits
		}
	}

	s.membership.Set(platformUserID, view)
	c.JSON(http.StatusOK, gin.H{"data": view, "cached": false})
}

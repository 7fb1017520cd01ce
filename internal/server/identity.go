package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) ResolveProfile(c *gin.Context) {
	resp, err := s.identitySvc.ResolveProfile(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ForceRematch(c *gin.Context) {
	resp, err := s.identitySvc.ForceRematch(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetMapping(c *gin.Context) {
	item, err := s.mappingSvc.GetActiveMapping(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if item == nil {
		c.JSON(http.StatusOK, gin.H{"data": nil, "resolved": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item, "resolved": true})
}

func (s *Server) ClearMapping(c *gin.Context) {
	if err := s.identitySvc.ClearMapping(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"cleared": true}})
}

func (s *Server) Deduplicate(c *gin.Context) {
	winner, err := s.identitySvc.Deduplicate(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": winner})
}

func (s *Server) CleanupMappings(c *gin.Context) {
	removed, err := s.mappingSvc.Cleanup(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"removed": removed}})
}

package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type roleRequest struct {
	Actor string `json:"actor"`
	Role  string `json:"role"`
}

func (s *Server) GrantRole(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.authzSvc.GrantRole(c.Request.Context(), req.Actor, req.Role); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"actor": req.Actor, "role": req.Role}})
}

func (s *Server) RevokeRole(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.authzSvc.RevokeRole(c.Request.Context(), req.Actor, req.Role); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"actor": req.Actor, "role": req.Role}})
}

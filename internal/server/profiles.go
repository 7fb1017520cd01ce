package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	profiledomain "github.com/lilasstudio/crmlink/internal/profile/domain"
	"github.com/lilasstudio/crmlink/pkg/db/pagination"
)

func (s *Server) UpsertProfile(c *gin.Context) {
	var req struct {
		Provider       string `json:"provider"`
		SubjectID      string `json:"subject_id"`
		PlatformUserID string `json:"platform_user_id"`
		DisplayName    string `json:"display_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.profileSvc.UpsertLogin(c.Request.Context(), profiledomain.UpsertLoginRequest{
		Provider:       req.Provider,
		SubjectID:      req.SubjectID,
		PlatformUserID: req.PlatformUserID,
		DisplayName:    req.DisplayName,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetProfile(c *gin.Context) {
	item, err := s.profileSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) ListProfiles(c *gin.Context) {
	var query struct {
		pagination.Pagination
		OnlyUnresolved bool `form:"only_unresolved"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.profileSvc.List(c.Request.Context(), profiledomain.ListProfileRequest{
		PageToken:      query.PageToken,
		PageSize:       int32(query.PageSize),
		OnlyUnresolved: query.OnlyUnresolved,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Profiles, "page_info": resp.PageInfo})
}

func (s *Server) CaptureContact(c *gin.Context) {
	var req struct {
		Phone string `json:"phone"`
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.profileSvc.CaptureContact(c.Request.Context(), profiledomain.CaptureContactRequest{
		ProfileID: strings.TrimSpace(c.Param("id")),
		Phone:     req.Phone,
		Email:     req.Email,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

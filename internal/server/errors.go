package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lilasstudio/crmlink/internal/authorization"
	crmdomain "github.com/lilasstudio/crmlink/internal/crm/domain"
	identitydomain "github.com/lilasstudio/crmlink/internal/identity/domain"
	mappingdomain "github.com/lilasstudio/crmlink/internal/mapping/domain"
	matcherdomain "github.com/lilasstudio/crmlink/internal/matcher/domain"
	pkgcachedomain "github.com/lilasstudio/crmlink/internal/pkgcache/domain"
	profiledomain "github.com/lilasstudio/crmlink/internal/profile/domain"
	"github.com/lilasstudio/crmlink/internal/resync"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorPayload struct {
	Type      string            `json:"type"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable,omitempty"`
	Errors    []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case isValidationError(err):
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: "invalid value",
				},
			},
		}

	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}

	case errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}

	// The caller sent enough identity but no candidate cleared the
	// acceptance threshold.
	case errors.Is(err, identitydomain.ErrUnresolvedIdentity),
		errors.Is(err, mappingdomain.ErrBelowThreshold):
		return http.StatusNotFound, errorPayload{
			Type:    "unresolved_identity",
			Message: "no customer match above the acceptance threshold",
		}

	// The profile carries no usable identity attribute at all.
	case errors.Is(err, matcherdomain.ErrInsufficientIdentity):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "insufficient_identity",
			Message: "profile has no name, phone, or email to match on",
		}

	case errors.Is(err, mappingdomain.ErrMultipleActiveMappings):
		return http.StatusConflict, errorPayload{
			Type:    "multiple_active_mappings",
			Message: "profile has more than one active mapping; run deduplicate",
		}

	case errors.Is(err, resync.ErrRunInProgress):
		return http.StatusConflict, errorPayload{
			Type:    "resync_run_in_progress",
			Message: "a bulk resync run is already in progress",
		}

	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}

	case crmdomain.IsRetryable(err):
		return http.StatusServiceUnavailable, errorPayload{
			Type:      err.Error(),
			Message:   "upstream CRM unavailable",
			Retryable: true,
		}

	case errors.Is(err, crmdomain.ErrNotConfigured):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "crm_not_configured",
			Message: "upstream CRM is not configured",
		}

	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, profiledomain.ErrInvalidProvider),
		errors.Is(err, profiledomain.ErrInvalidSubject),
		errors.Is(err, profiledomain.ErrInvalidID),
		errors.Is(err, profiledomain.ErrInvalidContact),
		errors.Is(err, mappingdomain.ErrInvalidProfileID),
		errors.Is(err, mappingdomain.ErrInvalidCandidate),
		errors.Is(err, pkgcachedomain.ErrInvalidProfileID),
		errors.Is(err, authorization.ErrInvalidActor),
		errors.Is(err, authorization.ErrInvalidRole):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, profiledomain.ErrNotFound),
		errors.Is(err, mappingdomain.ErrNotFound),
		errors.Is(err, pkgcachedomain.ErrNotCached),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	return strings.TrimPrefix(code, "invalid_")
}

// classifyErrorForLog feeds the request logger a stable (type, code) pair
// without rendering the full payload twice.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError {
		return "internal", payload.Type
	}
	return payload.Type, payload.Type
}

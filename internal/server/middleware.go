package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lilasstudio/crmlink/internal/observability/obscontext"
)

const actorHeader = "X-Actor"

// ActorMiddleware reads the caller identity set by the fronting gateway.
// This service is deployed behind the platform's auth proxy, which
// authenticates the caller and forwards "system" or "user:<id>".
func ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := strings.TrimSpace(c.GetHeader(actorHeader))
		if actor != "" {
			actorType, actorID := splitActor(actor)
			ctx := obscontext.WithActor(c.Request.Context(), actorType, actorID)
			c.Request = c.Request.WithContext(ctx)
			c.Set("actor", actor)
		}
		c.Next()
	}
}

// RequireAuthz enforces the casbin policy for administrative operations.
func (s *Server) RequireAuthz(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := c.GetString("actor")
		if actor == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), actor, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func splitActor(actor string) (string, string) {
	if actor == "system" {
		return "system", ""
	}
	if parts := strings.SplitN(actor, ":", 2); len(parts) == 2 {
		return parts[0], parts[1]
	}
	return actor, ""
}

package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/lilasstudio/crmlink/internal/authorization"
	"github.com/stretchr/testify/assert"
)

type fakeAuthzService struct {
	err        error
	lastActor  string
	lastObject string
	lastAction string
}

func (f *fakeAuthzService) Authorize(ctx context.Context, actor, object, action string) error {
	f.lastActor = actor
	f.lastObject = object
	f.lastAction = action
	return f.err
}

func (f *fakeAuthzService) GrantRole(ctx context.Context, actor, role string) error  { return nil }
func (f *fakeAuthzService) RevokeRole(ctx context.Context, actor, role string) error { return nil }

func newAuthzTestRouter(authz *fakeAuthzService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	s := &Server{authzSvc: authz}

	router := gin.New()
	router.Use(ActorMiddleware())
	router.Use(ErrorHandlingMiddleware())
	router.POST("/admin/op",
		s.RequireAuthz(authorization.ObjectMapping, authorization.ActionMappingClear),
		func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) },
	)
	return router
}

func TestRequireAuthz_MissingActorIsUnauthorized(t *testing.T) {
	authz := &fakeAuthzService{}
	router := newAuthzTestRouter(authz)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/op", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, authz.lastActor)
}

func TestRequireAuthz_ForbiddenActorIs403(t *testing.T) {
	authz := &fakeAuthzService{err: authorization.ErrForbidden}
	router := newAuthzTestRouter(authz)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/op", nil)
	req.Header.Set("X-Actor", "user:1001")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "user:1001", authz.lastActor)
	assert.Equal(t, authorization.ObjectMapping, authz.lastObject)
	assert.Equal(t, authorization.ActionMappingClear, authz.lastAction)
}

func TestRequireAuthz_AllowedActorPassesThrough(t *testing.T) {
	authz := &fakeAuthzService{}
	router := newAuthzTestRouter(authz)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/op", nil)
	req.Header.Set("X-Actor", "system")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "system", authz.lastActor)
}

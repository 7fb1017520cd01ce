package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/lilasstudio/crmlink/internal/cache"
	"github.com/lilasstudio/crmlink/internal/clock"
	pkgcachedomain "github.com/lilasstudio/crmlink/internal/pkgcache/domain"
	profiledomain "github.com/lilasstudio/crmlink/internal/profile/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProfileService struct {
	profiledomain.Service
	profile profiledomain.Profile
	err     error
}

func (f *fakeProfileService) GetByPlatformUserID(ctx context.Context, platformUserID string) (profiledomain.Profile, error) {
	if f.err != nil {
		return profiledomain.Profile{}, f.err
	}
	return f.profile, nil
}

type fakePackageService struct {
	pkgcachedomain.Service
	snapshot pkgcachedomain.Snapshot
	err      error
	calls    int
}

func (f *fakePackageService) GetCached(ctx context.Context, profileID string) (pkgcachedomain.Snapshot, error) {
	f.calls++
	if f.err != nil {
		return pkgcachedomain.Snapshot{}, f.err
	}
	return f.snapshot, nil
}

func newMembershipTestServer(t *testing.T, profiles *fakeProfileService, packages *fakePackageService, now time.Time) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &Server{
		log:        zap.NewNop(),
		clock:      clock.NewFakeClock(now),
		profileSvc: profiles,
		packageSvc: packages,
		membership: cache.NewMembershipViewCache(nil, zap.NewNop()),
	}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.GET("/api/membership/:platformUserId", s.GetMembership)
	return s, router
}

func membershipFixture(now time.Time) (*fakeProfileService, *fakePackageService) {
	expires := now.Add(24 * time.Hour)
	expired := now.Add(-time.Hour)
	profiles := &fakeProfileService{
		profile: profiledomain.Profile{ID: snowflake.ID(1001), PlatformUserID: "PU-1"},
	}
	packages := &fakePackageService{
		snapshot: pkgcachedomain.Snapshot{
			ProfileID:  snowflake.ID(1001),
			CustomerID: "cust-a",
			Items: []pkgcachedomain.Item{
				{PackageName: "10 sessions", TotalUnits: 10, RemainingUnits: 4, ExpiresAt: &expires},
				{PackageName: "old pack", TotalUnits: 10, RemainingUnits: 9, ExpiresAt: &expired},
				{PackageName: "drained", TotalUnits: 5, RemainingUnits: 0},
			},
		},
	}
	return profiles, packages
}

func TestGetMembership_ComputesActiveFromUsableItems(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	profiles, packages := membershipFixture(now)
	_, router := newMembershipTestServer(t, profiles, packages, now)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/membership/PU-1", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data   cache.MembershipView `json:"data"`
		Cached bool                 `json:"cached"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Cached)
	assert.True(t, body.Data.Active)
	assert.Equal(t, 4, body.Data.RemainingUnits)
	assert.Equal(t, "cust-a", body.Data.CustomerID)
}

func TestGetMembership_SecondReadServedFromCache(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	profiles, packages := membershipFixture(now)
	_, router := newMembershipTestServer(t, profiles, packages, now)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/membership/PU-1", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, 1, packages.calls)
}

func TestGetMembership_InactiveWhenNothingUsable(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	profiles, packages := membershipFixture(now)
	packages.snapshot.Items = packages.snapshot.Items[2:]
	_, router := newMembershipTestServer(t, profiles, packages, now)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/membership/PU-1", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data cache.MembershipView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Data.Active)
	assert.Zero(t, body.Data.RemainingUnits)
}

func TestGetMembership_UnknownPlatformUserIs404(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	profiles, packages := membershipFixture(now)
	profiles.err = profiledomain.ErrNotFound
	_, router := newMembershipTestServer(t, profiles, packages, now)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/membership/PU-unknown", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetMembership_NotSyncedYetIs404(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	profiles, packages := membershipFixture(now)
	packages.err = pkgcachedomain.ErrNotCached
	_, router := newMembershipTestServer(t, profiles, packages, now)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/membership/PU-1", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

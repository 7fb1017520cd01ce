package resync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lilasstudio/crmlink/internal/clock"
	crmdomain "github.com/lilasstudio/crmlink/internal/crm/domain"
	identitydomain "github.com/lilasstudio/crmlink/internal/identity/domain"
	pkgcachedomain "github.com/lilasstudio/crmlink/internal/pkgcache/domain"
	profiledomain "github.com/lilasstudio/crmlink/internal/profile/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeProfileStore serves deterministic pages so the runner's cursor walk
// can be exercised without a database.
type fakeProfileStore struct {
	profiledomain.Service

	profiles []profiledomain.Profile
	pageSize int32
}

func (f *fakeProfileStore) List(ctx context.Context, req profiledomain.ListProfileRequest) (profiledomain.ListProfileResponse, error) {
	f.pageSize = req.PageSize

	start := 0
	if req.PageToken != "" {
		for i, p := range f.profiles {
			if p.ID.String() == req.PageToken {
				start = i + 1
				break
			}
		}
	}

	end := start + int(req.PageSize)
	if end > len(f.profiles) {
		end = len(f.profiles)
	}

	resp := profiledomain.ListProfileResponse{Profiles: f.profiles[start:end]}
	if end < len(f.profiles) {
		resp.NextPageToken = f.profiles[end-1].ID.String()
	}
	return resp, nil
}

// fakePackages records sync calls and fails the profiles it is told to.
type fakePackages struct {
	mu       sync.Mutex
	synced   []string
	inFlight int
	peak     int
	failWith map[string]error
	delay    time.Duration
}

func (f *fakePackages) Sync(ctx context.Context, profileID string) (pkgcachedomain.Snapshot, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.synced = append(f.synced, profileID)
	err := f.failWith[profileID]
	f.mu.Unlock()

	if err != nil {
		return pkgcachedomain.Snapshot{}, err
	}
	return pkgcachedomain.Snapshot{}, nil
}

func (f *fakePackages) GetCached(ctx context.Context, profileID string) (pkgcachedomain.Snapshot, error) {
	return pkgcachedomain.Snapshot{}, pkgcachedomain.ErrNotCached
}

type noopAudit struct{}

func (noopAudit) Record(ctx context.Context, action string, profileID snowflake.ID, metadata map[string]interface{}) {
}

func makeProfiles(t *testing.T, n int) []profiledomain.Profile {
	t.Helper()
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	profiles := make([]profiledomain.Profile, 0, n)
	for i := 0; i < n; i++ {
		profiles = append(profiles, profiledomain.Profile{
			ID:       node.Generate(),
			Provider: "line",
		})
	}
	return profiles
}

func newRunner(t *testing.T, store profiledomain.Service, packages *fakePackages, cfg Config) *Runner {
	t.Helper()
	return New(Params{
		Log:      zap.NewNop(),
		Clock:    clock.NewFakeClock(time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)),
		Profiles: store,
		Packages: packages,
		Audit:    noopAudit{},
		Config:   cfg,
	})
}

func TestRun_SyncsEveryProfile(t *testing.T) {
	profiles := makeProfiles(t, 7)
	store := &fakeProfileStore{profiles: profiles}
	packages := &fakePackages{}

	runner := newRunner(t, store, packages, Config{BatchSize: 3})
	report, err := runner.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 7, report.Processed)
	assert.Equal(t, 7, report.Succeeded)
	assert.Zero(t, report.Failed)
	assert.NotEmpty(t, report.RunID)
	assert.Len(t, packages.synced, 7)
	assert.EqualValues(t, 3, store.pageSize)
}

func TestRun_IsolatesPerProfileFailures(t *testing.T) {
	profiles := makeProfiles(t, 5)
	store := &fakeProfileStore{profiles: profiles}
	packages := &fakePackages{
		failWith: map[string]error{
			profiles[1].ID.String(): crmdomain.ErrUpstreamTimeout,
			profiles[3].ID.String(): identitydomain.ErrUnresolvedIdentity,
		},
	}

	runner := newRunner(t, store, packages, Config{BatchSize: 2})
	report, err := runner.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 5, report.Processed)
	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, profiles[1].ID.String(), report.Failures[0].ProfileID)
	assert.Contains(t, report.Failures[0].Reason, "upstream_timeout")
}

func TestRun_RespectsMaxProfiles(t *testing.T) {
	profiles := makeProfiles(t, 10)
	store := &fakeProfileStore{profiles: profiles}
	packages := &fakePackages{}

	runner := newRunner(t, store, packages, Config{BatchSize: 4})
	report, err := runner.Run(context.Background(), Options{MaxProfiles: 6})
	require.NoError(t, err)

	assert.Equal(t, 6, report.Processed)
	assert.Len(t, packages.synced, 6)
}

func TestRun_BoundsInFlightConcurrency(t *testing.T) {
	profiles := makeProfiles(t, 12)
	store := &fakeProfileStore{profiles: profiles}
	packages := &fakePackages{delay: 10 * time.Millisecond}

	runner := newRunner(t, store, packages, Config{BatchSize: 12, MaxInFlight: 2})
	_, err := runner.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.LessOrEqual(t, packages.peak, 2)
}

func TestRun_EmptyProfileSet(t *testing.T) {
	store := &fakeProfileStore{}
	packages := &fakePackages{}

	runner := newRunner(t, store, packages, Config{})
	report, err := runner.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Zero(t, report.Processed)
	assert.Empty(t, packages.synced)
}

func TestRun_ListErrorAborts(t *testing.T) {
	store := &failingProfileStore{err: errors.New("db down")}
	packages := &fakePackages{}

	runner := newRunner(t, store, packages, Config{})
	_, err := runner.Run(context.Background(), Options{})
	assert.Error(t, err)
}

type failingProfileStore struct {
	profiledomain.Service
	err error
}

func (f *failingProfileStore) List(ctx context.Context, req profiledomain.ListProfileRequest) (profiledomain.ListProfileResponse, error) {
	return profiledomain.ListProfileResponse{}, f.err
}

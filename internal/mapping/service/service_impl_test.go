package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/lilasstudio/crmlink/internal/config"
	"github.com/lilasstudio/crmlink/internal/mapping/domain"
	"github.com/lilasstudio/crmlink/internal/mapping/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Mapping{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Repo:   repository.Provide(),
		Policy: config.StaticMatchingPolicyHolder(config.DefaultMatchingPolicy()),
	})
	return svc.(*Service), db, node
}

func recordReq(profileID snowflake.ID, customerID string, confidence int) domain.RecordMatchRequest {
	return domain.RecordMatchRequest{
		ProfileID: profileID.String(),
		Candidate: domain.CandidateInput{
			CustomerID:   customerID,
			StableHashID: "hash-" + customerID,
			Confidence:   confidence,
		},
	}
}

func TestRecordMatch_CreatesActiveMapping(t *testing.T) {
	svc, _, node := newTestService(t)
	ctx := context.Background()
	profileID := node.Generate()

	active, err := svc.RecordMatch(ctx, recordReq(profileID, "cust-1", 90))
	require.NoError(t, err)
	assert.Equal(t, "cust-1", active.CustomerID)
	assert.Equal(t, 90, active.Confidence)
	assert.Equal(t, domain.MatchMethodAuto, active.Method)
	assert.True(t, active.Matched)

	got, err := svc.GetActiveMapping(ctx, profileID.String())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, active.ID, got.ID)
}

func TestRecordMatch_BelowThresholdRejected(t *testing.T) {
	svc, db, node := newTestService(t)
	ctx := context.Background()
	profileID := node.Generate()

	_, err := svc.RecordMatch(ctx, recordReq(profileID, "cust-1", 40))
	assert.ErrorIs(t, err, domain.ErrBelowThreshold)

	var count int64
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM customer_mappings WHERE profile_id = ?`, profileID).Scan(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestRecordMatch_BelowThresholdKeptUnmatched(t *testing.T) {
	svc, db, node := newTestService(t)
	ctx := context.Background()
	profileID := node.Generate()

	req := recordReq(profileID, "cust-1", 40)
	req.KeepBelowThreshold = true
	_, err := svc.RecordMatch(ctx, req)
	assert.ErrorIs(t, err, domain.ErrBelowThreshold)

	var row domain.Mapping
	require.NoError(t, db.Raw(`SELECT * FROM customer_mappings WHERE profile_id = ?`, profileID).Scan(&row).Error)
	assert.False(t, row.Matched)
	assert.Equal(t, 40, row.Confidence)

	got, err := svc.GetActiveMapping(ctx, profileID.String())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRecordMatch_ManualBypassesThreshold(t *testing.T) {
	svc, _, node := newTestService(t)
	ctx := context.Background()
	profileID := node.Generate()

	req := recordReq(profileID, "cust-1", 10)
	req.Method = domain.MatchMethodManual
	active, err := svc.RecordMatch(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchMethodManual, active.Method)
	assert.True(t, active.Matched)
}

func TestRecordMatch_IdempotentForSamePair(t *testing.T) {
	svc, db, node := newTestService(t)
	ctx := context.Background()
	profileID := node.Generate()

	first, err := svc.RecordMatch(ctx, recordReq(profileID, "cust-1", 90))
	require.NoError(t, err)

	// Same candidate again with a different score: the existing row is
	// reactivated as-is, no second row, confidence untouched.
	second, err := svc.RecordMatch(ctx, recordReq(profileID, "cust-1", 75))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 90, second.Confidence)

	var count int64
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM customer_mappings WHERE profile_id = ?`, profileID).Scan(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestRecordMatch_HigherConfidenceTakesOver(t *testing.T) {
	svc, db, node := newTestService(t)
	ctx := context.Background()
	profileID := node.Generate()

	_, err := svc.RecordMatch(ctx, recordReq(profileID, "cust-a", 60))
	require.NoError(t, err)

	active, err := svc.RecordMatch(ctx, recordReq(profileID, "cust-b", 80))
	require.NoError(t, err)
	assert.Equal(t, "cust-b", active.CustomerID)

	var matchedCount int64
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM customer_mappings WHERE profile_id = ? AND matched = ?`, profileID, true).Scan(&matchedCount).Error)
	assert.EqualValues(t, 1, matchedCount)

	var total int64
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM customer_mappings WHERE profile_id = ?`, profileID).Scan(&total).Error)
	assert.EqualValues(t, 2, total)
}

func TestRecordMatch_LowerConfidenceDoesNotTakeOver(t *testing.T) {
	svc, _, node := newTestService(t)
	ctx := context.Background()
	profileID := node.Generate()

	_, err := svc.RecordMatch(ctx, recordReq(profileID, "cust-a", 80))
	require.NoError(t, err)

	active, err := svc.RecordMatch(ctx, recordReq(profileID, "cust-b", 60))
	require.NoError(t, err)
	assert.Equal(t, "cust-a", active.CustomerID)

	got, err := svc.GetActiveMapping(ctx, profileID.String())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "cust-a", got.CustomerID)
}

func TestRecordMatch_InvalidInput(t *testing.T) {
	svc, _, node := newTestService(t)
	ctx := context.Background()

	_, err := svc.RecordMatch(ctx, recordReq(0, "cust-1", 90))
	assert.ErrorIs(t, err, domain.ErrInvalidProfileID)

	_, err = svc.RecordMatch(ctx, domain.RecordMatchRequest{
		ProfileID: "not-a-number",
		Candidate: domain.CandidateInput{CustomerID: "cust-1", Confidence: 90},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidProfileID)

	_, err = svc.RecordMatch(ctx, recordReq(node.Generate(), "  ", 90))
	assert.ErrorIs(t, err, domain.ErrInvalidCandidate)
}

func TestDeduplicate_RetentionOrder(t *testing.T) {
	svc, db, node := newTestService(t)
	ctx := context.Background()
	repo := repository.Provide()
	profileID := node.Generate()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := []domain.Mapping{
		{ID: node.Generate(), ProfileID: profileID, CustomerID: "cust-a", Method: domain.MatchMethodAuto, Confidence: 70, Matched: true, CreatedAt: base, UpdatedAt: base},
		{ID: node.Generate(), ProfileID: profileID, CustomerID: "cust-b", Method: domain.MatchMethodAuto, Confidence: 90, Matched: true, CreatedAt: base, UpdatedAt: base.Add(time.Hour)},
		{ID: node.Generate(), ProfileID: profileID, CustomerID: "cust-c", Method: domain.MatchMethodAuto, Confidence: 90, Matched: true, CreatedAt: base, UpdatedAt: base.Add(2 * time.Hour)},
	}
	for i := range rows {
		require.NoError(t, repo.Insert(ctx, db, &rows[i]))
	}

	// Highest confidence wins; the confidence tie breaks on the most
	// recently updated row.
	retained, err := svc.Deduplicate(ctx, profileID.String())
	require.NoError(t, err)
	require.NotNil(t, retained)
	assert.Equal(t, "cust-c", retained.CustomerID)

	var matchedCount int64
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM customer_mappings WHERE profile_id = ? AND matched = ?`, profileID, true).Scan(&matchedCount).Error)
	assert.EqualValues(t, 1, matchedCount)

	again, err := svc.Deduplicate(ctx, profileID.String())
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, retained.ID, again.ID)
}

func TestDeduplicate_TieBreaksOnLowerID(t *testing.T) {
	svc, db, node := newTestService(t)
	ctx := context.Background()
	repo := repository.Provide()
	profileID := node.Generate()

	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	first := node.Generate()
	second := node.Generate()
	require.Less(t, first, second)

	rows := []domain.Mapping{
		{ID: second, ProfileID: profileID, CustomerID: "cust-b", Method: domain.MatchMethodAuto, Confidence: 80, Matched: true, CreatedAt: ts, UpdatedAt: ts},
		{ID: first, ProfileID: profileID, CustomerID: "cust-a", Method: domain.MatchMethodAuto, Confidence: 80, Matched: true, CreatedAt: ts, UpdatedAt: ts},
	}
	for i := range rows {
		require.NoError(t, repo.Insert(ctx, db, &rows[i]))
	}

	retained, err := svc.Deduplicate(ctx, profileID.String())
	require.NoError(t, err)
	require.NotNil(t, retained)
	assert.Equal(t, first, retained.ID)
}

func TestDeduplicate_NoMatchedRows(t *testing.T) {
	svc, _, node := newTestService(t)

	retained, err := svc.Deduplicate(context.Background(), node.Generate().String())
	require.NoError(t, err)
	assert.Nil(t, retained)
}

func TestGetActiveMapping_FailsFastOnMultiple(t *testing.T) {
	svc, db, node := newTestService(t)
	ctx := context.Background()
	repo := repository.Provide()
	profileID := node.Generate()

	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, cust := range []string{"cust-a", "cust-b"} {
		row := domain.Mapping{
			ID:         node.Generate(),
			ProfileID:  profileID,
			CustomerID: cust,
			Method:     domain.MatchMethodAuto,
			Confidence: 60 + i,
			Matched:    true,
			CreatedAt:  ts,
			UpdatedAt:  ts,
		}
		require.NoError(t, repo.Insert(ctx, db, &row))
	}

	_, err := svc.GetActiveMapping(ctx, profileID.String())
	assert.ErrorIs(t, err, domain.ErrMultipleActiveMappings)

	_, err = svc.Deduplicate(ctx, profileID.String())
	require.NoError(t, err)

	got, err := svc.GetActiveMapping(ctx, profileID.String())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "cust-b", got.CustomerID)
}

func TestClearMapping_WithdrawsAndReactivates(t *testing.T) {
	svc, _, node := newTestService(t)
	ctx := context.Background()
	profileID := node.Generate()

	recorded, err := svc.RecordMatch(ctx, recordReq(profileID, "cust-1", 90))
	require.NoError(t, err)

	require.NoError(t, svc.ClearMapping(ctx, profileID.String()))

	got, err := svc.GetActiveMapping(ctx, profileID.String())
	require.NoError(t, err)
	assert.Nil(t, got)

	err = svc.ClearMapping(ctx, profileID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Matching the same candidate again reuses the withdrawn row.
	reactivated, err := svc.RecordMatch(ctx, recordReq(profileID, "cust-1", 90))
	require.NoError(t, err)
	assert.Equal(t, recorded.ID, reactivated.ID)
	assert.True(t, reactivated.Matched)
}

func TestCleanup_RemovesUnmatchedOnly(t *testing.T) {
	svc, db, node := newTestService(t)
	ctx := context.Background()
	profileID := node.Generate()

	_, err := svc.RecordMatch(ctx, recordReq(profileID, "cust-a", 80))
	require.NoError(t, err)
	_, err = svc.RecordMatch(ctx, recordReq(profileID, "cust-b", 60))
	require.NoError(t, err)

	removed, err := svc.Cleanup(ctx, profileID.String())
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	var total int64
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM customer_mappings WHERE profile_id = ?`, profileID).Scan(&total).Error)
	assert.EqualValues(t, 1, total)

	got, err := svc.GetActiveMapping(ctx, profileID.String())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "cust-a", got.CustomerID)
}

// racingRepo interleaves a competing insert for the same (profile, customer)
// pair right before the service's own insert, so the unique index rejects the
// second row the way a concurrent RecordMatch would.
type racingRepo struct {
	domain.Repository
	node    *snowflake.Node
	raceRun bool
}

func (r *racingRepo) Insert(ctx context.Context, db *gorm.DB, m *domain.Mapping) error {
	if !r.raceRun {
		r.raceRun = true
		competitor := *m
		competitor.ID = r.node.Generate()
		competitor.Confidence = 95
		if err := r.Repository.Insert(ctx, db, &competitor); err != nil {
			return err
		}
	}
	return r.Repository.Insert(ctx, db, m)
}

func TestRecordMatch_ConcurrentInsertReactivatesWinner(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Mapping{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	repo := &racingRepo{Repository: repository.Provide(), node: node}
	svc := New(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Repo:   repo,
		Policy: config.StaticMatchingPolicyHolder(config.DefaultMatchingPolicy()),
	}).(*Service)

	ctx := context.Background()
	profileID := node.Generate()

	active, err := svc.RecordMatch(ctx, recordReq(profileID, "cust-1", 90))
	require.NoError(t, err)
	assert.True(t, repo.raceRun)
	assert.Equal(t, "cust-1", active.CustomerID)
	assert.True(t, active.Matched)
	// The first writer's row wins and keeps its recorded confidence.
	assert.Equal(t, 95, active.Confidence)

	rows, err := repo.ListByProfile(ctx, db, profileID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "cust-1", rows[0].CustomerID)
	assert.True(t, rows[0].Matched)
	assert.Equal(t, active.ID, rows[0].ID)
}

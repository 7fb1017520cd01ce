package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/lilasstudio/crmlink/internal/profile/domain"
	"github.com/lilasstudio/crmlink/internal/profile/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) domain.Service {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Profile{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
	})
}

func TestUpsertLogin_CreatesProfileOnFirstLogin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	profile, err := svc.UpsertLogin(ctx, domain.UpsertLoginRequest{
		Provider:       "LINE",
		SubjectID:      "U12345",
		PlatformUserID: "U12345",
		DisplayName:    "Somchai Prasert",
	})
	require.NoError(t, err)
	assert.NotZero(t, profile.ID)
	assert.Equal(t, "line", profile.Provider)
	assert.Nil(t, profile.CustomerID)
}

func TestUpsertLogin_IdempotentForSameSubject(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.UpsertLogin(ctx, domain.UpsertLoginRequest{
		Provider:  "line",
		SubjectID: "U12345",
	})
	require.NoError(t, err)

	second, err := svc.UpsertLogin(ctx, domain.UpsertLoginRequest{
		Provider:    "line",
		SubjectID:   "U12345",
		DisplayName: "Changed Name",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestUpsertLogin_Validation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.UpsertLogin(ctx, domain.UpsertLoginRequest{SubjectID: "U12345"})
	assert.ErrorIs(t, err, domain.ErrInvalidProvider)

	_, err = svc.UpsertLogin(ctx, domain.UpsertLoginRequest{Provider: "line", SubjectID: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidSubject)
}

func TestCaptureContact_NormalizesAndStores(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.UpsertLogin(ctx, domain.UpsertLoginRequest{Provider: "line", SubjectID: "U1"})
	require.NoError(t, err)

	updated, err := svc.CaptureContact(ctx, domain.CaptureContactRequest{
		ProfileID: created.ID.String(),
		Phone:     "+66 81-234-5678",
		Email:     " Somchai@Example.COM ",
	})
	require.NoError(t, err)
	assert.Equal(t, "0812345678", updated.Phone)
	assert.Equal(t, "somchai@example.com", updated.Email)

	got, err := svc.GetByID(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "0812345678", got.Phone)
}

func TestCaptureContact_PartialUpdateKeepsOtherAttribute(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.UpsertLogin(ctx, domain.UpsertLoginRequest{Provider: "line", SubjectID: "U1"})
	require.NoError(t, err)

	_, err = svc.CaptureContact(ctx, domain.CaptureContactRequest{
		ProfileID: created.ID.String(),
		Phone:     "0812345678",
	})
	require.NoError(t, err)

	updated, err := svc.CaptureContact(ctx, domain.CaptureContactRequest{
		ProfileID: created.ID.String(),
		Email:     "somchai@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "0812345678", updated.Phone)
	assert.Equal(t, "somchai@example.com", updated.Email)
}

func TestCaptureContact_RequiresSomeContact(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.UpsertLogin(ctx, domain.UpsertLoginRequest{Provider: "line", SubjectID: "U1"})
	require.NoError(t, err)

	_, err = svc.CaptureContact(ctx, domain.CaptureContactRequest{
		ProfileID: created.ID.String(),
		Phone:     "no digits here",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidContact)
}

func TestGetByID_InvalidAndMissing(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetByID(ctx, "not-a-snowflake")
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	_, err = svc.GetByID(ctx, "99999999999")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetByPlatformUserID(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.UpsertLogin(ctx, domain.UpsertLoginRequest{
		Provider:       "line",
		SubjectID:      "U1",
		PlatformUserID: "PU-1",
	})
	require.NoError(t, err)

	got, err := svc.GetByPlatformUserID(ctx, " PU-1 ")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = svc.GetByPlatformUserID(ctx, "PU-missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAssignAndClearCustomer(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.UpsertLogin(ctx, domain.UpsertLoginRequest{Provider: "line", SubjectID: "U1"})
	require.NoError(t, err)

	require.NoError(t, svc.AssignCustomer(ctx, created.ID.String(), "cust-a"))
	got, err := svc.GetByID(ctx, created.ID.String())
	require.NoError(t, err)
	require.NotNil(t, got.CustomerID)
	assert.Equal(t, "cust-a", *got.CustomerID)
	assert.True(t, got.Resolved())

	require.NoError(t, svc.ClearCustomer(ctx, created.ID.String()))
	got, err = svc.GetByID(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Nil(t, got.CustomerID)
}

func TestList_PagesAndFiltersUnresolved(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	var resolved string
	for i := 0; i < 5; i++ {
		created, err := svc.UpsertLogin(ctx, domain.UpsertLoginRequest{
			Provider:  "line",
			SubjectID: fmt.Sprintf("U%d", i),
		})
		require.NoError(t, err)
		if i == 0 {
			resolved = created.ID.String()
		}
	}
	require.NoError(t, svc.AssignCustomer(ctx, resolved, "cust-a"))

	page, err := svc.List(ctx, domain.ListProfileRequest{PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, page.Profiles, 2)
	assert.True(t, page.HasMore)
	require.NotEmpty(t, page.NextPageToken)

	rest, err := svc.List(ctx, domain.ListProfileRequest{PageSize: 10, PageToken: page.NextPageToken})
	require.NoError(t, err)
	assert.Len(t, rest.Profiles, 3)
	assert.False(t, rest.HasMore)

	unresolved, err := svc.List(ctx, domain.ListProfileRequest{PageSize: 10, OnlyUnresolved: true})
	require.NoError(t, err)
	assert.Len(t, unresolved.Profiles, 4)
	for _, p := range unresolved.Profiles {
		assert.False(t, p.Resolved())
	}
}

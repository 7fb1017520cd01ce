package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/lilasstudio/crmlink/internal/audit"
	"github.com/lilasstudio/crmlink/internal/cache"
	"github.com/lilasstudio/crmlink/internal/clock"
	crmdomain "github.com/lilasstudio/crmlink/internal/crm/domain"
	identitydomain "github.com/lilasstudio/crmlink/internal/identity/domain"
	"github.com/lilasstudio/crmlink/internal/pkgcache/domain"
	profiledomain "github.com/lilasstudio/crmlink/internal/profile/domain"
	"github.com/lilasstudio/crmlink/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	Ledger     crmdomain.Ledger
	Identity   identitydomain.Service
	Profiles   profiledomain.Service
	Membership cache.MembershipViewCache
	Audit      audit.Recorder
	Limiter    *ratelimit.CRMCallLimiter `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	ledger     crmdomain.Ledger
	identity   identitydomain.Service
	profiles   profiledomain.Service
	membership cache.MembershipViewCache
	audit      audit.Recorder
	limiter    *ratelimit.CRMCallLimiter
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("pkgcache.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		ledger:     p.Ledger,
		identity:   p.Identity,
		profiles:   p.Profiles,
		membership: p.Membership,
		audit:      p.Audit,
		limiter:    p.Limiter,
	}
}

func (s *Service) Sync(ctx context.Context, profileID string) (domain.Snapshot, error) {
	profile, err := s.profiles.GetByID(ctx, profileID)
	if err != nil {
		return domain.Snapshot{}, err
	}

	resolution, err := s.identity.ResolveProfile(ctx, profileID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	mapping := resolution.Mapping

	stableHashID := strings.TrimSpace(mapping.StableHashID)
	if stableHashID == "" {
		// Mappings recorded before the hash column existed. Recompute from
		// the profile's own attributes the same way the directory adapter
		// does.
		stableHashID = crmdomain.StableHashID(profile.DisplayName, profile.Phone, profile.Email)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return domain.Snapshot{}, err
	}

	records, err := s.ledger.Packages(ctx, stableHashID)
	if err != nil {
		// Upstream failure leaves the previous cache entry intact.
		return domain.Snapshot{}, err
	}

	now := s.clock.Now()
	snapshot := domain.Snapshot{
		ID:           s.genID.Generate(),
		ProfileID:    profile.ID,
		CustomerID:   mapping.CustomerID,
		StableHashID: stableHashID,
		SyncedAt:     now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	items := make([]domain.Item, 0, len(records))
	for _, record := range records {
		items = append(items, domain.Item{
			ID:             s.genID.Generate(),
			PackageName:    record.PackageName,
			TotalUnits:     record.TotalUnits,
			RemainingUnits: record.RemainingUnits,
			ExpiresAt:      record.ExpiresAt,
			CreatedAt:      now,
		})
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		return s.repo.Replace(ctx, tx, &snapshot, items)
	})
	if err != nil {
		return domain.Snapshot{}, err
	}
	snapshot.Items = items

	if profile.PlatformUserID != "" {
		s.membership.Invalidate(ctx, profile.PlatformUserID)
	}

	s.audit.Record(ctx, audit.ActionPackageSynced, profile.ID, map[string]interface{}{
		"customer_id": mapping.CustomerID,
		"packages":    len(items),
	})

	s.log.Info("packages synced",
		zap.String("profile_id", profileID),
		zap.String("customer_id", mapping.CustomerID),
		zap.Int("packages", len(items)),
	)

	return snapshot, nil
}

func (s *Service) GetCached(ctx context.Context, profileID string) (domain.Snapshot, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(profileID))
	if err != nil || id == 0 {
		return domain.Snapshot{}, domain.ErrInvalidProfileID
	}

	snapshot, err := s.repo.FindByProfile(ctx, s.db, id)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if snapshot == nil {
		return domain.Snapshot{}, domain.ErrNotCached
	}

	items, err := s.repo.ListItems(ctx, s.db, snapshot.ID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snapshot.Items = items
	return *snapshot, nil
}

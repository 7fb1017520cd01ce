package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lilasstudio/crmlink/internal/config"
	"github.com/lilasstudio/crmlink/internal/mapping/domain"
	"github.com/lilasstudio/crmlink/internal/ratelimit"
	"github.com/lilasstudio/crmlink/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	profileLockKeyPrefix = "mapping:profile:"
	profileLockTTL       = 10 * time.Second
	lockAttempts         = 3
	lockRetryDelay       = 50 * time.Millisecond
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Repo   domain.Repository
	Policy *config.MatchingPolicyHolder
	Locker *ratelimit.Locker `optional:"true"`
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	repo   domain.Repository
	policy *config.MatchingPolicyHolder
	locker *ratelimit.Locker
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("mapping.service"),
		genID:  p.GenID,
		repo:   p.Repo,
		policy: p.Policy,
		locker: p.Locker,
	}
}

func (s *Service) RecordMatch(ctx context.Context, req domain.RecordMatchRequest) (domain.Mapping, error) {
	profileID, err := s.parseID(req.ProfileID)
	if err != nil {
		return domain.Mapping{}, err
	}

	customerID := strings.TrimSpace(req.Candidate.CustomerID)
	if customerID == "" {
		return domain.Mapping{}, domain.ErrInvalidCandidate
	}

	confidence := req.Candidate.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}

	method := req.Method
	if method == "" {
		method = domain.MatchMethodAuto
	}

	threshold := s.policy.Current().AcceptThreshold
	if confidence < threshold && method != domain.MatchMethodManual {
		if req.KeepBelowThreshold {
			if err := s.insertRow(ctx, s.db, profileID, customerID, req.Candidate.StableHashID, method, confidence, false); err != nil && !db.IsDuplicateKeyErr(err) {
				return domain.Mapping{}, err
			}
		}
		return domain.Mapping{}, domain.ErrBelowThreshold
	}

	release := s.lockProfile(ctx, profileID)
	defer release()

	var active *domain.Mapping
	err = s.db.Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByProfileAndCustomer(ctx, tx, profileID, customerID)
		if err != nil {
			return err
		}

		if existing != nil {
			// Rows are immutable except the matched flag; reactivation
			// keeps the originally recorded confidence.
			if err := s.repo.SetMatched(ctx, tx, existing.ID, true); err != nil {
				return err
			}
		} else {
			insertErr := s.insertRow(ctx, tx, profileID, customerID, req.Candidate.StableHashID, method, confidence, true)
			if insertErr != nil {
				// A racing request inserted the same (profile, customer)
				// pair first; reactivate that row instead.
				if !db.IsDuplicateKeyErr(insertErr) {
					return insertErr
				}
				winner, findErr := s.repo.FindByProfileAndCustomer(ctx, tx, profileID, customerID)
				if findErr != nil {
					return findErr
				}
				if winner == nil {
					return insertErr
				}
				if err := s.repo.SetMatched(ctx, tx, winner.ID, true); err != nil {
					return err
				}
			}
		}

		active, err = s.dedupTx(ctx, tx, profileID)
		return err
	})
	if err != nil {
		return domain.Mapping{}, err
	}
	if active == nil {
		return domain.Mapping{}, domain.ErrNotFound
	}

	s.log.Info("match recorded",
		zap.String("profile_id", profileID.String()),
		zap.String("customer_id", customerID),
		zap.String("active_customer_id", active.CustomerID),
		zap.Int("confidence", confidence),
		zap.String("method", string(method)),
	)

	return *active, nil
}

func (s *Service) GetActiveMapping(ctx context.Context, profileID string) (*domain.Mapping, error) {
	id, err := s.parseID(profileID)
	if err != nil {
		return nil, err
	}

	matched, err := s.repo.ListMatchedByProfile(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	switch len(matched) {
	case 0:
		return nil, nil
	case 1:
		mapping := matched[0]
		return &mapping, nil
	default:
		// Invariant violation from a race or legacy data. Reads never
		// pick silently; the deduplicator is the convergence mechanism.
		return nil, domain.ErrMultipleActiveMappings
	}
}

func (s *Service) ClearMapping(ctx context.Context, profileID string) error {
	id, err := s.parseID(profileID)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		matched, err := s.repo.ListMatchedByProfile(ctx, tx, id)
		if err != nil {
			return err
		}
		switch len(matched) {
		case 0:
			return domain.ErrNotFound
		case 1:
			return s.repo.SetMatched(ctx, tx, matched[0].ID, false)
		default:
			return domain.ErrMultipleActiveMappings
		}
	})
}

func (s *Service) Deduplicate(ctx context.Context, profileID string) (*domain.Mapping, error) {
	id, err := s.parseID(profileID)
	if err != nil {
		return nil, err
	}

	var retained *domain.Mapping
	err = s.db.Transaction(func(tx *gorm.DB) error {
		retained, err = s.dedupTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return retained, nil
}

func (s *Service) Cleanup(ctx context.Context, profileID string) (int64, error) {
	id, err := s.parseID(profileID)
	if err != nil {
		return 0, err
	}

	var removed int64
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.dedupTx(ctx, tx, id); err != nil {
			return err
		}
		removed, err = s.repo.DeleteUnmatchedByProfile(ctx, tx, id)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("mapping cleanup",
		zap.String("profile_id", id.String()),
		zap.Int64("removed", removed),
	)
	return removed, nil
}

// dedupTx converges the profile to at most one matched row. The retention
// order (confidence desc, updated_at desc, id asc) is total, so the outcome
// is independent of row iteration order and repeated runs are no-ops.
func (s *Service) dedupTx(ctx context.Context, tx *gorm.DB, profileID snowflake.ID) (*domain.Mapping, error) {
	matched, err := s.repo.ListMatchedByProfile(ctx, tx, profileID)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, nil
	}

	winner := matched[0]
	for _, row := range matched[1:] {
		if row.Supersedes(winner) {
			winner = row
		}
	}

	for _, row := range matched {
		if row.ID == winner.ID {
			continue
		}
		if err := s.repo.SetMatched(ctx, tx, row.ID, false); err != nil {
			return nil, err
		}
	}

	return &winner, nil
}

func (s *Service) insertRow(ctx context.Context, tx *gorm.DB, profileID snowflake.ID, customerID, stableHashID string, method domain.MatchMethod, confidence int, matched bool) error {
	now := time.Now().UTC()
	return s.repo.Insert(ctx, tx, &domain.Mapping{
		ID:           s.genID.Generate(),
		ProfileID:    profileID,
		CustomerID:   customerID,
		StableHashID: strings.TrimSpace(stableHashID),
		Method:       method,
		Confidence:   confidence,
		Matched:      matched,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

// lockProfile serializes RecordMatch per profile when redis is configured.
// The unique (profile_id, customer_id) constraint remains the hard guard;
// the advisory lock just narrows the race window.
func (s *Service) lockProfile(ctx context.Context, profileID snowflake.ID) func() {
	if s.locker == nil {
		return func() {}
	}

	key := profileLockKeyPrefix + profileID.String()
	for attempt := 0; attempt < lockAttempts; attempt++ {
		token, ok, err := s.locker.TryLock(ctx, key, profileLockTTL)
		if err != nil {
			s.log.Warn("profile lock unavailable", zap.Error(err))
			return func() {}
		}
		if ok {
			return func() {
				_ = s.locker.Release(context.WithoutCancel(ctx), key, token)
			}
		}
		select {
		case <-ctx.Done():
			return func() {}
		case <-time.After(lockRetryDelay):
		}
	}
	return func() {}
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidProfileID
	}
	return id, nil
}

package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/lilasstudio/crmlink/internal/audit"
	"github.com/lilasstudio/crmlink/internal/identity/domain"
	mappingdomain "github.com/lilasstudio/crmlink/internal/mapping/domain"
	matcherdomain "github.com/lilasstudio/crmlink/internal/matcher/domain"
	profiledomain "github.com/lilasstudio/crmlink/internal/profile/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Profiles profiledomain.Service
	Matcher  matcherdomain.Service
	Mappings mappingdomain.Service
	Audit    audit.Recorder
}

type Service struct {
	log      *zap.Logger
	profiles profiledomain.Service
	matcher  matcherdomain.Service
	mappings mappingdomain.Service
	audit    audit.Recorder
}

func New(p Params) domain.Service {
	return &Service{
		log:      p.Log.Named("identity.service"),
		profiles: p.Profiles,
		matcher:  p.Matcher,
		mappings: p.Mappings,
		audit:    p.Audit,
	}
}

func (s *Service) ResolveProfile(ctx context.Context, profileID string) (domain.Resolution, error) {
	profile, err := s.profiles.GetByID(ctx, profileID)
	if err != nil {
		return domain.Resolution{}, err
	}

	active, err := s.activeMapping(ctx, profileID)
	if err != nil {
		return domain.Resolution{}, err
	}
	if active != nil {
		if err := s.syncCustomerLink(ctx, profile, active.CustomerID); err != nil {
			return domain.Resolution{}, err
		}
		return domain.Resolution{ProfileID: profileID, Mapping: *active}, nil
	}

	return s.match(ctx, profile)
}

func (s *Service) ForceRematch(ctx context.Context, profileID string) (domain.Resolution, error) {
	profile, err := s.profiles.GetByID(ctx, profileID)
	if err != nil {
		return domain.Resolution{}, err
	}
	return s.match(ctx, profile)
}

func (s *Service) ClearMapping(ctx context.Context, profileID string) error {
	if err := s.mappings.ClearMapping(ctx, profileID); err != nil {
		return err
	}
	if err := s.profiles.ClearCustomer(ctx, profileID); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.ActionMatchCleared, parseProfileID(profileID), nil)
	return nil
}

func (s *Service) Deduplicate(ctx context.Context, profileID string) (*mappingdomain.Mapping, error) {
	retained, err := s.mappings.Deduplicate(ctx, profileID)
	if err != nil {
		return nil, err
	}

	metadata := map[string]interface{}{"retained": nil}
	if retained != nil {
		metadata["retained"] = retained.CustomerID
		profile, err := s.profiles.GetByID(ctx, profileID)
		if err != nil {
			return nil, err
		}
		if err := s.syncCustomerLink(ctx, profile, retained.CustomerID); err != nil {
			return nil, err
		}
	}
	s.audit.Record(ctx, audit.ActionDedupRun, parseProfileID(profileID), metadata)
	return retained, nil
}

// match runs the scorer and records the best candidate. The mapping store's
// retention order decides whether the new row actually becomes active, so a
// rematch can never silently downgrade an existing higher-confidence link.
func (s *Service) match(ctx context.Context, profile profiledomain.Profile) (domain.Resolution, error) {
	profileID := profile.ID.String()

	candidates, err := s.matcher.Match(ctx, matcherdomain.MatchInput{
		Name:  profile.DisplayName,
		Phone: profile.Phone,
		Email: profile.Email,
	})
	if err != nil {
		if errors.Is(err, matcherdomain.ErrInsufficientIdentity) {
			return domain.Resolution{}, domain.ErrUnresolvedIdentity
		}
		return domain.Resolution{}, err
	}
	if len(candidates) == 0 {
		return domain.Resolution{}, domain.ErrUnresolvedIdentity
	}

	best := candidates[0]
	active, err := s.mappings.RecordMatch(ctx, mappingdomain.RecordMatchRequest{
		ProfileID: profileID,
		Candidate: mappingdomain.CandidateInput{
			CustomerID:   best.CustomerID,
			StableHashID: best.StableHashID,
			Confidence:   best.Confidence,
		},
		Method:             mappingdomain.MatchMethodAuto,
		KeepBelowThreshold: true,
	})
	if err != nil {
		if errors.Is(err, mappingdomain.ErrBelowThreshold) {
			s.log.Info("no candidate above threshold",
				zap.String("profile_id", profileID),
				zap.Int("best_confidence", best.Confidence),
			)
			return domain.Resolution{}, domain.ErrUnresolvedIdentity
		}
		return domain.Resolution{}, err
	}

	if err := s.syncCustomerLink(ctx, profile, active.CustomerID); err != nil {
		return domain.Resolution{}, err
	}

	s.audit.Record(ctx, audit.ActionMatchRecorded, profile.ID, map[string]interface{}{
		"customer_id": active.CustomerID,
		"confidence":  active.Confidence,
		"method":      string(active.Method),
		"signals":     best.Signals,
	})

	return domain.Resolution{
		ProfileID:  profileID,
		Mapping:    active,
		Created:    true,
		Candidates: candidates,
	}, nil
}

// activeMapping reads the single matched row, running the deduplicator once
// when the store reports more than one. That is the sanctioned response to
// ErrMultipleActiveMappings, not a silent pick.
func (s *Service) activeMapping(ctx context.Context, profileID string) (*mappingdomain.Mapping, error) {
	active, err := s.mappings.GetActiveMapping(ctx, profileID)
	if err == nil {
		return active, nil
	}
	if !errors.Is(err, mappingdomain.ErrMultipleActiveMappings) {
		return nil, err
	}

	s.log.Warn("multiple active mappings, running deduplicate", zap.String("profile_id", profileID))
	if _, err := s.Deduplicate(ctx, profileID); err != nil {
		return nil, err
	}
	return s.mappings.GetActiveMapping(ctx, profileID)
}

func (s *Service) syncCustomerLink(ctx context.Context, profile profiledomain.Profile, customerID string) error {
	if profile.CustomerID != nil && *profile.CustomerID == customerID {
		return nil
	}
	return s.profiles.AssignCustomer(ctx, profile.ID.String(), customerID)
}

func parseProfileID(value string) snowflake.ID {
	id, err := snowflake.ParseString(value)
	if err != nil {
		return 0
	}
	return id
}

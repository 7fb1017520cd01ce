package service

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/lilasstudio/crmlink/internal/config"
	crmdomain "github.com/lilasstudio/crmlink/internal/crm/domain"
	"github.com/lilasstudio/crmlink/internal/matcher/domain"
	"github.com/xrash/smetrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Directory crmdomain.Directory
	Policy    *config.MatchingPolicyHolder
}

type Service struct {
	log       *zap.Logger
	directory crmdomain.Directory
	policy    *config.MatchingPolicyHolder
}

func New(p Params) domain.Service {
	return &Service{
		log:       p.Log.Named("matcher.service"),
		directory: p.Directory,
		policy:    p.Policy,
	}
}

func (s *Service) Match(ctx context.Context, input domain.MatchInput) ([]domain.ScoredCandidate, error) {
	name := crmdomain.NormalizeName(input.Name)
	phone := crmdomain.NormalizePhone(input.Phone)
	email := crmdomain.NormalizeEmail(input.Email)

	if name == "" && phone == "" && email == "" {
		return nil, domain.ErrInsufficientIdentity
	}

	policy := s.policy.Current()
	merged := map[string]*domain.ScoredCandidate{}

	if phone != "" {
		candidates, err := s.directory.FindByPhone(ctx, phone)
		if err != nil {
			return nil, fmt.Errorf("directory phone lookup: %w", err)
		}
		for _, candidate := range candidates {
			applyScore(merged, candidate, policy.PhoneWeight, domain.SignalPhoneExact)
		}
	}

	if email != "" {
		candidates, err := s.directory.FindByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("directory email lookup: %w", err)
		}
		for _, candidate := range candidates {
			applyScore(merged, candidate, policy.EmailWeight, domain.SignalEmailExact)
		}
	}

	if name != "" {
		candidates, err := s.directory.SearchByName(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("directory name lookup: %w", err)
		}
		for _, candidate := range candidates {
			score, ok := nameScore(name, candidate.Name, policy)
			if !ok {
				continue
			}
			applyScore(merged, candidate, score, domain.SignalNameFuzzy)
		}
	}

	results := make([]domain.ScoredCandidate, 0, len(merged))
	for _, candidate := range merged {
		results = append(results, *candidate)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Confidence != results[j].Confidence {
			return results[i].Confidence > results[j].Confidence
		}
		return results[i].CustomerID < results[j].CustomerID
	})

	s.log.Debug("match completed",
		zap.Int("candidates", len(results)),
		zap.Bool("has_phone", phone != ""),
		zap.Bool("has_email", email != ""),
		zap.Bool("has_name", name != ""),
	)

	return results, nil
}

// applyScore merges one signal into the candidate set. Agreement across
// attribute classes takes the max score, so weak corroborating signals can
// never push confidence past the strongest single signal.
func applyScore(merged map[string]*domain.ScoredCandidate, candidate crmdomain.Candidate, score int, signal string) {
	existing, ok := merged[candidate.CustomerID]
	if !ok {
		merged[candidate.CustomerID] = &domain.ScoredCandidate{
			Candidate:  candidate,
			Confidence: score,
			Signals:    []string{signal},
		}
		return
	}
	if score > existing.Confidence {
		existing.Confidence = score
	}
	existing.Signals = append(existing.Signals, signal)
}

// nameScore scales Jaro-Winkler similarity into the configured cap.
// Similarity below the floor is treated as no match at all.
func nameScore(profileName, candidateName string, policy config.MatchingPolicy) (int, bool) {
	if candidateName == "" {
		return 0, false
	}
	similarity := smetrics.JaroWinkler(profileName, candidateName, 0.7, 4)
	if similarity < policy.NameSimilarityFloor {
		return 0, false
	}
	score := int(math.Round(similarity * float64(policy.NameWeightCap)))
	if score > policy.NameWeightCap {
		score = policy.NameWeightCap
	}
	return score, true
}

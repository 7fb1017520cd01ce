package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	crmdomain "github.com/lilasstudio/crmlink/internal/crm/domain"
	"github.com/lilasstudio/crmlink/internal/profile/domain"
	"github.com/lilasstudio/crmlink/pkg/db"
	"github.com/lilasstudio/crmlink/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("profile.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) UpsertLogin(ctx context.Context, req domain.UpsertLoginRequest) (domain.Profile, error) {
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" {
		return domain.Profile{}, domain.ErrInvalidProvider
	}
	subjectID := strings.TrimSpace(req.SubjectID)
	if subjectID == "" {
		return domain.Profile{}, domain.ErrInvalidSubject
	}

	existing, err := s.repo.FindByProviderSubject(ctx, s.db, provider, subjectID)
	if err != nil {
		return domain.Profile{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	now := time.Now().UTC()
	profile := domain.Profile{
		ID:             s.genID.Generate(),
		Provider:       provider,
		SubjectID:      subjectID,
		PlatformUserID: strings.TrimSpace(req.PlatformUserID),
		DisplayName:    strings.TrimSpace(req.DisplayName),
		Metadata:       datatypes.JSONMap{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Insert(ctx, s.db, &profile); err != nil {
		// A concurrent first login for the same subject may have won the
		// insert race; the existing row is authoritative.
		if db.IsDuplicateKeyErr(err) {
			winner, findErr := s.repo.FindByProviderSubject(ctx, s.db, provider, subjectID)
			if findErr == nil && winner != nil {
				return *winner, nil
			}
		}
		return domain.Profile{}, err
	}

	return profile, nil
}

func (s *Service) CaptureContact(ctx context.Context, req domain.CaptureContactRequest) (domain.Profile, error) {
	id, err := s.parseID(req.ProfileID)
	if err != nil {
		return domain.Profile{}, err
	}

	phone := crmdomain.NormalizePhone(req.Phone)
	email := crmdomain.NormalizeEmail(req.Email)
	if phone == "" && email == "" {
		return domain.Profile{}, domain.ErrInvalidContact
	}

	existing, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Profile{}, err
	}
	if existing == nil {
		return domain.Profile{}, domain.ErrNotFound
	}

	if phone == "" {
		phone = existing.Phone
	}
	if email == "" {
		email = existing.Email
	}

	if err := s.repo.UpdateContact(ctx, s.db, id, phone, email); err != nil {
		return domain.Profile{}, err
	}

	existing.Phone = phone
	existing.Email = email
	return *existing, nil
}

func (s *Service) GetByID(ctx context.Context, profileID string) (domain.Profile, error) {
	id, err := s.parseID(profileID)
	if err != nil {
		return domain.Profile{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Profile{}, err
	}
	if item == nil {
		return domain.Profile{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) GetByPlatformUserID(ctx context.Context, platformUserID string) (domain.Profile, error) {
	platformUserID = strings.TrimSpace(platformUserID)
	if platformUserID == "" {
		return domain.Profile{}, domain.ErrInvalidID
	}

	item, err := s.repo.FindByPlatformUserID(ctx, s.db, platformUserID)
	if err != nil {
		return domain.Profile{}, err
	}
	if item == nil {
		return domain.Profile{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListProfileRequest) (domain.ListProfileResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, domain.ListFilter{
		OnlyUnresolved: req.OnlyUnresolved,
	}, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListProfileResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(profile *domain.Profile) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        profile.ID.String(),
			CreatedAt: profile.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	profiles := make([]domain.Profile, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		profiles = append(profiles, *item)
	}

	resp := domain.ListProfileResponse{Profiles: profiles}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) AssignCustomer(ctx context.Context, profileID string, customerID string) error {
	id, err := s.parseID(profileID)
	if err != nil {
		return err
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.ErrInvalidID
	}
	return s.repo.UpdateCustomerLink(ctx, s.db, id, &customerID)
}

func (s *Service) ClearCustomer(ctx context.Context, profileID string) error {
	id, err := s.parseID(profileID)
	if err != nil {
		return err
	}
	return s.repo.UpdateCustomerLink(ctx, s.db, id, nil)
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

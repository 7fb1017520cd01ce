package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/lilasstudio/crmlink/internal/profile/domain"
	"github.com/lilasstudio/crmlink/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, profile *domain.Profile) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO profiles (id, provider, subject_id, platform_user_id, display_name, phone, email, customer_id, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		profile.ID,
		profile.Provider,
		profile.SubjectID,
		profile.PlatformUserID,
		profile.DisplayName,
		profile.Phone,
		profile.Email,
		profile.CustomerID,
		profile.Metadata,
		profile.CreatedAt,
		profile.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Profile, error) {
	var profile domain.Profile
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, subject_id, platform_user_id, display_name, phone, email, customer_id, metadata, created_at, updated_at
		 FROM profiles WHERE id = ?`,
		id,
	).Scan(&profile).Error
	if err != nil {
		return nil, err
	}
	if profile.ID == 0 {
		return nil, nil
	}
	return &profile, nil
}

func (r *repo) FindByProviderSubject(ctx context.Context, db *gorm.DB, provider, subjectID string) (*domain.Profile, error) {
	var profile domain.Profile
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, subject_id, platform_user_id, display_name, phone, email, customer_id, metadata, created_at, updated_at
		 FROM profiles WHERE provider = ? AND subject_id = ?`,
		provider,
		subjectID,
	).Scan(&profile).Error
	if err != nil {
		return nil, err
	}
	if profile.ID == 0 {
		return nil, nil
	}
	return &profile, nil
}

func (r *repo) FindByPlatformUserID(ctx context.Context, db *gorm.DB, platformUserID string) (*domain.Profile, error) {
	var profile domain.Profile
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, subject_id, platform_user_id, display_name, phone, email, customer_id, metadata, created_at, updated_at
		 FROM profiles WHERE platform_user_id = ? ORDER BY id ASC LIMIT 1`,
		platformUserID,
	).Scan(&profile).Error
	if err != nil {
		return nil, err
	}
	if profile.ID == 0 {
		return nil, nil
	}
	return &profile, nil
}

func (r *repo) UpdateContact(ctx context.Context, db *gorm.DB, id snowflake.ID, phone, email string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE profiles SET phone = ?, email = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		phone,
		email,
		id,
	).Error
}

func (r *repo) UpdateCustomerLink(ctx context.Context, db *gorm.DB, id snowflake.ID, customerID *string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE profiles SET customer_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		customerID,
		id,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Pagination) ([]*domain.Profile, error) {
	var profiles []*domain.Profile
	stmt := db.WithContext(ctx).Model(&domain.Profile{})
	if filter.OnlyUnresolved {
		stmt = stmt.Where("customer_id IS NULL OR customer_id = ''")
	}
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, err
		}
		if cursor.ID != "" {
			id, err := snowflake.ParseString(cursor.ID)
			if err == nil {
				stmt = stmt.Where("id > ?", id)
			}
		}
	}
	err := stmt.
		Order("id asc").
		Limit(pagination.ApplyLimit(page.PageSize)).
		Find(&profiles).Error
	if err != nil {
		return nil, err
	}
	return profiles, nil
}

package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/lilasstudio/crmlink/internal/mapping/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, mapping *domain.Mapping) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO customer_mappings (id, profile_id, customer_id, stable_hash_id, method, confidence, matched, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		mapping.ID,
		mapping.ProfileID,
		mapping.CustomerID,
		mapping.StableHashID,
		mapping.Method,
		mapping.Confidence,
		mapping.Matched,
		mapping.CreatedAt,
		mapping.UpdatedAt,
	).Error
}

func (r *repo) FindByProfileAndCustomer(ctx context.Context, db *gorm.DB, profileID snowflake.ID, customerID string) (*domain.Mapping, error) {
	var mapping domain.Mapping
	err := db.WithContext(ctx).Raw(
		`SELECT id, profile_id, customer_id, stable_hash_id, method, confidence, matched, created_at, updated_at
		 FROM customer_mappings WHERE profile_id = ? AND customer_id = ?`,
		profileID,
		customerID,
	).Scan(&mapping).Error
	if err != nil {
		return nil, err
	}
	if mapping.ID == 0 {
		return nil, nil
	}
	return &mapping, nil
}

func (r *repo) ListByProfile(ctx context.Context, db *gorm.DB, profileID snowflake.ID) ([]domain.Mapping, error) {
	var mappings []domain.Mapping
	err := db.WithContext(ctx).Raw(
		`SELECT id, profile_id, customer_id, stable_hash_id, method, confidence, matched, created_at, updated_at
		 FROM customer_mappings WHERE profile_id = ? ORDER BY id ASC`,
		profileID,
	).Scan(&mappings).Error
	if err != nil {
		return nil, err
	}
	return mappings, nil
}

func (r *repo) ListMatchedByProfile(ctx context.Context, db *gorm.DB, profileID snowflake.ID) ([]domain.Mapping, error) {
	var mappings []domain.Mapping
	err := db.WithContext(ctx).Raw(
		`SELECT id, profile_id, customer_id, stable_hash_id, method, confidence, matched, created_at, updated_at
		 FROM customer_mappings WHERE profile_id = ? AND matched = ? ORDER BY id ASC`,
		profileID,
		true,
	).Scan(&mappings).Error
	if err != nil {
		return nil, err
	}
	return mappings, nil
}

func (r *repo) SetMatched(ctx context.Context, db *gorm.DB, id snowflake.ID, matched bool) error {
	return db.WithContext(ctx).Exec(
		`UPDATE customer_mappings SET matched = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		matched,
		id,
	).Error
}

func (r *repo) DeleteUnmatchedByProfile(ctx context.Context, db *gorm.DB, profileID snowflake.ID) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM customer_mappings WHERE profile_id = ? AND matched = ?`,
		profileID,
		false,
	)
	return result.RowsAffected, result.Error
}

package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/lilasstudio/crmlink/internal/pkgcache/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByProfile(ctx context.Context, db *gorm.DB, profileID snowflake.ID) (*domain.Snapshot, error) {
	var snapshot domain.Snapshot
	err := db.WithContext(ctx).Raw(
		`SELECT id, profile_id, customer_id, stable_hash_id, synced_at, created_at, updated_at
		 FROM package_snapshots WHERE profile_id = ?`,
		profileID,
	).Scan(&snapshot).Error
	if err != nil {
		return nil, err
	}
	if snapshot.ID == 0 {
		return nil, nil
	}
	return &snapshot, nil
}

func (r *repo) FindByStableHash(ctx context.Context, db *gorm.DB, stableHashID string) (*domain.Snapshot, error) {
	var snapshot domain.Snapshot
	err := db.WithContext(ctx).Raw(
		`SELECT id, profile_id, customer_id, stable_hash_id, synced_at, created_at, updated_at
		 FROM package_snapshots WHERE stable_hash_id = ? ORDER BY synced_at DESC LIMIT 1`,
		stableHashID,
	).Scan(&snapshot).Error
	if err != nil {
		return nil, err
	}
	if snapshot.ID == 0 {
		return nil, nil
	}
	return &snapshot, nil
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, snapshotID snowflake.ID) ([]domain.Item, error) {
	var items []domain.Item
	err := db.WithContext(ctx).Raw(
		`SELECT id, snapshot_id, package_name, total_units, remaining_units, expires_at, created_at
		 FROM package_items WHERE snapshot_id = ? ORDER BY id ASC`,
		snapshotID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Replace(ctx context.Context, db *gorm.DB, snapshot *domain.Snapshot, items []domain.Item) error {
	existing, err := r.FindByProfile(ctx, db, snapshot.ProfileID)
	if err != nil {
		return err
	}

	if existing != nil {
		snapshot.ID = existing.ID
		snapshot.CreatedAt = existing.CreatedAt
		err = db.WithContext(ctx).Exec(
			`UPDATE package_snapshots
			 SET customer_id = ?, stable_hash_id = ?, synced_at = ?, updated_at = CURRENT_TIMESTAMP
			 WHERE id = ?`,
			snapshot.CustomerID,
			snapshot.StableHashID,
			snapshot.SyncedAt,
			snapshot.ID,
		).Error
		if err != nil {
			return err
		}
		if err := db.WithContext(ctx).Exec(
			`DELETE FROM package_items WHERE snapshot_id = ?`, snapshot.ID,
		).Error; err != nil {
			return err
		}
	} else {
		err = db.WithContext(ctx).Exec(
			`INSERT INTO package_snapshots (id, profile_id, customer_id, stable_hash_id, synced_at, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			snapshot.ID,
			snapshot.ProfileID,
			snapshot.CustomerID,
			snapshot.StableHashID,
			snapshot.SyncedAt,
			snapshot.CreatedAt,
			snapshot.UpdatedAt,
		).Error
		if err != nil {
			return err
		}
	}

	for i := range items {
		items[i].SnapshotID = snapshot.ID
		if err := db.WithContext(ctx).Exec(
			`INSERT INTO package_items (id, snapshot_id, package_name, total_units, remaining_units, expires_at, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			items[i].ID,
			items[i].SnapshotID,
			items[i].PackageName,
			items[i].TotalUnits,
			items[i].RemainingUnits,
			items[i].ExpiresAt,
			items[i].CreatedAt,
		).Error; err != nil {
			return err
		}
	}

	return nil
}

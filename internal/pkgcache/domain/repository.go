package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByProfile(ctx context.Context, db *gorm.DB, profileID snowflake.ID) (*Snapshot, error)
	FindByStableHash(ctx context.Context, db *gorm.DB, stableHashID string) (*Snapshot, error)
	ListItems(ctx context.Context, db *gorm.DB, snapshotID snowflake.ID) ([]Item, error)

	// Replace swaps the snapshot's item set in full: header upserted, all
	// previous items deleted, the given items inserted.
	Replace(ctx context.Context, db *gorm.DB, snapshot *Snapshot, items []Item) error
}

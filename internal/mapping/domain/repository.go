package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, mapping *Mapping) error
	FindByProfileAndCustomer(ctx context.Context, db *gorm.DB, profileID snowflake.ID, customerID string) (*Mapping, error)
	ListByProfile(ctx context.Context, db *gorm.DB, profileID snowflake.ID) ([]Mapping, error)
	ListMatchedByProfile(ctx context.Context, db *gorm.DB, profileID snowflake.ID) ([]Mapping, error)
	SetMatched(ctx context.Context, db *gorm.DB, id snowflake.ID, matched bool) error
	DeleteUnmatchedByProfile(ctx context.Context, db *gorm.DB, profileID snowflake.ID) (int64, error)
}

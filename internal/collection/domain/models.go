// Package domain contains the catalog item ("collection") model. Collections
// carry the per-item stage-duration table production tracking is seeded from.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Collection is one catalog item a buyer sources from a manufacturer.
type Collection struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	Name           string       `gorm:"type:text;not null"`
	Slug           string       `gorm:"type:text;not null;uniqueIndex"`
	ManufacturerID snowflake.ID `gorm:"not null;index"`

	// ProductionSchedule is the stage-duration table (stage name -> days).
	ProductionSchedule datatypes.JSONMap `gorm:"type:jsonb"`

	Metadata  datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Collection) TableName() string { return "collections" }

var ErrCollectionNotFound = errors.New("collection_not_found")

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Collection, error)
	Insert(ctx context.Context, db *gorm.DB, collection *Collection) error
}

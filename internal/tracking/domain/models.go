// Package domain contains the production tracking aggregate derived from
// confirmed orders and in-production samples.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// TrackingStatus is the overall production status of one tracking aggregate.
type TrackingStatus string

const (
	TrackingStatusInProgress TrackingStatus = "IN_PROGRESS"
	TrackingStatusCompleted  TrackingStatus = "COMPLETED"
	TrackingStatusOnHold     TrackingStatus = "ON_HOLD"
)

// StageStatus is the per-stage progress state.
type StageStatus string

const (
	StageStatusNotStarted StageStatus = "NOT_STARTED"
	StageStatusInProgress StageStatus = "IN_PROGRESS"
	StageStatusCompleted  StageStatus = "COMPLETED"
)

// ProductionTracking exists at most once per order and at most once per
// sample; exactly one of OrderID/SampleID is set. The partial unique indexes
// back the at-most-once invariant at the storage layer.
type ProductionTracking struct {
	ID       snowflake.ID  `gorm:"primaryKey"`
	OrderID  *snowflake.ID `gorm:"uniqueIndex"`
	SampleID *snowflake.ID `gorm:"uniqueIndex"`

	CurrentStage  string         `gorm:"type:text;not null"`
	OverallStatus TrackingStatus `gorm:"type:text;not null"`
	Progress      int            `gorm:"not null;default:0"`

	EstimatedStartDate time.Time  `gorm:"not null"`
	EstimatedEndDate   time.Time  `gorm:"not null"`
	ActualStartDate    *time.Time `gorm:""`
	ActualEndDate      *time.Time `gorm:""`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ProductionTracking) TableName() string { return "production_trackings" }

// ProductionStageUpdate is one schedule stage of a tracking aggregate, created
// in batch at materialization time in schedule order.
type ProductionStageUpdate struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	TrackingID snowflake.ID `gorm:"not null;index"`

	Stage         string      `gorm:"type:text;not null"`
	Status        StageStatus `gorm:"type:text;not null"`
	EstimatedDays int         `gorm:"not null"`
	Position      int         `gorm:"not null"`
	Notes         string      `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ProductionStageUpdate) TableName() string { return "production_stage_updates" }

var (
	ErrTrackingNotFound = errors.New("tracking_not_found")
	ErrTrackingExists   = errors.New("tracking_exists")
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tracking *ProductionTracking) error
	InsertStages(ctx context.Context, db *gorm.DB, stages []ProductionStageUpdate) error
	FindByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*ProductionTracking, error)
	FindBySampleID(ctx context.Context, db *gorm.DB, sampleID snowflake.ID) (*ProductionTracking, error)
	ListStages(ctx context.Context, db *gorm.DB, trackingID snowflake.ID) ([]ProductionStageUpdate, error)
}

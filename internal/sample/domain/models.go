// Package domain contains persistence models and contracts for sample requests.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SampleStatus represents lifecycle states for a sample request. Samples skip
// the quality-check gate orders go through.
type SampleStatus string

const (
	SampleStatusRequested          SampleStatus = "REQUESTED"
	SampleStatusReviewed           SampleStatus = "REVIEWED"
	SampleStatusQuoteSent          SampleStatus = "QUOTE_SENT"
	SampleStatusApproved           SampleStatus = "APPROVED"
	SampleStatusRejected           SampleStatus = "REJECTED"
	SampleStatusInProduction       SampleStatus = "IN_PRODUCTION"
	SampleStatusProductionComplete SampleStatus = "PRODUCTION_COMPLETE"
	SampleStatusShipped            SampleStatus = "SHIPPED"
	SampleStatusDelivered          SampleStatus = "DELIVERED"
	SampleStatusCancelled          SampleStatus = "CANCELLED"
)

// SampleType scales the production schedule: revisions skip fabric sourcing.
type SampleType string

const (
	SampleTypeStandard SampleType = "STANDARD"
	SampleTypeRevision SampleType = "REVISION"
	SampleTypeCustom   SampleType = "CUSTOM"
)

// Sample captures one sample request from a buyer to a manufacturer.
type Sample struct {
	ID             snowflake.ID  `gorm:"primaryKey"`
	ReferenceCode  string        `gorm:"type:text;not null;uniqueIndex"`
	CustomerID     snowflake.ID  `gorm:"not null;index"`
	ManufacturerID snowflake.ID  `gorm:"not null;index"`
	CompanyID      *snowflake.ID `gorm:"index"`
	CollectionID   *snowflake.ID `gorm:"index"`
	Status         SampleStatus  `gorm:"type:text;not null"`
	SampleType     SampleType    `gorm:"type:text;not null;default:'STANDARD'"`

	UnitPrice float64 `gorm:"not null;default:0"`

	ProductionDays          *int       `gorm:""`
	EstimatedProductionDate *time.Time `gorm:""`
	ActualProductionStart   *time.Time `gorm:""`
	ActualProductionEnd     *time.Time `gorm:""`
	ShippingDate            *time.Time `gorm:""`
	CargoTrackingCode       *string    `gorm:"type:text"`
	ManufacturerResponse    *string    `gorm:"type:text"`

	Metadata  datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Sample) TableName() string { return "samples" }

// SampleHistory is the append-only audit trail for sample transitions.
type SampleHistory struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	SampleID      snowflake.ID `gorm:"not null;index"`
	Status        SampleStatus `gorm:"type:text;not null"`
	Note          string       `gorm:"type:text"`
	EstimatedDays *int         `gorm:""`
	ActorID       snowflake.ID `gorm:"not null"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (SampleHistory) TableName() string { return "sample_histories" }

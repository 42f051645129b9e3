// Package domain contains persistence models and contracts for purchase orders.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// OrderStatus represents lifecycle states for a purchase order.
type OrderStatus string

const (
	OrderStatusPending            OrderStatus = "PENDING"
	OrderStatusReviewed           OrderStatus = "REVIEWED"
	OrderStatusQuoteSent          OrderStatus = "QUOTE_SENT"
	OrderStatusConfirmed          OrderStatus = "CONFIRMED"
	OrderStatusRejected           OrderStatus = "REJECTED"
	OrderStatusInProduction       OrderStatus = "IN_PRODUCTION"
	OrderStatusProductionComplete OrderStatus = "PRODUCTION_COMPLETE"
	OrderStatusQualityCheck       OrderStatus = "QUALITY_CHECK"
	OrderStatusShipped            OrderStatus = "SHIPPED"
	OrderStatusDelivered          OrderStatus = "DELIVERED"
	OrderStatusCancelled          OrderStatus = "CANCELLED"
)

// Order captures one buyer-to-manufacturer purchase order.
type Order struct {
	ID             snowflake.ID  `gorm:"primaryKey"`
	ReferenceCode  string        `gorm:"type:text;not null;uniqueIndex"`
	CustomerID     snowflake.ID  `gorm:"not null;index"`
	ManufacturerID snowflake.ID  `gorm:"not null;index"`
	CompanyID      *snowflake.ID `gorm:"index"`
	CollectionID   *snowflake.ID `gorm:"index"`
	Status         OrderStatus   `gorm:"type:text;not null"`

	Quantity   int     `gorm:"not null"`
	UnitPrice  float64 `gorm:"not null;default:0"`
	TotalPrice float64 `gorm:"not null;default:0"`

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
func (Order) TableName() string { return "orders" }

// OrderHistory is the append-only audit trail: one row per accepted transition.
// Rows are never updated, reordered, or deleted.
type OrderHistory struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	OrderID       snowflake.ID `gorm:"not null;index"`
	Status        OrderStatus  `gorm:"type:text;not null"`
	Note          string       `gorm:"type:text"`
	EstimatedDays *int         `gorm:""`
	ActorID       snowflake.ID `gorm:"not null"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (OrderHistory) TableName() string { return "order_histories" }

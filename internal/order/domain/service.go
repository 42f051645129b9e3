package domain

import (
	"context"
	"errors"
	"time"
)

// TransitionRequest is the field bag for a requested status change. Optional
// fields only apply on the edges that consume them.
type TransitionRequest struct {
	OrderID      string      `json:"-"`
	TargetStatus OrderStatus `json:"target_status"`

	Note                 string   `json:"note,omitempty"`
	ManufacturerResponse *string  `json:"manufacturer_response,omitempty"`
	ProductionDays       *int     `json:"production_days,omitempty"`
	QuotedUnitPrice      *float64 `json:"quoted_unit_price,omitempty"`
	CargoTrackingCode    *string  `json:"cargo_tracking_code,omitempty"`
}

type ListOrderRequest struct {
	Status     string
	CustomerID string
	PageSize   int32
}

type ListOrderResponse struct {
	Orders []Order `json:"orders"`
}

type CreateOrderRequest struct {
	CustomerID     string         `json:"customer_id"`
	ManufacturerID string         `json:"manufacturer_id"`
	CompanyID      string         `json:"company_id,omitempty"`
	CollectionID   string         `json:"collection_id,omitempty"`
	Quantity       int            `json:"quantity"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateOrderRequest) (Order, error)
	GetByID(ctx context.Context, id string) (Order, error)
	List(ctx context.Context, req ListOrderRequest) (ListOrderResponse, error)
	Transition(ctx context.Context, req TransitionRequest) (Order, error)
	History(ctx context.Context, id string) ([]OrderHistory, error)
}

var (
	ErrOrderNotFound       = errors.New("order_not_found")
	ErrInvalidOrder        = errors.New("invalid_order")
	ErrInvalidCustomer     = errors.New("invalid_customer")
	ErrInvalidManufacturer = errors.New("invalid_manufacturer")
	ErrInvalidQuantity     = errors.New("invalid_quantity")
	ErrInvalidStatus       = errors.New("invalid_status")
	ErrInvalidTransition   = errors.New("invalid_transition")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidFieldBag     = errors.New("invalid_field_bag")
	ErrConflict            = errors.New("transition_conflict")
	ErrMissingActor        = errors.New("missing_actor")
)

// ValidStatus reports whether status is a known order status.
func ValidStatus(status OrderStatus) bool {
	switch status {
	case OrderStatusPending,
		OrderStatusReviewed,
		OrderStatusQuoteSent,
		OrderStatusConfirmed,
		OrderStatusRejected,
		OrderStatusInProduction,
		OrderStatusProductionComplete,
		OrderStatusQualityCheck,
		OrderStatusShipped,
		OrderStatusDelivered,
		OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// ProductionStarted reports whether status is at or past IN_PRODUCTION on the
// happy path. Cancellation is refused from these states.
func ProductionStarted(status OrderStatus) bool {
	switch status {
	case OrderStatusInProduction,
		OrderStatusProductionComplete,
		OrderStatusQualityCheck,
		OrderStatusShipped,
		OrderStatusDelivered:
		return true
	default:
		return false
	}
}

// Snapshot is the flat view returned to the API layer after a transition.
type Snapshot struct {
	ID                      string      `json:"id"`
	ReferenceCode           string      `json:"reference_code"`
	Status                  OrderStatus `json:"status"`
	Quantity                int         `json:"quantity"`
	UnitPrice               float64     `json:"unit_price"`
	TotalPrice              float64     `json:"total_price"`
	ProductionDays          *int        `json:"production_days,omitempty"`
	EstimatedProductionDate *time.Time  `json:"estimated_production_date,omitempty"`
	UpdatedAt               time.Time   `json:"updated_at"`
}

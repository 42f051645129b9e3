package domain

import (
	"context"
	"errors"
)

// TransitionRequest is the field bag for a requested sample status change.
type TransitionRequest struct {
	SampleID     string       `json:"-"`
	TargetStatus SampleStatus `json:"target_status"`

	Note                 string   `json:"note,omitempty"`
	ManufacturerResponse *string  `json:"manufacturer_response,omitempty"`
	ProductionDays       *int     `json:"production_days,omitempty"`
	QuotedUnitPrice      *float64 `json:"quoted_unit_price,omitempty"`
	CargoTrackingCode    *string  `json:"cargo_tracking_code,omitempty"`
}

type ListSampleRequest struct {
	Status     string
	CustomerID string
	PageSize   int32
}

type ListSampleResponse struct {
	Samples []Sample `json:"samples"`
}

type CreateSampleRequest struct {
	CustomerID     string         `json:"customer_id"`
	ManufacturerID string         `json:"manufacturer_id"`
	CompanyID      string         `json:"company_id,omitempty"`
	CollectionID   string         `json:"collection_id,omitempty"`
	SampleType     SampleType     `json:"sample_type,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateSampleRequest) (Sample, error)
	GetByID(ctx context.Context, id string) (Sample, error)
	List(ctx context.Context, req ListSampleRequest) (ListSampleResponse, error)
	Transition(ctx context.Context, req TransitionRequest) (Sample, error)
	History(ctx context.Context, id string) ([]SampleHistory, error)
}

var (
	ErrSampleNotFound      = errors.New("sample_not_found")
	ErrInvalidSample       = errors.New("invalid_sample")
	ErrInvalidCustomer     = errors.New("invalid_customer")
	ErrInvalidManufacturer = errors.New("invalid_manufacturer")
	ErrInvalidSampleType   = errors.New("invalid_sample_type")
	ErrInvalidStatus       = errors.New("invalid_status")
	ErrInvalidTransition   = errors.New("invalid_transition")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidFieldBag     = errors.New("invalid_field_bag")
	ErrConflict            = errors.New("transition_conflict")
	ErrMissingActor        = errors.New("missing_actor")
)

// ValidStatus reports whether status is a known sample status.
func ValidStatus(status SampleStatus) bool {
	switch status {
	case SampleStatusRequested,
		SampleStatusReviewed,
		SampleStatusQuoteSent,
		SampleStatusApproved,
		SampleStatusRejected,
		SampleStatusInProduction,
		SampleStatusProductionComplete,
		SampleStatusShipped,
		SampleStatusDelivered,
		SampleStatusCancelled:
		return true
	default:
		return false
	}
}

// ValidSampleType reports whether t is a known sample type.
func ValidSampleType(t SampleType) bool {
	switch t {
	case SampleTypeStandard, SampleTypeRevision, SampleTypeCustom:
		return true
	default:
		return false
	}
}

// ProductionStarted reports whether cancellation is no longer possible.
func ProductionStarted(status SampleStatus) bool {
	switch status {
	case SampleStatusInProduction,
		SampleStatusProductionComplete,
		SampleStatusShipped,
		SampleStatusDelivered:
		return true
	default:
		return false
	}
}

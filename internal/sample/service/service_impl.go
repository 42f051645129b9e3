package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/loomworks/loomline/internal/actor"
	"github.com/loomworks/loomline/internal/authorization"
	"github.com/loomworks/loomline/internal/clock"
	"github.com/loomworks/loomline/internal/events"
	"github.com/loomworks/loomline/internal/lifecycle"
	"github.com/loomworks/loomline/internal/sample/domain"
	trackingservice "github.com/loomworks/loomline/internal/tracking/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const transitionLockTTL = 5 * time.Second

// transitionLocker is the cross-replica lock surface. *lifecycle.Locker
// satisfies it, and a nil Locker locks nothing.
type transitionLocker interface {
	TryLock(ctx context.Context, kind string, entityID int64, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, kind string, entityID int64, token string) error
}

type Param struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         domain.Repository
	Authz        authorization.Service
	Hub          *events.Hub
	Materializer *trackingservice.Materializer
	Locker       *lifecycle.Locker `optional:"true"`
}

type service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         domain.Repository
	authz        authorization.Service
	hub          *events.Hub
	materializer *trackingservice.Materializer
	locker       transitionLocker
	locks        lifecycle.KeyedMutex
}

func NewService(p Param) domain.Service {
	return &service{
		db:           p.DB,
		log:          p.Log.Named("sample.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		authz:        p.Authz,
		hub:          p.Hub,
		materializer: p.Materializer,
		locker:       p.Locker,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateSampleRequest) (domain.Sample, error) {
	act, ok := actor.FromContext(ctx)
	if !ok {
		return domain.Sample{}, domain.ErrMissingActor
	}
	if err := s.authz.Authorize(ctx, act.Role, authorization.ObjectSample, authorization.ActionSampleCreate); err != nil {
		return domain.Sample{}, domain.ErrForbidden
	}

	customerID, err := snowflake.ParseString(req.CustomerID)
	if err != nil || customerID == 0 {
		return domain.Sample{}, domain.ErrInvalidCustomer
	}
	manufacturerID, err := snowflake.ParseString(req.ManufacturerID)
	if err != nil || manufacturerID == 0 {
		return domain.Sample{}, domain.ErrInvalidManufacturer
	}
	if !act.IsAdmin() && act.ID != customerID {
		return domain.Sample{}, domain.ErrForbidden
	}

	sampleType := req.SampleType
	if sampleType == "" {
		sampleType = domain.SampleTypeStandard
	}
	switch sampleType {
	case domain.SampleTypeStandard, domain.SampleTypeRevision, domain.SampleTypeCustom:
	default:
		return domain.Sample{}, domain.ErrInvalidSampleType
	}

	var companyID *snowflake.ID
	if req.CompanyID != "" {
		id, err := snowflake.ParseString(req.CompanyID)
		if err != nil || id == 0 {
			return domain.Sample{}, domain.ErrInvalidSample
		}
		companyID = &id
	}
	var collectionID *snowflake.ID
	if req.CollectionID != "" {
		id, err := snowflake.ParseString(req.CollectionID)
		if err != nil || id == 0 {
			return domain.Sample{}, domain.ErrInvalidSample
		}
		collectionID = &id
	}

	now := s.clock.Now().UTC()
	sample := domain.Sample{
		ID:             s.genID.Generate(),
		CustomerID:     customerID,
		ManufacturerID: manufacturerID,
		CompanyID:      companyID,
		CollectionID:   collectionID,
		Status:         domain.SampleStatusRequested,
		SampleType:     sampleType,
		Metadata:       req.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	sample.ReferenceCode = referenceCode("smp", req.Metadata, sample.ID)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &sample); err != nil {
			return err
		}
		return s.repo.AppendHistory(ctx, tx, &domain.SampleHistory{
			ID:        s.genID.Generate(),
			SampleID:  sample.ID,
			Status:    domain.SampleStatusRequested,
			ActorID:   act.ID,
			CreatedAt: now,
		})
	})
	if err != nil {
		return domain.Sample{}, err
	}

	s.log.Info("sample created",
		zap.String("sample_id", sample.ID.String()),
		zap.String("reference_code", sample.ReferenceCode),
		zap.String("sample_type", string(sample.SampleType)),
	)
	return sample, nil
}

func (s *service) GetByID(ctx context.Context, id string) (domain.Sample, error) {
	sampleID, err := snowflake.ParseString(id)
	if err != nil || sampleID == 0 {
		return domain.Sample{}, domain.ErrSampleNotFound
	}
	sample, err := s.repo.FindByID(ctx, s.db, sampleID)
	if err != nil {
		return domain.Sample{}, err
	}
	if sample == nil {
		return domain.Sample{}, domain.ErrSampleNotFound
	}
	return *sample, nil
}

func (s *service) List(ctx context.Context, req domain.ListSampleRequest) (domain.ListSampleResponse, error) {
	var customerID snowflake.ID
	if req.CustomerID != "" {
		id, err := snowflake.ParseString(req.CustomerID)
		if err != nil || id == 0 {
			return domain.ListSampleResponse{}, domain.ErrInvalidCustomer
		}
		customerID = id
	}
	if req.Status != "" && !domain.ValidStatus(domain.SampleStatus(req.Status)) {
		return domain.ListSampleResponse{}, domain.ErrInvalidStatus
	}

	samples, err := s.repo.List(ctx, s.db, domain.SampleStatus(req.Status), customerID, int(req.PageSize))
	if err != nil {
		return domain.ListSampleResponse{}, err
	}
	return domain.ListSampleResponse{Samples: samples}, nil
}

func (s *service) History(ctx context.Context, id string) ([]domain.SampleHistory, error) {
	sampleID, err := snowflake.ParseString(id)
	if err != nil || sampleID == 0 {
		return nil, domain.ErrSampleNotFound
	}
	sample, err := s.repo.FindByID(ctx, s.db, sampleID)
	if err != nil {
		return nil, err
	}
	if sample == nil {
		return nil, domain.ErrSampleNotFound
	}
	return s.repo.ListHistory(ctx, s.db, sampleID)
}

// Transition moves a sample along one edge of its lifecycle table. Tracking is
// seeded when production starts, unlike orders which seed at confirmation.
func (s *service) Transition(ctx context.Context, req domain.TransitionRequest) (domain.Sample, error) {
	act, ok := actor.FromContext(ctx)
	if !ok {
		return domain.Sample{}, domain.ErrMissingActor
	}
	sampleID, err := snowflake.ParseString(req.SampleID)
	if err != nil || sampleID == 0 {
		return domain.Sample{}, domain.ErrSampleNotFound
	}
	if !domain.ValidStatus(req.TargetStatus) {
		return domain.Sample{}, domain.ErrInvalidStatus
	}
	if err := validateFieldBag(req); err != nil {
		return domain.Sample{}, err
	}

	// Held through the post-commit publish so events for one sample leave the
	// hub in commit order even on a single replica without redis.
	unlock := s.locks.Lock("sample", int64(sampleID))
	defer unlock()

	token, acquired, err := s.locker.TryLock(ctx, "sample", int64(sampleID), transitionLockTTL)
	if err != nil {
		return domain.Sample{}, err
	}
	if !acquired {
		return domain.Sample{}, domain.ErrConflict
	}
	defer func() {
		if err := s.locker.Release(ctx, "sample", int64(sampleID), token); err != nil {
			s.log.Warn("transition lock release failed",
				zap.String("sample_id", sampleID.String()), zap.Error(err))
		}
	}()

	var (
		updated        domain.Sample
		previousStatus domain.SampleStatus
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sample, err := s.repo.FindByIDForUpdate(ctx, tx, sampleID)
		if err != nil {
			return err
		}
		if sample == nil {
			return domain.ErrSampleNotFound
		}
		previousStatus = sample.Status

		edge, err := domain.Transitions.Edge(string(sample.Status), string(req.TargetStatus))
		if err != nil {
			if errors.Is(err, lifecycle.ErrUnknownStatus) {
				return domain.ErrInvalidStatus
			}
			return domain.ErrInvalidTransition
		}
		if err := s.authorizeEdge(ctx, act, sample, edge); err != nil {
			return err
		}

		now := s.clock.Now().UTC()
		applyFields(sample, req, now)
		sample.Status = req.TargetStatus
		sample.UpdatedAt = now

		if err := s.repo.Update(ctx, tx, sample); err != nil {
			return err
		}
		if err := s.repo.AppendHistory(ctx, tx, &domain.SampleHistory{
			ID:            s.genID.Generate(),
			SampleID:      sample.ID,
			Status:        sample.Status,
			Note:          req.Note,
			EstimatedDays: req.ProductionDays,
			ActorID:       act.ID,
			CreatedAt:     now,
		}); err != nil {
			return err
		}

		updated = *sample
		return nil
	})
	if err != nil {
		return domain.Sample{}, err
	}

	if updated.Status == domain.SampleStatusInProduction {
		s.materializer.MaterializeForSample(ctx, &updated)
	}
	s.publishTransition(updated, previousStatus, act)

	s.log.Info("sample transitioned",
		zap.String("sample_id", updated.ID.String()),
		zap.String("from", string(previousStatus)),
		zap.String("to", string(updated.Status)),
		zap.String("actor_id", act.ID.String()),
	)
	return updated, nil
}

func (s *service) authorizeEdge(ctx context.Context, act actor.Actor, sample *domain.Sample, edge lifecycle.Edge) error {
	if !edge.SideAllows(act.Role) {
		return domain.ErrForbidden
	}
	if err := s.authz.Authorize(ctx, act.Role, authorization.ObjectSample, edge.Action); err != nil {
		return domain.ErrForbidden
	}
	if act.IsAdmin() {
		return nil
	}
	switch edge.Side {
	case lifecycle.SideCustomer:
		if act.ID != sample.CustomerID {
			return domain.ErrForbidden
		}
	case lifecycle.SideManufacturer:
		if act.ID == sample.ManufacturerID {
			return nil
		}
		if sample.CompanyID != nil && act.CompanyID != 0 && act.CompanyID == *sample.CompanyID {
			return nil
		}
		return domain.ErrForbidden
	}
	return nil
}

func applyFields(sample *domain.Sample, req domain.TransitionRequest, now time.Time) {
	switch req.TargetStatus {
	case domain.SampleStatusQuoteSent:
		if req.QuotedUnitPrice != nil {
			sample.UnitPrice = *req.QuotedUnitPrice
		}
		if req.ProductionDays != nil {
			sample.ProductionDays = req.ProductionDays
			estimated := now.Add(time.Duration(*req.ProductionDays) * 24 * time.Hour)
			sample.EstimatedProductionDate = &estimated
		}
		if req.ManufacturerResponse != nil {
			sample.ManufacturerResponse = req.ManufacturerResponse
		}
	case domain.SampleStatusInProduction:
		start := now
		sample.ActualProductionStart = &start
	case domain.SampleStatusProductionComplete:
		end := now
		sample.ActualProductionEnd = &end
	case domain.SampleStatusShipped:
		shipped := now
		sample.ShippingDate = &shipped
		if req.CargoTrackingCode != nil {
			sample.CargoTrackingCode = req.CargoTrackingCode
		}
	}
}

func validateFieldBag(req domain.TransitionRequest) error {
	if req.QuotedUnitPrice != nil && *req.QuotedUnitPrice <= 0 {
		return domain.ErrInvalidFieldBag
	}
	if req.ProductionDays != nil && *req.ProductionDays <= 0 {
		return domain.ErrInvalidFieldBag
	}
	if req.CargoTrackingCode != nil && strings.TrimSpace(*req.CargoTrackingCode) == "" {
		return domain.ErrInvalidFieldBag
	}
	return nil
}

func (s *service) publishTransition(sample domain.Sample, previous domain.SampleStatus, act actor.Actor) {
	event := events.StatusEvent{
		ID:             events.NewEventID(),
		Kind:           "sample",
		EntityID:       int64(sample.ID),
		Status:         string(sample.Status),
		PreviousStatus: string(previous),
		UpdatedBy:      int64(act.ID),
		OccurredAt:     sample.UpdatedAt,
	}

	s.hub.Publish(events.ChannelSampleStatusChanged, int64(sample.ID), event)
	s.hub.Publish(events.ChannelSampleUserUpdates, int64(sample.CustomerID), event)
	s.hub.Publish(events.ChannelSampleUserUpdates, int64(sample.ManufacturerID), event)

	switch sample.Status {
	case domain.SampleStatusQuoteSent:
		s.hub.Publish(events.ChannelSampleQuoteReceived, int64(sample.CustomerID), event)
	case domain.SampleStatusShipped:
		s.hub.Publish(events.ChannelSampleShipped, int64(sample.CustomerID), event)
	}
}

func referenceCode(kind string, metadata map[string]any, id snowflake.ID) string {
	prefix := kind
	if label, ok := metadata["label"].(string); ok && label != "" {
		prefix = slug.Make(label)
	}
	return strings.ToUpper(prefix + "-" + id.Base36())
}

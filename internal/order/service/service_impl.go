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
	"github.com/loomworks/loomline/internal/order/domain"
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
		log:          p.Log.Named("order.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		authz:        p.Authz,
		hub:          p.Hub,
		materializer: p.Materializer,
		locker:       p.Locker,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error) {
	act, ok := actor.FromContext(ctx)
	if !ok {
		return domain.Order{}, domain.ErrMissingActor
	}
	if err := s.authz.Authorize(ctx, act.Role, authorization.ObjectOrder, authorization.ActionOrderCreate); err != nil {
		return domain.Order{}, domain.ErrForbidden
	}

	customerID, err := snowflake.ParseString(req.CustomerID)
	if err != nil || customerID == 0 {
		return domain.Order{}, domain.ErrInvalidCustomer
	}
	manufacturerID, err := snowflake.ParseString(req.ManufacturerID)
	if err != nil || manufacturerID == 0 {
		return domain.Order{}, domain.ErrInvalidManufacturer
	}
	if req.Quantity <= 0 {
		return domain.Order{}, domain.ErrInvalidQuantity
	}
	if !act.IsAdmin() && act.ID != customerID {
		return domain.Order{}, domain.ErrForbidden
	}

	var companyID *snowflake.ID
	if req.CompanyID != "" {
		id, err := snowflake.ParseString(req.CompanyID)
		if err != nil || id == 0 {
			return domain.Order{}, domain.ErrInvalidOrder
		}
		companyID = &id
	}
	var collectionID *snowflake.ID
	if req.CollectionID != "" {
		id, err := snowflake.ParseString(req.CollectionID)
		if err != nil || id == 0 {
			return domain.Order{}, domain.ErrInvalidOrder
		}
		collectionID = &id
	}

	now := s.clock.Now().UTC()
	order := domain.Order{
		ID:             s.genID.Generate(),
		CustomerID:     customerID,
		ManufacturerID: manufacturerID,
		CompanyID:      companyID,
		CollectionID:   collectionID,
		Status:         domain.OrderStatusPending,
		Quantity:       req.Quantity,
		Metadata:       req.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	order.ReferenceCode = referenceCode("ord", req.Metadata, order.ID)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &order); err != nil {
			return err
		}
		return s.repo.AppendHistory(ctx, tx, &domain.OrderHistory{
			ID:        s.genID.Generate(),
			OrderID:   order.ID,
			Status:    domain.OrderStatusPending,
			ActorID:   act.ID,
			CreatedAt: now,
		})
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.log.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("reference_code", order.ReferenceCode),
	)
	return order, nil
}

func (s *service) GetByID(ctx context.Context, id string) (domain.Order, error) {
	orderID, err := snowflake.ParseString(id)
	if err != nil || orderID == 0 {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	order, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order == nil {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return *order, nil
}

func (s *service) List(ctx context.Context, req domain.ListOrderRequest) (domain.ListOrderResponse, error) {
	var customerID snowflake.ID
	if req.CustomerID != "" {
		id, err := snowflake.ParseString(req.CustomerID)
		if err != nil || id == 0 {
			return domain.ListOrderResponse{}, domain.ErrInvalidCustomer
		}
		customerID = id
	}
	if req.Status != "" && !domain.ValidStatus(domain.OrderStatus(req.Status)) {
		return domain.ListOrderResponse{}, domain.ErrInvalidStatus
	}

	orders, err := s.repo.List(ctx, s.db, domain.OrderStatus(req.Status), customerID, int(req.PageSize))
	if err != nil {
		return domain.ListOrderResponse{}, err
	}
	return domain.ListOrderResponse{Orders: orders}, nil
}

func (s *service) History(ctx context.Context, id string) ([]domain.OrderHistory, error) {
	orderID, err := snowflake.ParseString(id)
	if err != nil || orderID == 0 {
		return nil, domain.ErrOrderNotFound
	}
	order, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	return s.repo.ListHistory(ctx, s.db, orderID)
}

// Transition moves an order along one edge of the lifecycle table. The whole
// status change, its derived fields, and the history row commit in one
// transaction over a locked row; events fire only after the commit.
func (s *service) Transition(ctx context.Context, req domain.TransitionRequest) (domain.Order, error) {
	act, ok := actor.FromContext(ctx)
	if !ok {
		return domain.Order{}, domain.ErrMissingActor
	}
	orderID, err := snowflake.ParseString(req.OrderID)
	if err != nil || orderID == 0 {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if !domain.ValidStatus(req.TargetStatus) {
		return domain.Order{}, domain.ErrInvalidStatus
	}
	if err := validateFieldBag(req); err != nil {
		return domain.Order{}, err
	}

	// Held through the post-commit publish so events for one order leave the
	// hub in commit order even on a single replica without redis.
	unlock := s.locks.Lock("order", int64(orderID))
	defer unlock()

	token, acquired, err := s.locker.TryLock(ctx, "order", int64(orderID), transitionLockTTL)
	if err != nil {
		return domain.Order{}, err
	}
	if !acquired {
		return domain.Order{}, domain.ErrConflict
	}
	defer func() {
		if err := s.locker.Release(ctx, "order", int64(orderID), token); err != nil {
			s.log.Warn("transition lock release failed",
				zap.String("order_id", orderID.String()), zap.Error(err))
		}
	}()

	var (
		updated        domain.Order
		previousStatus domain.OrderStatus
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.repo.FindByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return domain.ErrOrderNotFound
		}
		previousStatus = order.Status

		edge, err := domain.Transitions.Edge(string(order.Status), string(req.TargetStatus))
		if err != nil {
			if errors.Is(err, lifecycle.ErrUnknownStatus) {
				return domain.ErrInvalidStatus
			}
			return domain.ErrInvalidTransition
		}
		if err := s.authorizeEdge(ctx, act, order, edge); err != nil {
			return err
		}

		now := s.clock.Now().UTC()
		applyFields(order, req, now)
		order.Status = req.TargetStatus
		order.UpdatedAt = now

		if err := s.repo.Update(ctx, tx, order); err != nil {
			return err
		}
		if err := s.repo.AppendHistory(ctx, tx, &domain.OrderHistory{
			ID:            s.genID.Generate(),
			OrderID:       order.ID,
			Status:        order.Status,
			Note:          req.Note,
			EstimatedDays: req.ProductionDays,
			ActorID:       act.ID,
			CreatedAt:     now,
		}); err != nil {
			return err
		}

		updated = *order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	if updated.Status == domain.OrderStatusConfirmed {
		s.materializer.MaterializeForOrder(ctx, &updated)
	}
	s.publishTransition(updated, previousStatus, act)

	s.log.Info("order transitioned",
		zap.String("order_id", updated.ID.String()),
		zap.String("from", string(previousStatus)),
		zap.String("to", string(updated.Status)),
		zap.String("actor_id", act.ID.String()),
	)
	return updated, nil
}

// authorizeEdge layers the three gates: edge side vs role, casbin capability,
// and ownership of this particular order.
func (s *service) authorizeEdge(ctx context.Context, act actor.Actor, order *domain.Order, edge lifecycle.Edge) error {
	if !edge.SideAllows(act.Role) {
		return domain.ErrForbidden
	}
	if err := s.authz.Authorize(ctx, act.Role, authorization.ObjectOrder, edge.Action); err != nil {
		return domain.ErrForbidden
	}
	if act.IsAdmin() {
		return nil
	}
	switch edge.Side {
	case lifecycle.SideCustomer:
		if act.ID != order.CustomerID {
			return domain.ErrForbidden
		}
	case lifecycle.SideManufacturer:
		if act.ID == order.ManufacturerID {
			return nil
		}
		// Company co-members act on the manufacturer's behalf.
		if order.CompanyID != nil && act.CompanyID != 0 && act.CompanyID == *order.CompanyID {
			return nil
		}
		return domain.ErrForbidden
	}
	return nil
}

// applyFields writes the derived fields an edge consumes. Fields supplied on
// edges that do not consume them are ignored, not rejected.
func applyFields(order *domain.Order, req domain.TransitionRequest, now time.Time) {
	switch req.TargetStatus {
	case domain.OrderStatusQuoteSent:
		if req.QuotedUnitPrice != nil {
			order.UnitPrice = *req.QuotedUnitPrice
			order.TotalPrice = order.UnitPrice * float64(order.Quantity)
		}
		if req.ProductionDays != nil {
			order.ProductionDays = req.ProductionDays
			estimated := now.Add(time.Duration(*req.ProductionDays) * 24 * time.Hour)
			order.EstimatedProductionDate = &estimated
		}
		if req.ManufacturerResponse != nil {
			order.ManufacturerResponse = req.ManufacturerResponse
		}
	case domain.OrderStatusInProduction:
		start := now
		order.ActualProductionStart = &start
	case domain.OrderStatusProductionComplete:
		end := now
		order.ActualProductionEnd = &end
	case domain.OrderStatusShipped:
		shipped := now
		order.ShippingDate = &shipped
		if req.CargoTrackingCode != nil {
			order.CargoTrackingCode = req.CargoTrackingCode
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

func (s *service) publishTransition(order domain.Order, previous domain.OrderStatus, act actor.Actor) {
	event := events.StatusEvent{
		ID:             events.NewEventID(),
		Kind:           "order",
		EntityID:       int64(order.ID),
		Status:         string(order.Status),
		PreviousStatus: string(previous),
		UpdatedBy:      int64(act.ID),
		OccurredAt:     order.UpdatedAt,
	}

	s.hub.Publish(events.ChannelOrderStatusChanged, int64(order.ID), event)
	s.hub.Publish(events.ChannelOrderUserUpdates, int64(order.CustomerID), event)
	s.hub.Publish(events.ChannelOrderUserUpdates, int64(order.ManufacturerID), event)

	switch order.Status {
	case domain.OrderStatusQuoteSent:
		s.hub.Publish(events.ChannelOrderQuoteReceived, int64(order.CustomerID), event)
	case domain.OrderStatusShipped:
		s.hub.Publish(events.ChannelOrderShipped, int64(order.CustomerID), event)
	}
}

// referenceCode builds the human-facing code for a new entity. A "label"
// metadata entry becomes the slugged prefix; the snowflake keeps it unique.
func referenceCode(kind string, metadata map[string]any, id snowflake.ID) string {
	prefix := kind
	if label, ok := metadata["label"].(string); ok && label != "" {
		prefix = slug.Make(label)
	}
	return strings.ToUpper(prefix + "-" + id.Base36())
}

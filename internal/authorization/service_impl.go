package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/loomworks/loomline/internal/actor"
	orderdomain "github.com/loomworks/loomline/internal/order/domain"
	sampledomain "github.com/loomworks/loomline/internal/sample/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectOrder  = "order"
	ObjectSample = "sample"
)

const (
	ActionOrderView    = "order.view"
	ActionOrderCreate  = "order.create"
	ActionSampleView   = "sample.view"
	ActionSampleCreate = "sample.create"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, role actor.Role, object string, action string) error {
	if !actor.ValidRole(role) {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject := "role:" + string(role)
	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("subject", subject),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Buyer side
		{"role:customer", ObjectOrder, ActionOrderView},
		{"role:customer", ObjectOrder, ActionOrderCreate},
		{"role:customer", ObjectOrder, orderdomain.ActionOrderConfirm},
		{"role:customer", ObjectOrder, orderdomain.ActionOrderReject},
		{"role:customer", ObjectOrder, orderdomain.ActionOrderCancel},
		{"role:customer", ObjectOrder, orderdomain.ActionOrderDeliver},
		{"role:customer", ObjectSample, ActionSampleView},
		{"role:customer", ObjectSample, ActionSampleCreate},
		{"role:customer", ObjectSample, sampledomain.ActionSampleApprove},
		{"role:customer", ObjectSample, sampledomain.ActionSampleReject},
		{"role:customer", ObjectSample, sampledomain.ActionSampleCancel},
		{"role:customer", ObjectSample, sampledomain.ActionSampleDeliver},

		// Manufacturer side
		{"role:manufacturer", ObjectOrder, ActionOrderView},
		{"role:manufacturer", ObjectOrder, orderdomain.ActionOrderReview},
		{"role:manufacturer", ObjectOrder, orderdomain.ActionOrderQuote},
		{"role:manufacturer", ObjectOrder, orderdomain.ActionOrderStart},
		{"role:manufacturer", ObjectOrder, orderdomain.ActionOrderComplete},
		{"role:manufacturer", ObjectOrder, orderdomain.ActionOrderQualityCheck},
		{"role:manufacturer", ObjectOrder, orderdomain.ActionOrderShip},
		{"role:manufacturer", ObjectSample, ActionSampleView},
		{"role:manufacturer", ObjectSample, sampledomain.ActionSampleReview},
		{"role:manufacturer", ObjectSample, sampledomain.ActionSampleQuote},
		{"role:manufacturer", ObjectSample, sampledomain.ActionSampleStart},
		{"role:manufacturer", ObjectSample, sampledomain.ActionSampleComplete},
		{"role:manufacturer", ObjectSample, sampledomain.ActionSampleShip},
	}

	for _, p := range policies {
		if _, err := enforcer.AddPolicy(p[0], p[1], p[2]); err != nil {
			return err
		}
	}

	// Admins inherit both sides and can drive any edge.
	groupings := [][]string{
		{"role:admin", "role:customer"},
		{"role:admin", "role:manufacturer"},
	}
	for _, g := range groupings {
		if _, err := enforcer.AddGroupingPolicy(g[0], g[1]); err != nil {
			return err
		}
	}
	return nil
}

var Module = fx.Module("authorization.service",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)

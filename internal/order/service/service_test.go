package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/loomworks/loomline/internal/actor"
	"github.com/loomworks/loomline/internal/authorization"
	"github.com/loomworks/loomline/internal/clock"
	collectionrepository "github.com/loomworks/loomline/internal/collection/repository"
	"github.com/loomworks/loomline/internal/config"
	"github.com/loomworks/loomline/internal/events"
	"github.com/loomworks/loomline/internal/order/domain"
	orderrepository "github.com/loomworks/loomline/internal/order/repository"
	trackingdomain "github.com/loomworks/loomline/internal/tracking/domain"
	trackingrepository "github.com/loomworks/loomline/internal/tracking/repository"
	trackingservice "github.com/loomworks/loomline/internal/tracking/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared&_pragma=busy_timeout(5000)"), &gorm.Config{
		TranslateError: true,
	})
	require.NoError(t, err)

	// Create tables manually to match the production schema.
	db.Exec(`CREATE TABLE IF NOT EXISTS orders (
		id BIGINT PRIMARY KEY,
		reference_code TEXT NOT NULL UNIQUE,
		customer_id BIGINT NOT NULL,
		manufacturer_id BIGINT NOT NULL,
		company_id BIGINT,
		collection_id BIGINT,
		status TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		unit_price REAL NOT NULL DEFAULT 0,
		total_price REAL NOT NULL DEFAULT 0,
		production_days INTEGER,
		estimated_production_date TIMESTAMP,
		actual_production_start TIMESTAMP,
		actual_production_end TIMESTAMP,
		shipping_date TIMESTAMP,
		cargo_tracking_code TEXT,
		manufacturer_response TEXT,
		metadata TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`)
	db.Exec(`CREATE TABLE IF NOT EXISTS order_histories (
		id BIGINT PRIMARY KEY,
		order_id BIGINT NOT NULL,
		status TEXT NOT NULL,
		note TEXT,
		estimated_days INTEGER,
		actor_id BIGINT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`)
	db.Exec(`CREATE TABLE IF NOT EXISTS collections (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		manufacturer_id BIGINT NOT NULL,
		production_schedule TEXT,
		metadata TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`)
	db.Exec(`CREATE TABLE IF NOT EXISTS production_trackings (
		id BIGINT PRIMARY KEY,
		order_id BIGINT,
		sample_id BIGINT,
		current_stage TEXT NOT NULL,
		overall_status TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		estimated_start_date TIMESTAMP NOT NULL,
		estimated_end_date TIMESTAMP NOT NULL,
		actual_start_date TIMESTAMP,
		actual_end_date TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`)
	db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_production_trackings_order
		ON production_trackings(order_id) WHERE order_id IS NOT NULL`)
	db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_production_trackings_sample
		ON production_trackings(sample_id) WHERE sample_id IS NOT NULL`)
	db.Exec(`CREATE TABLE IF NOT EXISTS production_stage_updates (
		id BIGINT PRIMARY KEY,
		tracking_id BIGINT NOT NULL,
		stage TEXT NOT NULL,
		status TEXT NOT NULL,
		estimated_days INTEGER NOT NULL,
		position INTEGER NOT NULL,
		notes TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`)

	return db
}

type testEnv struct {
	db    *gorm.DB
	svc   domain.Service
	hub   *events.Hub
	clk   *clock.FakeClock
	node  *snowflake.Node
	repo  domain.Repository
	track trackingdomain.Repository
}

func newTestEnv(t *testing.T) *testEnv {
	db := openTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	hub := events.NewHub()

	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer})

	trackingRepo := trackingrepository.Provide()
	materializer := trackingservice.NewMaterializer(trackingservice.MaterializerParam{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		Repo:        trackingRepo,
		Collections: collectionrepository.Provide(),
		ScheduleCfg: config.NewStaticScheduleConfigHolder(config.DefaultScheduleConfig()),
	})

	repo := orderrepository.Provide()
	svc := NewService(Param{
		DB:           db,
		Log:          log,
		GenID:        node,
		Clock:        clk,
		Repo:         repo,
		Authz:        authz,
		Hub:          hub,
		Materializer: materializer,
	})

	return &testEnv{db: db, svc: svc, hub: hub, clk: clk, node: node, repo: repo, track: trackingRepo}
}

func asCtx(a actor.Actor) context.Context {
	return actor.WithActor(context.Background(), a)
}

func drain(sub *events.Subscription) []events.StatusEvent {
	var out []events.StatusEvent
	for {
		select {
		case ev := <-sub.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestOrderLifecycle(t *testing.T) {
	env := newTestEnv(t)

	customer := actor.Actor{ID: env.node.Generate(), Role: actor.RoleCustomer}
	manufacturer := actor.Actor{ID: env.node.Generate(), Role: actor.RoleManufacturer}

	created, err := env.svc.Create(asCtx(customer), domain.CreateOrderRequest{
		CustomerID:     customer.ID.String(),
		ManufacturerID: manufacturer.ID.String(),
		Quantity:       120,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, created.Status)
	assert.NotEmpty(t, created.ReferenceCode)

	history, err := env.svc.History(asCtx(customer), created.ID.String())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.OrderStatusPending, history[0].Status)

	statusSub, err := env.hub.Subscribe(events.ChannelOrderStatusChanged, int64(created.ID))
	require.NoError(t, err)
	defer statusSub.Close()
	customerSub, err := env.hub.Subscribe(events.ChannelOrderUserUpdates, int64(customer.ID))
	require.NoError(t, err)
	defer customerSub.Close()
	quoteSub, err := env.hub.Subscribe(events.ChannelOrderQuoteReceived, int64(customer.ID))
	require.NoError(t, err)
	defer quoteSub.Close()

	t.Run("manufacturer reviews", func(t *testing.T) {
		updated, err := env.svc.Transition(asCtx(manufacturer), domain.TransitionRequest{
			OrderID:      created.ID.String(),
			TargetStatus: domain.OrderStatusReviewed,
			Note:         "specs look fine",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusReviewed, updated.Status)
	})

	t.Run("quote applies commercial fields", func(t *testing.T) {
		price := 12.5
		days := 20
		response := "can start next week"
		updated, err := env.svc.Transition(asCtx(manufacturer), domain.TransitionRequest{
			OrderID:              created.ID.String(),
			TargetStatus:         domain.OrderStatusQuoteSent,
			QuotedUnitPrice:      &price,
			ProductionDays:       &days,
			ManufacturerResponse: &response,
		})
		require.NoError(t, err)
		assert.Equal(t, 12.5, updated.UnitPrice)
		assert.Equal(t, 12.5*120, updated.TotalPrice)
		require.NotNil(t, updated.ProductionDays)
		assert.Equal(t, 20, *updated.ProductionDays)
		require.NotNil(t, updated.EstimatedProductionDate)
		assert.Equal(t, env.clk.Now().Add(20*24*time.Hour), updated.EstimatedProductionDate.UTC())

		quotes := drain(quoteSub)
		require.Len(t, quotes, 1)
		assert.Equal(t, string(domain.OrderStatusQuoteSent), quotes[0].Status)
	})

	t.Run("stranger cannot confirm", func(t *testing.T) {
		stranger := actor.Actor{ID: env.node.Generate(), Role: actor.RoleCustomer}
		_, err := env.svc.Transition(asCtx(stranger), domain.TransitionRequest{
			OrderID:      created.ID.String(),
			TargetStatus: domain.OrderStatusConfirmed,
		})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("manufacturer cannot confirm", func(t *testing.T) {
		_, err := env.svc.Transition(asCtx(manufacturer), domain.TransitionRequest{
			OrderID:      created.ID.String(),
			TargetStatus: domain.OrderStatusConfirmed,
		})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("customer confirms and tracking materializes", func(t *testing.T) {
		updated, err := env.svc.Transition(asCtx(customer), domain.TransitionRequest{
			OrderID:      created.ID.String(),
			TargetStatus: domain.OrderStatusConfirmed,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusConfirmed, updated.Status)

		tracking, err := env.track.FindByOrderID(context.Background(), env.db, created.ID)
		require.NoError(t, err)
		require.NotNil(t, tracking)
		assert.Equal(t, trackingdomain.TrackingStatusInProgress, tracking.OverallStatus)

		stages, err := env.track.ListStages(context.Background(), env.db, tracking.ID)
		require.NoError(t, err)
		// No collection schedule: single fallback stage sized by the quote.
		require.Len(t, stages, 1)
		assert.Equal(t, "PLANNING", stages[0].Stage)
		assert.Equal(t, 20, stages[0].EstimatedDays)
		assert.Equal(t, trackingdomain.StageStatusInProgress, stages[0].Status)
	})

	t.Run("invalid transition leaves state untouched", func(t *testing.T) {
		_, err := env.svc.Transition(asCtx(manufacturer), domain.TransitionRequest{
			OrderID:      created.ID.String(),
			TargetStatus: domain.OrderStatusShipped,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)

		current, err := env.svc.GetByID(asCtx(customer), created.ID.String())
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusConfirmed, current.Status)
	})

	t.Run("production start stamps actuals", func(t *testing.T) {
		env.clk.Advance(48 * time.Hour)
		updated, err := env.svc.Transition(asCtx(manufacturer), domain.TransitionRequest{
			OrderID:      created.ID.String(),
			TargetStatus: domain.OrderStatusInProduction,
		})
		require.NoError(t, err)
		require.NotNil(t, updated.ActualProductionStart)
		assert.Equal(t, env.clk.Now(), updated.ActualProductionStart.UTC())
	})

	t.Run("cancellation refused once production started", func(t *testing.T) {
		_, err := env.svc.Transition(asCtx(customer), domain.TransitionRequest{
			OrderID:      created.ID.String(),
			TargetStatus: domain.OrderStatusCancelled,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("events observed on both channels", func(t *testing.T) {
		statusEvents := drain(statusSub)
		require.Len(t, statusEvents, 4)
		assert.Equal(t, string(domain.OrderStatusReviewed), statusEvents[0].Status)
		assert.Equal(t, string(domain.OrderStatusPending), statusEvents[0].PreviousStatus)
		assert.Equal(t, string(domain.OrderStatusInProduction), statusEvents[3].Status)

		userEvents := drain(customerSub)
		assert.Len(t, userEvents, 4)
	})

	t.Run("history is append-only and ordered", func(t *testing.T) {
		history, err := env.svc.History(asCtx(customer), created.ID.String())
		require.NoError(t, err)
		require.Len(t, history, 5)
		statuses := make([]domain.OrderStatus, 0, len(history))
		for _, h := range history {
			statuses = append(statuses, h.Status)
		}
		assert.Equal(t, []domain.OrderStatus{
			domain.OrderStatusPending,
			domain.OrderStatusReviewed,
			domain.OrderStatusQuoteSent,
			domain.OrderStatusConfirmed,
			domain.OrderStatusInProduction,
		}, statuses)
	})
}

func TestOrderTransitionValidation(t *testing.T) {
	env := newTestEnv(t)
	customer := actor.Actor{ID: env.node.Generate(), Role: actor.RoleCustomer}
	manufacturer := actor.Actor{ID: env.node.Generate(), Role: actor.RoleManufacturer}

	created, err := env.svc.Create(asCtx(customer), domain.CreateOrderRequest{
		CustomerID:     customer.ID.String(),
		ManufacturerID: manufacturer.ID.String(),
		Quantity:       10,
	})
	require.NoError(t, err)

	t.Run("missing actor", func(t *testing.T) {
		_, err := env.svc.Transition(context.Background(), domain.TransitionRequest{
			OrderID:      created.ID.String(),
			TargetStatus: domain.OrderStatusReviewed,
		})
		assert.ErrorIs(t, err, domain.ErrMissingActor)
	})

	t.Run("unknown order", func(t *testing.T) {
		_, err := env.svc.Transition(asCtx(manufacturer), domain.TransitionRequest{
			OrderID:      env.node.Generate().String(),
			TargetStatus: domain.OrderStatusReviewed,
		})
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})

	t.Run("unknown target status", func(t *testing.T) {
		_, err := env.svc.Transition(asCtx(manufacturer), domain.TransitionRequest{
			OrderID:      created.ID.String(),
			TargetStatus: domain.OrderStatus("LOST_AT_SEA"),
		})
		assert.ErrorIs(t, err, domain.ErrInvalidStatus)
	})

	t.Run("malformed field bag", func(t *testing.T) {
		badPrice := -4.0
		_, err := env.svc.Transition(asCtx(manufacturer), domain.TransitionRequest{
			OrderID:         created.ID.String(),
			TargetStatus:    domain.OrderStatusReviewed,
			QuotedUnitPrice: &badPrice,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidFieldBag)

		badDays := 0
		_, err = env.svc.Transition(asCtx(manufacturer), domain.TransitionRequest{
			OrderID:        created.ID.String(),
			TargetStatus:   domain.OrderStatusReviewed,
			ProductionDays: &badDays,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidFieldBag)
	})

	t.Run("create rejects bad quantity", func(t *testing.T) {
		_, err := env.svc.Create(asCtx(customer), domain.CreateOrderRequest{
			CustomerID:     customer.ID.String(),
			ManufacturerID: manufacturer.ID.String(),
			Quantity:       0,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	})

	t.Run("admin may drive any edge", func(t *testing.T) {
		admin := actor.Actor{ID: env.node.Generate(), Role: actor.RoleAdmin}
		updated, err := env.svc.Transition(asCtx(admin), domain.TransitionRequest{
			OrderID:      created.ID.String(),
			TargetStatus: domain.OrderStatusReviewed,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusReviewed, updated.Status)
	})
}

func TestOrderCompanyCoMemberActsForManufacturer(t *testing.T) {
	env := newTestEnv(t)
	customer := actor.Actor{ID: env.node.Generate(), Role: actor.RoleCustomer}
	manufacturer := actor.Actor{ID: env.node.Generate(), Role: actor.RoleManufacturer}
	companyID := env.node.Generate()

	created, err := env.svc.Create(asCtx(customer), domain.CreateOrderRequest{
		CustomerID:     customer.ID.String(),
		ManufacturerID: manufacturer.ID.String(),
		CompanyID:      companyID.String(),
		Quantity:       5,
	})
	require.NoError(t, err)

	coMember := actor.Actor{ID: env.node.Generate(), Role: actor.RoleManufacturer, CompanyID: companyID}
	updated, err := env.svc.Transition(asCtx(coMember), domain.TransitionRequest{
		OrderID:      created.ID.String(),
		TargetStatus: domain.OrderStatusReviewed,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusReviewed, updated.Status)

	otherCompany := actor.Actor{ID: env.node.Generate(), Role: actor.RoleManufacturer, CompanyID: env.node.Generate()}
	_, err = env.svc.Transition(asCtx(otherCompany), domain.TransitionRequest{
		OrderID:      created.ID.String(),
		TargetStatus: domain.OrderStatusQuoteSent,
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

type denyLocker struct{}

func (denyLocker) TryLock(context.Context, string, int64, time.Duration) (string, bool, error) {
	return "", false, nil
}

func (denyLocker) Release(context.Context, string, int64, string) error { return nil }

func TestOrderTransitionLockMiss(t *testing.T) {
	env := newTestEnv(t)
	customer := actor.Actor{ID: env.node.Generate(), Role: actor.RoleCustomer}
	manufacturer := actor.Actor{ID: env.node.Generate(), Role: actor.RoleManufacturer}

	created, err := env.svc.Create(asCtx(customer), domain.CreateOrderRequest{
		CustomerID:     customer.ID.String(),
		ManufacturerID: manufacturer.ID.String(),
		Quantity:       10,
	})
	require.NoError(t, err)

	env.svc.(*service).locker = denyLocker{}

	_, err = env.svc.Transition(asCtx(manufacturer), domain.TransitionRequest{
		OrderID:      created.ID.String(),
		TargetStatus: domain.OrderStatusReviewed,
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	current, err := env.svc.GetByID(asCtx(manufacturer), created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, current.Status)
}

func TestOrderEventsDeliveredInCommitOrder(t *testing.T) {
	env := newTestEnv(t)
	customer := actor.Actor{ID: env.node.Generate(), Role: actor.RoleCustomer}
	manufacturer := actor.Actor{ID: env.node.Generate(), Role: actor.RoleManufacturer}

	for i := 0; i < 20; i++ {
		created, err := env.svc.Create(asCtx(customer), domain.CreateOrderRequest{
			CustomerID:     customer.ID.String(),
			ManufacturerID: manufacturer.ID.String(),
			Quantity:       8,
		})
		require.NoError(t, err)

		sub, err := env.hub.Subscribe(events.ChannelOrderStatusChanged, int64(created.ID))
		require.NoError(t, err)

		// Two racing transitions: the quote can only apply once the review
		// committed, so commit order is fixed and the subscriber must see
		// REVIEWED before QUOTE_SENT.
		var wg sync.WaitGroup
		wg.Add(2)
		var reviewErr error
		go func() {
			defer wg.Done()
			_, reviewErr = env.svc.Transition(asCtx(manufacturer), domain.TransitionRequest{
				OrderID:      created.ID.String(),
				TargetStatus: domain.OrderStatusReviewed,
			})
		}()
		var quoteErr error
		go func() {
			defer wg.Done()
			price := 9.0
			for {
				_, err := env.svc.Transition(asCtx(manufacturer), domain.TransitionRequest{
					OrderID:         created.ID.String(),
					TargetStatus:    domain.OrderStatusQuoteSent,
					QuotedUnitPrice: &price,
				})
				if err == nil {
					return
				}
				if !errors.Is(err, domain.ErrInvalidTransition) {
					quoteErr = err
					return
				}
				time.Sleep(time.Millisecond)
			}
		}()
		wg.Wait()
		require.NoError(t, reviewErr)
		require.NoError(t, quoteErr)

		got := drain(sub)
		sub.Close()
		require.Len(t, got, 2)
		assert.Equal(t, string(domain.OrderStatusReviewed), got[0].Status)
		assert.Equal(t, string(domain.OrderStatusQuoteSent), got[1].Status)
	}
}

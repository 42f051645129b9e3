package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/loomworks/loomline/internal/actor"
	"github.com/loomworks/loomline/internal/authorization"
	"github.com/loomworks/loomline/internal/clock"
	collectiondomain "github.com/loomworks/loomline/internal/collection/domain"
	collectionrepository "github.com/loomworks/loomline/internal/collection/repository"
	"github.com/loomworks/loomline/internal/config"
	"github.com/loomworks/loomline/internal/events"
	"github.com/loomworks/loomline/internal/sample/domain"
	samplerepository "github.com/loomworks/loomline/internal/sample/repository"
	trackingdomain "github.com/loomworks/loomline/internal/tracking/domain"
	trackingrepository "github.com/loomworks/loomline/internal/tracking/repository"
	trackingservice "github.com/loomworks/loomline/internal/tracking/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		TranslateError: true,
	})
	require.NoError(t, err)

	db.Exec(`CREATE TABLE IF NOT EXISTS samples (
		id BIGINT PRIMARY KEY,
		reference_code TEXT NOT NULL UNIQUE,
		customer_id BIGINT NOT NULL,
		manufacturer_id BIGINT NOT NULL,
		company_id BIGINT,
		collection_id BIGINT,
		status TEXT NOT NULL,
		sample_type TEXT NOT NULL DEFAULT 'STANDARD',
		unit_price REAL NOT NULL DEFAULT 0,
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
	db.Exec(`CREATE TABLE IF NOT EXISTS sample_histories (
		id BIGINT PRIMARY KEY,
		sample_id BIGINT NOT NULL,
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
	track trackingdomain.Repository
	colls collectiondomain.Repository
}

func newTestEnv(t *testing.T) *testEnv {
	db := openTestDB(t)
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	hub := events.NewHub()

	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer})

	trackingRepo := trackingrepository.Provide()
	collectionRepo := collectionrepository.Provide()
	materializer := trackingservice.NewMaterializer(trackingservice.MaterializerParam{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		Repo:        trackingRepo,
		Collections: collectionRepo,
		ScheduleCfg: config.NewStaticScheduleConfigHolder(config.DefaultScheduleConfig()),
	})

	svc := NewService(Param{
		DB:           db,
		Log:          log,
		GenID:        node,
		Clock:        clk,
		Repo:         samplerepository.Provide(),
		Authz:        authz,
		Hub:          hub,
		Materializer: materializer,
	})

	return &testEnv{db: db, svc: svc, hub: hub, clk: clk, node: node, track: trackingRepo, colls: collectionRepo}
}

func asCtx(a actor.Actor) context.Context {
	return actor.WithActor(context.Background(), a)
}

func (env *testEnv) startProduction(t *testing.T, customer, manufacturer actor.Actor, req domain.CreateSampleRequest) domain.Sample {
	t.Helper()

	created, err := env.svc.Create(asCtx(customer), req)
	require.NoError(t, err)

	steps := []struct {
		act    actor.Actor
		target domain.SampleStatus
	}{
		{manufacturer, domain.SampleStatusReviewed},
		{manufacturer, domain.SampleStatusQuoteSent},
		{customer, domain.SampleStatusApproved},
		{manufacturer, domain.SampleStatusInProduction},
	}
	var updated domain.Sample
	for _, step := range steps {
		updated, err = env.svc.Transition(asCtx(step.act), domain.TransitionRequest{
			SampleID:     created.ID.String(),
			TargetStatus: step.target,
		})
		require.NoError(t, err)
	}
	return updated
}

func (env *testEnv) stagesFor(t *testing.T, sampleID snowflake.ID) (*trackingdomain.ProductionTracking, []trackingdomain.ProductionStageUpdate) {
	t.Helper()

	tracking, err := env.track.FindBySampleID(context.Background(), env.db, sampleID)
	require.NoError(t, err)
	require.NotNil(t, tracking)
	stages, err := env.track.ListStages(context.Background(), env.db, tracking.ID)
	require.NoError(t, err)
	return tracking, stages
}

func TestSampleDefaultScheduleMaterialization(t *testing.T) {
	env := newTestEnv(t)
	customer := actor.Actor{ID: env.node.Generate(), Role: actor.RoleCustomer}
	manufacturer := actor.Actor{ID: env.node.Generate(), Role: actor.RoleManufacturer}

	sample := env.startProduction(t, customer, manufacturer, domain.CreateSampleRequest{
		CustomerID:     customer.ID.String(),
		ManufacturerID: manufacturer.ID.String(),
	})
	assert.Equal(t, domain.SampleStatusInProduction, sample.Status)
	require.NotNil(t, sample.ActualProductionStart)

	tracking, stages := env.stagesFor(t, sample.ID)
	assert.Equal(t, "PLANNING", tracking.CurrentStage)

	// Built-in compressed sample cycle, used as-is.
	require.Len(t, stages, 5)
	names := make([]string, 0, len(stages))
	total := 0
	for _, s := range stages {
		names = append(names, s.Stage)
		total += s.EstimatedDays
	}
	assert.Equal(t, []string{"PLANNING", "FABRIC", "SEWING", "QUALITY", "SHIPPING"}, names)
	assert.Equal(t, 11, total)
	assert.Equal(t, 11*24*time.Hour, tracking.EstimatedEndDate.Sub(tracking.EstimatedStartDate))
}

func TestRevisionSampleSkipsFabric(t *testing.T) {
	env := newTestEnv(t)
	customer := actor.Actor{ID: env.node.Generate(), Role: actor.RoleCustomer}
	manufacturer := actor.Actor{ID: env.node.Generate(), Role: actor.RoleManufacturer}

	sample := env.startProduction(t, customer, manufacturer, domain.CreateSampleRequest{
		CustomerID:     customer.ID.String(),
		ManufacturerID: manufacturer.ID.String(),
		SampleType:     domain.SampleTypeRevision,
	})

	_, stages := env.stagesFor(t, sample.ID)
	require.Len(t, stages, 4)
	names := make([]string, 0, len(stages))
	total := 0
	for _, s := range stages {
		names = append(names, s.Stage)
		total += s.EstimatedDays
	}
	assert.Equal(t, []string{"PLANNING", "SEWING", "QUALITY", "SHIPPING"}, names)
	assert.Equal(t, 9, total)
}

func TestSampleCollectionScheduleHalved(t *testing.T) {
	env := newTestEnv(t)
	customer := actor.Actor{ID: env.node.Generate(), Role: actor.RoleCustomer}
	manufacturer := actor.Actor{ID: env.node.Generate(), Role: actor.RoleManufacturer}

	coll := &collectiondomain.Collection{
		ID:             env.node.Generate(),
		Name:           "Linen Capsule",
		Slug:           "linen-capsule",
		ManufacturerID: manufacturer.ID,
		ProductionSchedule: datatypes.JSONMap{
			"FABRIC": float64(4),
			"SEWING": float64(10),
		},
		CreatedAt: env.clk.Now(),
		UpdatedAt: env.clk.Now(),
	}
	require.NoError(t, env.colls.Insert(context.Background(), env.db, coll))

	sample := env.startProduction(t, customer, manufacturer, domain.CreateSampleRequest{
		CustomerID:     customer.ID.String(),
		ManufacturerID: manufacturer.ID.String(),
		CollectionID:   coll.ID.String(),
	})

	_, stages := env.stagesFor(t, sample.ID)
	require.Len(t, stages, 2)
	assert.Equal(t, "FABRIC", stages[0].Stage)
	assert.Equal(t, 2, stages[0].EstimatedDays)
	assert.Equal(t, "SEWING", stages[1].Stage)
	assert.Equal(t, 5, stages[1].EstimatedDays)
}

func TestSampleCancellationRule(t *testing.T) {
	env := newTestEnv(t)
	customer := actor.Actor{ID: env.node.Generate(), Role: actor.RoleCustomer}
	manufacturer := actor.Actor{ID: env.node.Generate(), Role: actor.RoleManufacturer}

	created, err := env.svc.Create(asCtx(customer), domain.CreateSampleRequest{
		CustomerID:     customer.ID.String(),
		ManufacturerID: manufacturer.ID.String(),
	})
	require.NoError(t, err)

	t.Run("manufacturer cannot cancel", func(t *testing.T) {
		_, err := env.svc.Transition(asCtx(manufacturer), domain.TransitionRequest{
			SampleID:     created.ID.String(),
			TargetStatus: domain.SampleStatusCancelled,
		})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("owning customer cancels before production", func(t *testing.T) {
		updated, err := env.svc.Transition(asCtx(customer), domain.TransitionRequest{
			SampleID:     created.ID.String(),
			TargetStatus: domain.SampleStatusCancelled,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.SampleStatusCancelled, updated.Status)
	})

	t.Run("cancelled is terminal", func(t *testing.T) {
		_, err := env.svc.Transition(asCtx(manufacturer), domain.TransitionRequest{
			SampleID:     created.ID.String(),
			TargetStatus: domain.SampleStatusReviewed,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})
}

func TestSampleInvalidType(t *testing.T) {
	env := newTestEnv(t)
	customer := actor.Actor{ID: env.node.Generate(), Role: actor.RoleCustomer}

	_, err := env.svc.Create(asCtx(customer), domain.CreateSampleRequest{
		CustomerID:     customer.ID.String(),
		ManufacturerID: env.node.Generate().String(),
		SampleType:     domain.SampleType("PROTOTYPE"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidSampleType)
}

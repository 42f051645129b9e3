package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/loomworks/loomline/internal/clock"
	collectiondomain "github.com/loomworks/loomline/internal/collection/domain"
	"github.com/loomworks/loomline/internal/config"
	orderdomain "github.com/loomworks/loomline/internal/order/domain"
	sampledomain "github.com/loomworks/loomline/internal/sample/domain"
	"github.com/loomworks/loomline/internal/schedule"
	trackingdomain "github.com/loomworks/loomline/internal/tracking/domain"
	"github.com/loomworks/loomline/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Materializer creates the production tracking aggregate for a work item the
// first time its lifecycle crosses the production threshold. Creation is
// idempotent: the partial unique index on order_id/sample_id makes a duplicate
// attempt a benign no-op, so retried transitions and duplicate triggers cannot
// produce a second aggregate.
//
// Materialization is a derived side effect. It runs after the transition has
// committed and its failures are logged, never surfaced to the caller.
type Materializer struct {
	db  *gorm.DB
	log *zap.Logger

	genID       *snowflake.Node
	clock       clock.Clock
	repo        trackingdomain.Repository
	collections collectiondomain.Repository
	scheduleCfg *config.ScheduleConfigHolder
}

type MaterializerParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        trackingdomain.Repository
	Collections collectiondomain.Repository
	ScheduleCfg *config.ScheduleConfigHolder
}

func NewMaterializer(p MaterializerParam) *Materializer {
	return &Materializer{
		db:          p.DB,
		log:         p.Log.Named("tracking.materializer"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		collections: p.Collections,
		scheduleCfg: p.ScheduleCfg,
	}
}

// MaterializeForOrder seeds tracking for a confirmed order. Never returns the
// transition into a failure: all errors are swallowed after logging.
func (m *Materializer) MaterializeForOrder(ctx context.Context, order *orderdomain.Order) {
	if order == nil {
		return
	}
	durations, err := m.resolveDurations(ctx, order.CollectionID)
	if err != nil {
		m.log.Warn("order schedule invalid, tracking skipped",
			zap.String("order_id", order.ID.String()), zap.Error(err))
		return
	}

	defaultDays := m.scheduleCfg.Get().DefaultOrderDays
	if order.ProductionDays != nil && *order.ProductionDays > 0 {
		defaultDays = *order.ProductionDays
	}

	plan, err := schedule.Compute(durations, schedule.ModeOrder, defaultDays)
	if err != nil {
		m.log.Warn("order schedule rejected, tracking skipped",
			zap.String("order_id", order.ID.String()), zap.Error(err))
		return
	}

	orderID := order.ID
	m.materialize(ctx, &orderID, nil, plan)
}

// MaterializeForSample seeds tracking for a sample entering production.
func (m *Materializer) MaterializeForSample(ctx context.Context, sample *sampledomain.Sample) {
	if sample == nil {
		return
	}
	durations, err := m.resolveDurations(ctx, sample.CollectionID)
	if err != nil {
		m.log.Warn("sample schedule invalid, tracking skipped",
			zap.String("sample_id", sample.ID.String()), zap.Error(err))
		return
	}

	mode := schedule.ModeSample
	if len(durations) == 0 {
		// The configured sample schedule is already compressed.
		durations = m.defaultSampleDurations(sample.SampleType)
		mode = schedule.ModeOrder
	} else if sample.SampleType == sampledomain.SampleTypeCustom {
		// Custom samples keep the collection's full durations.
		mode = schedule.ModeOrder
	}

	plan, err := schedule.Compute(durations, mode, m.scheduleCfg.Get().DefaultOrderDays)
	if err != nil {
		m.log.Warn("sample schedule rejected, tracking skipped",
			zap.String("sample_id", sample.ID.String()), zap.Error(err))
		return
	}
	sampleID := sample.ID
	m.materialize(ctx, nil, &sampleID, plan)
}

func (m *Materializer) materialize(ctx context.Context, orderID, sampleID *snowflake.ID, plan schedule.Plan) {
	now := m.clock.Now().UTC()

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := m.findExisting(ctx, tx, orderID, sampleID)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}

		currentStage := ""
		if len(plan.Stages) > 0 {
			currentStage = string(plan.Stages[0].Stage)
		}

		tracking := &trackingdomain.ProductionTracking{
			ID:                 m.genID.Generate(),
			OrderID:            orderID,
			SampleID:           sampleID,
			CurrentStage:       currentStage,
			OverallStatus:      trackingdomain.TrackingStatusInProgress,
			Progress:           0,
			EstimatedStartDate: now,
			EstimatedEndDate:   now.Add(time.Duration(plan.TotalDays) * 24 * time.Hour),
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := m.repo.Insert(ctx, tx, tracking); err != nil {
			return err
		}

		stages := make([]trackingdomain.ProductionStageUpdate, 0, len(plan.Stages))
		for i, s := range plan.Stages {
			status := trackingdomain.StageStatusNotStarted
			if i == 0 {
				status = trackingdomain.StageStatusInProgress
			}
			stages = append(stages, trackingdomain.ProductionStageUpdate{
				ID:            m.genID.Generate(),
				TrackingID:    tracking.ID,
				Stage:         string(s.Stage),
				Status:        status,
				EstimatedDays: s.Days,
				Position:      i,
				CreatedAt:     now,
				UpdatedAt:     now,
			})
		}
		return m.repo.InsertStages(ctx, tx, stages)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			// Lost the race against a concurrent trigger; the winner's
			// aggregate is the one that counts.
			return
		}
		m.log.Error("tracking materialization failed", zap.Error(err))
	}
}

func (m *Materializer) findExisting(ctx context.Context, tx *gorm.DB, orderID, sampleID *snowflake.ID) (*trackingdomain.ProductionTracking, error) {
	if orderID != nil {
		return m.repo.FindByOrderID(ctx, tx, *orderID)
	}
	if sampleID != nil {
		return m.repo.FindBySampleID(ctx, tx, *sampleID)
	}
	return nil, trackingdomain.ErrTrackingNotFound
}

func (m *Materializer) resolveDurations(ctx context.Context, collectionID *snowflake.ID) (map[schedule.Stage]int, error) {
	if collectionID == nil {
		return nil, nil
	}
	collection, err := m.collections.FindByID(ctx, m.db, *collectionID)
	if err != nil {
		return nil, err
	}
	if collection == nil {
		return nil, nil
	}
	return schedule.ParseDurations(collection.ProductionSchedule)
}

// defaultSampleDurations adapts the configured sample schedule to the sample
// type. Revisions skip fabric sourcing since the fabric was settled in the
// previous round.
func (m *Materializer) defaultSampleDurations(sampleType sampledomain.SampleType) map[schedule.Stage]int {
	configured := m.scheduleCfg.Get().SampleStages
	durations := make(map[schedule.Stage]int, len(configured))
	for name, days := range configured {
		durations[schedule.Stage(name)] = days
	}
	if sampleType == sampledomain.SampleTypeRevision {
		delete(durations, schedule.StageFabric)
	}
	return durations
}

package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/loomworks/loomline/internal/tracking/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tracking *domain.ProductionTracking) error {
	return db.WithContext(ctx).Create(tracking).Error
}

func (r *repo) InsertStages(ctx context.Context, db *gorm.DB, stages []domain.ProductionStageUpdate) error {
	if len(stages) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&stages).Error
}

func (r *repo) FindByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*domain.ProductionTracking, error) {
	var tracking domain.ProductionTracking
	err := db.WithContext(ctx).First(&tracking, "order_id = ?", orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tracking, nil
}

func (r *repo) FindBySampleID(ctx context.Context, db *gorm.DB, sampleID snowflake.ID) (*domain.ProductionTracking, error) {
	var tracking domain.ProductionTracking
	err := db.WithContext(ctx).First(&tracking, "sample_id = ?", sampleID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tracking, nil
}

func (r *repo) ListStages(ctx context.Context, db *gorm.DB, trackingID snowflake.ID) ([]domain.ProductionStageUpdate, error) {
	var stages []domain.ProductionStageUpdate
	err := db.WithContext(ctx).
		Where("tracking_id = ?", trackingID).
		Order("position ASC").
		Find(&stages).Error
	return stages, err
}

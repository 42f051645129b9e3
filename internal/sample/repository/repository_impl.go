package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/loomworks/loomline/internal/sample/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, sample *domain.Sample) error {
	return db.WithContext(ctx).Create(sample).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Sample, error) {
	var sample domain.Sample
	err := db.WithContext(ctx).First(&sample, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sample, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Sample, error) {
	stmt := db.WithContext(ctx)
	if db.Dialector.Name() != "sqlite" {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var sample domain.Sample
	err := stmt.First(&sample, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sample, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, sample *domain.Sample) error {
	return db.WithContext(ctx).Save(sample).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, status domain.SampleStatus, customerID snowflake.ID, limit int) ([]domain.Sample, error) {
	stmt := db.WithContext(ctx).Model(&domain.Sample{})
	if status != "" {
		stmt = stmt.Where("status = ?", status)
	}
	if customerID != 0 {
		stmt = stmt.Where("customer_id = ?", customerID)
	}
	if limit <= 0 {
		limit = 50
	}
	var samples []domain.Sample
	err := stmt.Order("created_at DESC").Limit(limit).Find(&samples).Error
	return samples, err
}

func (r *repo) AppendHistory(ctx context.Context, db *gorm.DB, entry *domain.SampleHistory) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) ListHistory(ctx context.Context, db *gorm.DB, sampleID snowflake.ID) ([]domain.SampleHistory, error) {
	var entries []domain.SampleHistory
	err := db.WithContext(ctx).
		Where("sample_id = ?", sampleID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	return entries, err
}

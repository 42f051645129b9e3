package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/loomworks/loomline/internal/order/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Create(order).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// FindByIDForUpdate takes the row lock that serializes concurrent transitions
// against the same order. SQLite has no row locks; its single-writer model
// covers the same guarantee in tests.
func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	stmt := db.WithContext(ctx)
	if db.Dialector.Name() != "sqlite" {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var order domain.Order
	err := stmt.First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Save(order).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, status domain.OrderStatus, customerID snowflake.ID, limit int) ([]domain.Order, error) {
	stmt := db.WithContext(ctx).Model(&domain.Order{})
	if status != "" {
		stmt = stmt.Where("status = ?", status)
	}
	if customerID != 0 {
		stmt = stmt.Where("customer_id = ?", customerID)
	}
	if limit <= 0 {
		limit = 50
	}
	var orders []domain.Order
	err := stmt.Order("created_at DESC").Limit(limit).Find(&orders).Error
	return orders, err
}

func (r *repo) AppendHistory(ctx context.Context, db *gorm.DB, entry *domain.OrderHistory) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) ListHistory(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.OrderHistory, error) {
	var entries []domain.OrderHistory
	err := db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	return entries, err
}

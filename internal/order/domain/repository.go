package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	Update(ctx context.Context, db *gorm.DB, order *Order) error
	List(ctx context.Context, db *gorm.DB, status OrderStatus, customerID snowflake.ID, limit int) ([]Order, error)
	AppendHistory(ctx context.Context, db *gorm.DB, entry *OrderHistory) error
	ListHistory(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]OrderHistory, error)
}

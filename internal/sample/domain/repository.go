package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, sample *Sample) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Sample, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Sample, error)
	Update(ctx context.Context, db *gorm.DB, sample *Sample) error
	List(ctx context.Context, db *gorm.DB, status SampleStatus, customerID snowflake.ID, limit int) ([]Sample, error)
	AppendHistory(ctx context.Context, db *gorm.DB, entry *SampleHistory) error
	ListHistory(ctx context.Context, db *gorm.DB, sampleID snowflake.ID) ([]SampleHistory, error)
}

package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/railzwaylabs/bullion/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID string, cursor *pagination.Cursor, limit int) ([]*Order, error)
	// UpdatePayment writes paid amount, status and payment refs only if the
	// row is still at version. It bumps the version on success.
	UpdatePayment(ctx context.Context, db *gorm.DB, order *Order, version int64, now time.Time) (bool, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, version int64, status Status, now time.Time) (bool, error)
}

package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	FindByIdempotencyKey(ctx context.Context, db *gorm.DB, userID, key string) (*Payment, error)
	SumPendingByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (float64, error)
	ListPending(ctx context.Context, db *gorm.DB, createdBefore time.Time, limit int) ([]*Payment, error)
	// Settle moves a pending payment to status; false means it was no
	// longer pending.
	Settle(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, metadata map[string]any, now time.Time) (bool, error)
	// AttachTransaction records the provider's transaction on a reserved
	// payment.
	AttachTransaction(ctx context.Context, db *gorm.DB, id snowflake.ID, transactionID string, metadata map[string]any, now time.Time) error
	// Release removes a reservation the provider never charged.
	Release(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
}

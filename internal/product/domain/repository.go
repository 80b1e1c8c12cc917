package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/railzwaylabs/bullion/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, product *Product) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Product, error)
	FindByItemID(ctx context.Context, db *gorm.DB, itemID string) (*Product, error)
	List(ctx context.Context, db *gorm.DB, cursor *pagination.Cursor, limit int) ([]*Product, error)
	SetPrice(ctx context.Context, db *gorm.DB, productID, priceID snowflake.ID) error
	// DecrementStock subtracts qty only when enough stock remains and
	// reports whether the row was updated.
	DecrementStock(ctx context.Context, db *gorm.DB, productID snowflake.ID, qty int64) (bool, error)
	IncrementStock(ctx context.Context, db *gorm.DB, productID snowflake.ID, qty int64) error
}

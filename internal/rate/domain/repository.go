package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	EnsureDay(ctx context.Context, db *gorm.DB, date string, now time.Time) error
	LockDay(ctx context.Context, db *gorm.DB, date string) (*RateDay, error)
	FindDay(ctx context.Context, db *gorm.DB, date string) (*RateDay, error)
	FindLatestDayOnOrBefore(ctx context.Context, db *gorm.DB, date string) (*RateDay, error)
	FindLatestDay(ctx context.Context, db *gorm.DB) (*RateDay, error)
	MaxSeq(ctx context.Context, db *gorm.DB, date, material string) (int, error)
	InsertSnapshots(ctx context.Context, db *gorm.DB, snaps []RateSnapshot) error
	ListSnapshots(ctx context.Context, db *gorm.DB, date string) ([]RateSnapshot, error)
}

// Cache holds resolved "latest" lookups keyed by the requested date. Get
// reports the cache generation it read; Set stores under that generation,
// so a day loaded before an Invalidate is never served after it. A
// negative generation means the cache could not be read and Set skips.
type Cache interface {
	Get(ctx context.Context, date string) (day *Day, gen int64, ok bool)
	Set(ctx context.Context, date string, gen int64, day *Day)
	Invalidate(ctx context.Context) error
}

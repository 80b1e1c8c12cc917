package repository

import (
	"context"
	"errors"
	"time"

	"github.com/railzwaylabs/bullion/internal/rate/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) EnsureDay(ctx context.Context, db *gorm.DB, date string, now time.Time) error {
	day := domain.RateDay{Date: date, CreatedAt: now, UpdatedAt: now}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&day).Error
}

func (r *repo) LockDay(ctx context.Context, db *gorm.DB, date string) (*domain.RateDay, error) {
	var day domain.RateDay
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("date = ?", date).
		First(&day).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &day, nil
}

func (r *repo) FindDay(ctx context.Context, db *gorm.DB, date string) (*domain.RateDay, error) {
	return r.first(db.WithContext(ctx).Where("date = ?", date))
}

func (r *repo) FindLatestDayOnOrBefore(ctx context.Context, db *gorm.DB, date string) (*domain.RateDay, error) {
	return r.first(db.WithContext(ctx).Where("date <= ?", date).Order("date desc"))
}

func (r *repo) FindLatestDay(ctx context.Context, db *gorm.DB) (*domain.RateDay, error) {
	return r.first(db.WithContext(ctx).Order("date desc"))
}

func (r *repo) first(stmt *gorm.DB) (*domain.RateDay, error) {
	var day domain.RateDay
	err := stmt.Limit(1).Take(&day).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &day, nil
}

func (r *repo) MaxSeq(ctx context.Context, db *gorm.DB, date, material string) (int, error) {
	var seq int
	err := db.WithContext(ctx).
		Model(&domain.RateSnapshot{}).
		Where("date = ? AND material = ?", date, material).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&seq).Error
	return seq, err
}

func (r *repo) InsertSnapshots(ctx context.Context, db *gorm.DB, snaps []domain.RateSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&snaps).Error
}

func (r *repo) ListSnapshots(ctx context.Context, db *gorm.DB, date string) ([]domain.RateSnapshot, error) {
	var snaps []domain.RateSnapshot
	err := db.WithContext(ctx).
		Where("date = ?", date).
		Order("material asc, seq asc").
		Find(&snaps).Error
	if err != nil {
		return nil, err
	}
	return snaps, nil
}

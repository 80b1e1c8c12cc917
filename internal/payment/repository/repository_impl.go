package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/railzwaylabs/bullion/internal/payment/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Create(payment).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	return r.first(db.WithContext(ctx).Where("id = ?", id))
}

func (r *repo) FindByIdempotencyKey(ctx context.Context, db *gorm.DB, userID, key string) (*domain.Payment, error) {
	return r.first(db.WithContext(ctx).Where("user_id = ? AND idempotency_key = ?", userID, key))
}

func (r *repo) first(stmt *gorm.DB) (*domain.Payment, error) {
	var p domain.Payment
	if err := stmt.Limit(1).Take(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *repo) SumPendingByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (float64, error) {
	var sum float64
	err := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("order_id = ? AND status = ?", orderID, domain.StatusPending).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}

func (r *repo) ListPending(ctx context.Context, db *gorm.DB, createdBefore time.Time, limit int) ([]*domain.Payment, error) {
	var items []*domain.Payment
	err := db.WithContext(ctx).
		Where("status = ? AND created_at <= ?", domain.StatusPending, createdBefore).
		Order("created_at asc, id asc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Settle(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status, metadata map[string]any, now time.Time) (bool, error) {
	updates := map[string]any{
		"status":     status,
		"settled_at": now,
		"updated_at": now,
	}
	if metadata != nil {
		updates["provider_metadata"] = datatypes.JSONMap(metadata)
	}
	res := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) AttachTransaction(ctx context.Context, db *gorm.DB, id snowflake.ID, transactionID string, metadata map[string]any, now time.Time) error {
	updates := map[string]any{
		"transaction_id": transactionID,
		"updated_at":     now,
	}
	if metadata != nil {
		updates["provider_metadata"] = datatypes.JSONMap(metadata)
	}
	return db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repo) Release(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).
		Where("id = ? AND status = ? AND transaction_id = ?", id, domain.StatusPending, "").
		Delete(&domain.Payment{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

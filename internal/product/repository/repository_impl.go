package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/railzwaylabs/bullion/internal/product/domain"
	"github.com/railzwaylabs/bullion/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	return db.WithContext(ctx).Create(product).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Product, error) {
	return r.first(db.WithContext(ctx).Where("id = ?", id))
}

func (r *repo) FindByItemID(ctx context.Context, db *gorm.DB, itemID string) (*domain.Product, error) {
	return r.first(db.WithContext(ctx).Where("item_id = ?", itemID))
}

func (r *repo) first(stmt *gorm.DB) (*domain.Product, error) {
	var p domain.Product
	if err := stmt.Limit(1).Take(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, cursor *pagination.Cursor, limit int) ([]*domain.Product, error) {
	stmt := db.WithContext(ctx).Model(&domain.Product{})
	if cursor != nil {
		at, err := cursor.Time()
		if err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)", at, at, id)
	}

	var items []*domain.Product
	if err := stmt.Order("created_at desc, id desc").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) SetPrice(ctx context.Context, db *gorm.DB, productID, priceID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE products SET price_id = ?, updated_at = ? WHERE id = ?`,
		priceID,
		time.Now().UTC(),
		productID,
	).Error
}

func (r *repo) DecrementStock(ctx context.Context, db *gorm.DB, productID snowflake.ID, qty int64) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE products SET stock = stock - ?, updated_at = ? WHERE id = ? AND stock >= ?`,
		qty,
		time.Now().UTC(),
		productID,
		qty,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) IncrementStock(ctx context.Context, db *gorm.DB, productID snowflake.ID, qty int64) error {
	return db.WithContext(ctx).Exec(
		`UPDATE products SET stock = stock + ?, updated_at = ? WHERE id = ?`,
		qty,
		time.Now().UTC(),
		productID,
	).Error
}

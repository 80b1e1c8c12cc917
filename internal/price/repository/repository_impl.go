package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	pricedomain "github.com/railzwaylabs/bullion/internal/price/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() pricedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *pricedomain.Price) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO prices (id, product_id, kind, base_value, formula, currency, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.ProductID,
		p.Kind,
		p.BaseValue,
		p.Formula,
		p.Currency,
		p.CreatedAt,
		p.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*pricedomain.Price, error) {
	var p pricedomain.Price
	err := db.WithContext(ctx).Raw(
		`SELECT id, product_id, kind, base_value, formula, currency, created_at, updated_at
		 FROM prices WHERE id = ?`,
		id,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (map[snowflake.ID]*pricedomain.Price, error) {
	out := make(map[snowflake.ID]*pricedomain.Price, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var items []pricedomain.Price
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	for i := range items {
		out[items[i].ID] = &items[i]
	}
	return out, nil
}

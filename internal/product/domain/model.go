package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Product keeps pricing attributes in typed nullable columns; anything else
// the catalog wants to carry goes into Extra.
type Product struct {
	ID          snowflake.ID                `json:"id" gorm:"primaryKey"`
	ItemID      string                      `json:"item_id" gorm:"type:varchar(128);not null;uniqueIndex"`
	Name        string                      `json:"name" gorm:"type:text;not null"`
	Description *string                     `json:"description,omitempty" gorm:"type:text"`
	Images      datatypes.JSONSlice[string] `json:"images"`
	Stock       int64                       `json:"stock" gorm:"not null;default:0"`
	Material    *string                     `json:"material,omitempty" gorm:"type:varchar(32)"`
	Purity      *string                     `json:"purity,omitempty" gorm:"type:varchar(32)"`
	Weight      *float64                    `json:"weight,omitempty"`
	Extra       datatypes.JSONMap           `json:"extra,omitempty"`
	PriceID     *snowflake.ID               `json:"price_id,omitempty" gorm:"index"`
	CreatedAt   time.Time                   `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time                   `json:"updated_at" gorm:"not null"`
}

func (Product) TableName() string { return "products" }

type Attributes struct {
	Material *string        `json:"material,omitempty"`
	Purity   *string        `json:"purity,omitempty"`
	Weight   *float64       `json:"weight,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

func (p *Product) Attributes() Attributes {
	return Attributes{
		Material: p.Material,
		Purity:   p.Purity,
		Weight:   p.Weight,
		Extra:    p.Extra,
	}
}

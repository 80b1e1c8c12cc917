package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Kind string

const (
	KindFixed   Kind = "fixed"
	KindDynamic Kind = "dynamic"
)

func ParseKind(v string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(v))) {
	case KindFixed:
		return KindFixed, true
	case KindDynamic:
		return KindDynamic, true
	}
	return "", false
}

// Price is attached to exactly one product. Formula is required for
// dynamic prices and ignored for fixed ones.
type Price struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	ProductID snowflake.ID `json:"product_id" gorm:"not null;index"`
	Kind      Kind         `json:"kind" gorm:"type:varchar(16);not null"`
	BaseValue float64      `json:"base_value" gorm:"not null"`
	Formula   *string      `json:"formula,omitempty" gorm:"type:text"`
	Currency  string       `json:"currency" gorm:"type:varchar(3);not null"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null"`
}

func (Price) TableName() string { return "prices" }

func (p *Price) FormulaText() string {
	if p == nil || p.Formula == nil {
		return ""
	}
	return strings.TrimSpace(*p.Formula)
}

var (
	ErrInvalidKind      = errors.New("invalid_price_kind")
	ErrInvalidBaseValue = errors.New("invalid_base_value")
	ErrMissingFormula   = errors.New("missing_formula")
	ErrInvalidFormula   = errors.New("invalid_formula")
	ErrInvalidCurrency  = errors.New("invalid_currency")
	ErrNotFound         = errors.New("price_not_found")
)

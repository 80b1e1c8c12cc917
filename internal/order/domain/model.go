package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	pricingdomain "github.com/railzwaylabs/bullion/internal/pricing/domain"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Tolerance is the slack, in currency units, applied whenever monetary
// totals are compared.
const Tolerance = 0.01

// Amounts are compared as decimals rounded to this many places so float
// noise never decides a tolerance check.
const comparePlaces = 6

var tolerance = decimal.NewFromFloat(Tolerance)

func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(comparePlaces)
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func ParseStatus(v string) (Status, bool) {
	switch s := Status(strings.ToLower(strings.TrimSpace(v))); s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return s, true
	}
	return "", false
}

// Order items and TotalAmount never change after insert. PaidAmount,
// Status and PaymentRefs change only through payment application, guarded
// by Version.
type Order struct {
	ID          snowflake.ID                `json:"id" gorm:"primaryKey"`
	UserID      string                      `json:"user_id" gorm:"type:varchar(128);not null;index:idx_orders_user_created,priority:1"`
	Items       []OrderItem                 `json:"items" gorm:"foreignKey:OrderID"`
	TotalAmount float64                     `json:"total_amount" gorm:"not null"`
	PaidAmount  float64                     `json:"paid_amount" gorm:"not null;default:0"`
	Currency    string                      `json:"currency" gorm:"type:varchar(3);not null"`
	Status      Status                      `json:"status" gorm:"type:varchar(16);not null"`
	PaymentRefs datatypes.JSONSlice[string] `json:"payment_refs"`
	Version     int64                       `json:"-" gorm:"not null;default:1"`
	CreatedAt   time.Time                   `json:"created_at" gorm:"not null;index:idx_orders_user_created,priority:2"`
	UpdatedAt   time.Time                   `json:"updated_at" gorm:"not null"`
}

func (Order) TableName() string { return "orders" }

// CanAccept reports whether amount fits on top of committed (paid plus
// reserved). Up to Tolerance above the total is accepted.
func (o *Order) CanAccept(committed, amount float64) bool {
	over := money(committed).Add(money(amount)).Sub(money(o.TotalAmount))
	return over.LessThanOrEqual(tolerance)
}

// PaidWith returns PaidAmount plus amount.
func (o *Order) PaidWith(amount float64) float64 {
	return money(o.PaidAmount).Add(money(amount)).InexactFloat64()
}

func (o *Order) FullyPaid() bool {
	return money(o.PaidAmount).GreaterThanOrEqual(money(o.TotalAmount).Sub(tolerance))
}

func (o *Order) AcceptsPayments() bool {
	return o.Status == StatusPending || o.Status == StatusConfirmed
}

type OrderItem struct {
	ID           snowflake.ID                                `json:"id" gorm:"primaryKey"`
	OrderID      snowflake.ID                                `json:"order_id" gorm:"not null;index"`
	ProductID    snowflake.ID                                `json:"product_id" gorm:"not null;index"`
	ProductName  string                                      `json:"product_name" gorm:"type:text;not null"`
	Quantity     int64                                       `json:"quantity" gorm:"not null"`
	PriceAtOrder float64                                     `json:"price_at_order" gorm:"not null"`
	Currency     string                                      `json:"currency" gorm:"type:varchar(3);not null"`
	Pricing      datatypes.JSONType[pricingdomain.Breakdown] `json:"pricing"`
	CreatedAt    time.Time                                   `json:"created_at" gorm:"not null"`
}

func (OrderItem) TableName() string { return "order_items" }

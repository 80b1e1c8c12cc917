package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Method string

const (
	MethodCreditCard Method = "credit_card"
	MethodDebitCard  Method = "debit_card"
	MethodUPI        Method = "upi"
	MethodNetBanking Method = "net_banking"
	MethodCash       Method = "cash"
)

var Methods = []Method{MethodCreditCard, MethodDebitCard, MethodUPI, MethodNetBanking, MethodCash}

func ParseMethod(v string) (Method, bool) {
	m := Method(strings.ToLower(strings.TrimSpace(v)))
	for _, known := range Methods {
		if m == known {
			return m, true
		}
	}
	return "", false
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Payment is written once per attempt. A pending payment may later settle
// to completed or failed; settled payments never change again.
type Payment struct {
	ID               snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrderID          snowflake.ID      `json:"order_id" gorm:"not null;index"`
	UserID           string            `json:"user_id" gorm:"type:varchar(128);not null;index;uniqueIndex:ux_payments_idempotency,priority:1"`
	Amount           float64           `json:"amount" gorm:"not null"`
	Currency         string            `json:"currency" gorm:"type:varchar(3);not null"`
	Method           Method            `json:"method" gorm:"type:varchar(32);not null"`
	Status           Status            `json:"status" gorm:"type:varchar(16);not null;index"`
	Provider         string            `json:"provider" gorm:"type:varchar(32);not null"`
	TransactionID    string            `json:"transaction_id" gorm:"type:varchar(128);not null;index"`
	ProviderMetadata datatypes.JSONMap `json:"provider_metadata,omitempty"`
	IdempotencyKey   *string           `json:"-" gorm:"type:varchar(128);uniqueIndex:ux_payments_idempotency,priority:2"`
	SettledAt        *time.Time        `json:"settled_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time         `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/railzwaylabs/bullion/pkg/db/pagination"
	"gorm.io/gorm"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Order, error)
	Get(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, req ListRequest) (ListResponse, error)
	UpdateStatus(ctx context.Context, id string, status string) (*Order, error)
	// ApplyPayment must run inside the caller's transaction so that the
	// payment record and the order change commit together.
	ApplyPayment(ctx context.Context, tx *gorm.DB, orderID, paymentID snowflake.ID, amount float64) (*Order, error)
}

type CreateRequest struct {
	UserID string
	Items  []ItemRequest
}

type ItemRequest struct {
	ProductID string
	Quantity  int64
}

type ListRequest struct {
	UserID    string
	PageToken string
	PageSize  int
}

type ListResponse struct {
	PageInfo pagination.PageInfo `json:"page_info"`
	Orders   []*Order            `json:"orders"`
}

var (
	ErrInvalidUserID      = errors.New("invalid_user_id")
	ErrInvalidID          = errors.New("invalid_id")
	ErrEmptyItems         = errors.New("order must have at least one item")
	ErrInvalidQuantity    = errors.New("invalid_quantity")
	ErrInvalidProductID   = errors.New("invalid_product_id")
	ErrProductNotFound    = errors.New("product not found")
	ErrPriceNotFound      = errors.New("price not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidUnitPrice   = errors.New("invalid unit price")
	ErrCurrencyMismatch   = errors.New("currency_mismatch")
	ErrInvalidStatus      = errors.New("invalid_status")
	ErrInvalidTransition  = errors.New("invalid_status_transition")
	ErrNotPayable         = errors.New("order_not_payable")
	ErrPaidAmountExceeded = errors.New("paid_amount_exceeds_total")
	ErrConcurrentUpdate   = errors.New("order_concurrent_update")
	ErrOrderConsistency   = errors.New("order_consistency_violation")
	ErrNotFound           = errors.New("order_not_found")
)

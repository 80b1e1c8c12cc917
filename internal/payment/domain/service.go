package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	Initiate(ctx context.Context, req InitiateRequest) (*Payment, error)
	Get(ctx context.Context, id string) (*Payment, error)
	// Verify asks the provider about a pending payment and settles it.
	Verify(ctx context.Context, id string) (*Payment, error)
	ReconcilePending(ctx context.Context, createdBefore time.Time, limit int) (ReconcileResult, error)
}

type InitiateRequest struct {
	UserID         string
	OrderID        string
	Amount         float64
	Method         string
	IdempotencyKey string
}

type ReconcileResult struct {
	Checked      int `json:"checked"`
	Completed    int `json:"completed"`
	Failed       int `json:"failed"`
	StillPending int `json:"still_pending"`
	Errors       int `json:"errors"`
}

var (
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidOrderID    = errors.New("invalid_order_id")
	ErrInvalidUserID     = errors.New("invalid_user_id")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInvalidMethod     = errors.New("invalid_payment_method")
	ErrExceedsRemaining  = errors.New("payment amount exceeds remaining balance")
	ErrOrderNotFound     = errors.New("order_not_found")
	ErrOrderNotPayable   = errors.New("order_not_payable")
	ErrNotFound          = errors.New("payment_not_found")
	ErrIdempotencyReused = errors.New("idempotency_key_reused")
	ErrUnknownProvider   = errors.New("unknown_payment_provider")
	ErrInvalidConfig     = errors.New("invalid_provider_config")
	ErrProviderResponse  = errors.New("invalid_provider_response")
	ErrProviderFailed    = errors.New("payment_provider_failed")
)

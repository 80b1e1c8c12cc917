package domain

import (
	"context"
	"errors"
)

var (
	ErrQuotaDisabled        = errors.New("quota_disabled")
	ErrOrderQuotaExceeded   = errors.New("order_quota_exceeded")
	ErrPaymentQuotaExceeded = errors.New("payment_quota_exceeded")
)

type Service interface {
	// Check if action is allowed
	CanPlaceOrder(ctx context.Context, userID string) error
	CanInitiatePayment(ctx context.Context, userID string) error

	// Get current usage
	GetUserUsage(ctx context.Context, userID string) (map[string]int64, error)
}

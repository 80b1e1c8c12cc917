package domain

import (
	"context"

	"github.com/railzwaylabs/bullion/internal/config"
)

// Provider is the payment gateway contract. Initiate starts a charge and
// may settle it synchronously; Verify reports the state of an earlier charge.
type Provider interface {
	Name() string
	Initiate(ctx context.Context, charge Charge) (*ChargeResult, error)
	Verify(ctx context.Context, transactionID string) (*VerifyResult, error)
}

type Charge struct {
	Reference      string
	Amount         float64
	Currency       string
	Method         Method
	Metadata       map[string]string
	IdempotencyKey string
}

type ChargeResult struct {
	TransactionID string
	Status        Status
	Raw           map[string]any
}

type VerifyResult struct {
	Status Status
	Raw    map[string]any
}

type ProviderFactory interface {
	Provider() string
	NewProvider(cfg config.PaymentConfig) (Provider, error)
}

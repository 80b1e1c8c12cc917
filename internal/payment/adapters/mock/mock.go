// Package mock is an in-process payment provider for development and tests.
package mock

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/railzwaylabs/bullion/internal/config"
	paymentdomain "github.com/railzwaylabs/bullion/internal/payment/domain"
)

const (
	SettleImmediately = "immediate"
	SettleLater       = "pending"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "mock"
}

func (f *Factory) NewProvider(cfg config.PaymentConfig) (paymentdomain.Provider, error) {
	mode := cfg.MockSettlement
	if mode == "" {
		mode = SettleImmediately
	}
	if mode != SettleImmediately && mode != SettleLater {
		return nil, paymentdomain.ErrInvalidConfig
	}
	return New(mode), nil
}

// Provider approves every charge. In SettleLater mode charges start pending
// and Verify reports them completed.
type Provider struct {
	mode string

	mu      sync.Mutex
	charges map[string]paymentdomain.Charge
	// set by FailNext, consumed by the next Initiate
	failNext error
}

func New(mode string) *Provider {
	return &Provider{mode: mode, charges: make(map[string]paymentdomain.Charge)}
}

func (p *Provider) Name() string { return "mock" }

func (p *Provider) FailNext(err error) {
	p.mu.Lock()
	p.failNext = err
	p.mu.Unlock()
}

func (p *Provider) Initiate(_ context.Context, charge paymentdomain.Charge) (*paymentdomain.ChargeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.failNext; err != nil {
		p.failNext = nil
		return nil, err
	}

	txnID := "TXN-" + ulid.Make().String()
	p.charges[txnID] = charge

	status := paymentdomain.StatusCompleted
	if p.mode == SettleLater {
		status = paymentdomain.StatusPending
	}
	return &paymentdomain.ChargeResult{
		TransactionID: txnID,
		Status:        status,
		Raw:           map[string]any{"mock": true, "success": true},
	}, nil
}

func (p *Provider) Verify(_ context.Context, transactionID string) (*paymentdomain.VerifyResult, error) {
	p.mu.Lock()
	_, known := p.charges[transactionID]
	p.mu.Unlock()

	if !known {
		return &paymentdomain.VerifyResult{
			Status: paymentdomain.StatusFailed,
			Raw:    map[string]any{"mock": true, "reason": "unknown transaction"},
		}, nil
	}
	return &paymentdomain.VerifyResult{
		Status: paymentdomain.StatusCompleted,
		Raw:    map[string]any{"mock": true, "verified": true},
	}, nil
}

package domain

import (
	"context"

	pricedomain "github.com/railzwaylabs/bullion/internal/price/domain"
)

type Service interface {
	// Resolve only fails when the rate ledger cannot be read. Formula and
	// configuration problems degrade to a zero price with Breakdown.Error set.
	Resolve(ctx context.Context, in Input, price *pricedomain.Price) (*Result, error)
}

// Input is the subset of product attributes pricing depends on.
type Input struct {
	Material *string
	Purity   *string
	Weight   *float64
}

type Result struct {
	FinalPrice float64   `json:"final_price"`
	Currency   string    `json:"currency"`
	Breakdown  Breakdown `json:"breakdown"`
}

// Breakdown records how FinalPrice was derived. Order items persist it
// verbatim since the inputs may change later.
type Breakdown struct {
	Kind      string             `json:"kind"`
	Base      *float64           `json:"base,omitempty"`
	RateUsed  *float64           `json:"rate_used,omitempty"`
	Variables map[string]float64 `json:"variables,omitempty"`
	Formula   string             `json:"formula,omitempty"`
	Error     string             `json:"error,omitempty"`
}

func (r *Result) Degraded() bool {
	return r != nil && r.Breakdown.Error != ""
}

const (
	ErrMsgNoFormula   = "no formula for dynamic price"
	ErrMsgUnknownKind = "unknown price kind"
)

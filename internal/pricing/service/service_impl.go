package service

import (
	"context"
	"strings"

	"github.com/railzwaylabs/bullion/internal/observability"
	pricedomain "github.com/railzwaylabs/bullion/internal/price/domain"
	"github.com/railzwaylabs/bullion/internal/pricing/domain"
	"github.com/railzwaylabs/bullion/internal/pricing/formula"
	ratedomain "github.com/railzwaylabs/bullion/internal/rate/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Rates   ratedomain.Service
	Metrics *observability.Metrics `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	rates   ratedomain.Service
	metrics *observability.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		log:     p.Log.Named("pricing.service"),
		rates:   p.Rates,
		metrics: p.Metrics,
	}
}

func (s *Service) Resolve(ctx context.Context, in domain.Input, price *pricedomain.Price) (*domain.Result, error) {
	if price == nil {
		return nil, pricedomain.ErrNotFound
	}

	switch price.Kind {
	case pricedomain.KindFixed:
		base := price.BaseValue
		return &domain.Result{
			FinalPrice: base,
			Currency:   price.Currency,
			Breakdown:  domain.Breakdown{Kind: string(price.Kind), Base: &base},
		}, nil
	case pricedomain.KindDynamic:
		return s.resolveDynamic(ctx, in, price)
	default:
		s.degraded(price, "unknown_kind")
		return &domain.Result{
			Currency:  price.Currency,
			Breakdown: domain.Breakdown{Kind: string(price.Kind), Error: domain.ErrMsgUnknownKind},
		}, nil
	}
}

func (s *Service) resolveDynamic(ctx context.Context, in domain.Input, price *pricedomain.Price) (*domain.Result, error) {
	expr := price.FormulaText()
	if expr == "" {
		s.degraded(price, "missing_formula")
		return &domain.Result{
			Currency:  price.Currency,
			Breakdown: domain.Breakdown{Kind: string(price.Kind), Error: domain.ErrMsgNoFormula},
		}, nil
	}

	var rate float64
	material, purity := deref(in.Material), deref(in.Purity)
	if material == "" || purity == "" {
		s.log.Warn("dynamic price without material or purity, using zero rate",
			zap.String("price_id", price.ID.String()),
			zap.String("material", material),
			zap.String("purity", purity),
		)
		s.metrics.PricingDegraded("missing_attributes")
	} else {
		r, err := s.rates.CurrentRate(ctx, material, purity)
		if err != nil {
			return nil, err
		}
		if r == 0 {
			s.log.Warn("no current rate, using zero",
				zap.String("price_id", price.ID.String()),
				zap.String("material", material),
				zap.String("purity", purity),
			)
			s.metrics.PricingDegraded("rate_unavailable")
		}
		rate = r
	}

	var weight float64
	if in.Weight != nil {
		weight = *in.Weight
	}

	vars := formula.Bindings{
		"weight":        weight,
		"rate":          rate,
		"baseValue":     price.BaseValue,
		"makingCharges": price.BaseValue,
	}
	breakdown := domain.Breakdown{
		Kind:      string(price.Kind),
		RateUsed:  &rate,
		Variables: vars,
		Formula:   expr,
	}

	value, err := formula.Evaluate(expr, vars)
	if err != nil {
		s.degraded(price, "evaluation_failed")
		s.log.Warn("formula evaluation failed",
			zap.String("price_id", price.ID.String()),
			zap.String("formula", expr),
			zap.Error(err),
		)
		breakdown.Error = err.Error()
		return &domain.Result{Currency: price.Currency, Breakdown: breakdown}, nil
	}

	return &domain.Result{
		FinalPrice: value,
		Currency:   price.Currency,
		Breakdown:  breakdown,
	}, nil
}

func (s *Service) degraded(price *pricedomain.Price, reason string) {
	s.metrics.PricingDegraded(reason)
	s.log.Warn("price resolved to zero",
		zap.String("price_id", price.ID.String()),
		zap.String("reason", reason),
	)
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}

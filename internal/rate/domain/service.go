package domain

import (
	"context"
	"errors"
)

type Service interface {
	RecordRates(ctx context.Context, req RecordRequest) (*Day, error)
	CurrentRate(ctx context.Context, material, purity string) (float64, error)
	LatestRates(ctx context.Context, date string) (*Day, error)
	RatesForDate(ctx context.Context, date string) (*Day, error)
}

// RecordRequest carries material -> purity -> rate. Date defaults to today.
type RecordRequest struct {
	Date  string
	Rates map[string]map[string]float64
}

var (
	ErrInvalidDate     = errors.New("invalid_date")
	ErrInvalidMaterial = errors.New("invalid_material")
	ErrInvalidPurity   = errors.New("invalid_purity")
	ErrInvalidRate     = errors.New("invalid_rate")
	ErrEmptyRates      = errors.New("empty_rates")
	ErrNotFound        = errors.New("rates_not_found")
)

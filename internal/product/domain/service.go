package domain

import (
	"context"
	"errors"

	pricedomain "github.com/railzwaylabs/bullion/internal/price/domain"
	pricingdomain "github.com/railzwaylabs/bullion/internal/pricing/domain"
	"github.com/railzwaylabs/bullion/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Get(ctx context.Context, id string) (*Response, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

type CreateRequest struct {
	ItemID      string
	Name        string
	Description *string
	Images      []string
	Stock       int64
	Attributes  Attributes
	Price       PriceRequest
}

type PriceRequest struct {
	Kind      string
	BaseValue float64
	Formula   *string
	Currency  string
}

type ListRequest struct {
	PageToken string
	PageSize  int
}

type ListResponse struct {
	PageInfo pagination.PageInfo `json:"page_info"`
	Products []Response          `json:"products"`
}

// Response is a product with its price and the price resolved right now.
type Response struct {
	Product
	Price   *pricedomain.Price    `json:"price,omitempty"`
	Pricing *pricingdomain.Result `json:"pricing,omitempty"`
}

var (
	ErrInvalidID       = errors.New("invalid_id")
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidItemID   = errors.New("invalid_item_id")
	ErrInvalidStock    = errors.New("invalid_stock")
	ErrInvalidMaterial = errors.New("invalid_material")
	ErrInvalidWeight   = errors.New("invalid_weight")
	ErrDuplicateItemID = errors.New("duplicate_item_id")
	ErrNotFound        = errors.New("product_not_found")
)

func ToPricingInput(a Attributes) pricingdomain.Input {
	return pricingdomain.Input{
		Material: a.Material,
		Purity:   a.Purity,
		Weight:   a.Weight,
	}
}

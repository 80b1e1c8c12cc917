package service

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/railzwaylabs/bullion/internal/config"
	pricedomain "github.com/railzwaylabs/bullion/internal/price/domain"
	pricingdomain "github.com/railzwaylabs/bullion/internal/pricing/domain"
	"github.com/railzwaylabs/bullion/internal/pricing/formula"
	"github.com/railzwaylabs/bullion/internal/product/domain"
	"github.com/railzwaylabs/bullion/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Cfg       config.Config
	Repo      domain.Repository
	PriceRepo pricedomain.Repository
	Pricing   pricingdomain.Service
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	repo            domain.Repository
	priceRepo       pricedomain.Repository
	pricing         pricingdomain.Service
	defaultCurrency string
	materials       map[string]struct{}
}

func New(p Params) domain.Service {
	materials := make(map[string]struct{}, len(p.Cfg.Commerce.Materials))
	for _, m := range p.Cfg.Commerce.Materials {
		materials[strings.ToLower(strings.TrimSpace(m))] = struct{}{}
	}
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("product.service"),
		genID:           p.GenID,
		repo:            p.Repo,
		priceRepo:       p.PriceRepo,
		pricing:         p.Pricing,
		defaultCurrency: p.Cfg.Commerce.DefaultCurrency,
		materials:       materials,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if req.Stock < 0 {
		return nil, domain.ErrInvalidStock
	}

	attrs, err := s.normalizeAttributes(req.Attributes)
	if err != nil {
		return nil, err
	}

	price, err := s.buildPrice(req.Price)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p := &domain.Product{
		ID:        s.genID.Generate(),
		Name:      name,
		Stock:     req.Stock,
		Material:  attrs.Material,
		Purity:    attrs.Purity,
		Weight:    attrs.Weight,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if desc := strings.TrimSpace(ptrToString(req.Description)); desc != "" {
		p.Description = &desc
	}
	if len(req.Images) > 0 {
		p.Images = datatypes.NewJSONSlice(req.Images)
	}
	if attrs.Extra != nil {
		p.Extra = datatypes.JSONMap(attrs.Extra)
	}

	price.ID = s.genID.Generate()
	price.ProductID = p.ID
	price.CreatedAt = now
	price.UpdatedAt = now

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		itemID, err := s.resolveItemID(ctx, tx, req.ItemID, name, p.ID)
		if err != nil {
			return err
		}
		p.ItemID = itemID

		if err := s.repo.Insert(ctx, tx, p); err != nil {
			return err
		}
		if err := s.priceRepo.Insert(ctx, tx, price); err != nil {
			return err
		}
		if err := s.repo.SetPrice(ctx, tx, p.ID, price.ID); err != nil {
			return err
		}
		p.PriceID = &price.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("product created",
		zap.String("product_id", p.ID.String()),
		zap.String("item_id", p.ItemID),
		zap.String("price_kind", string(price.Kind)),
	)
	return s.toResponse(ctx, p, price)
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Response, error) {
	productID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, productID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}

	var price *pricedomain.Price
	if item.PriceID != nil {
		price, err = s.priceRepo.FindByID(ctx, s.db, *item.PriceID)
		if err != nil {
			return nil, err
		}
	}
	return s.toResponse(ctx, item, price)
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}.Normalize()
	cursor, err := pagination.DecodeCursor(page.PageToken)
	if err != nil {
		return domain.ListResponse{}, err
	}

	items, err := s.repo.List(ctx, s.db, cursor, page.PageSize+1)
	if err != nil {
		return domain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, page.PageSize, func(item *domain.Product) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > page.PageSize {
		items = items[:page.PageSize]
	}

	priceIDs := make([]snowflake.ID, 0, len(items))
	for _, item := range items {
		if item.PriceID != nil {
			priceIDs = append(priceIDs, *item.PriceID)
		}
	}
	prices, err := s.priceRepo.FindByIDs(ctx, s.db, priceIDs)
	if err != nil {
		return domain.ListResponse{}, err
	}

	resp := make([]domain.Response, 0, len(items))
	for _, item := range items {
		var price *pricedomain.Price
		if item.PriceID != nil {
			price = prices[*item.PriceID]
		}
		r, err := s.toResponse(ctx, item, price)
		if err != nil {
			return domain.ListResponse{}, err
		}
		resp = append(resp, *r)
	}

	return domain.ListResponse{PageInfo: *pageInfo, Products: resp}, nil
}

func (s *Service) toResponse(ctx context.Context, p *domain.Product, price *pricedomain.Price) (*domain.Response, error) {
	resp := &domain.Response{Product: *p, Price: price}
	if price == nil {
		return resp, nil
	}
	pricing, err := s.pricing.Resolve(ctx, domain.ToPricingInput(p.Attributes()), price)
	if err != nil {
		return nil, err
	}
	resp.Pricing = pricing
	return resp, nil
}

func (s *Service) resolveItemID(ctx context.Context, tx *gorm.DB, requested, name string, id snowflake.ID) (string, error) {
	if itemID := strings.TrimSpace(requested); itemID != "" {
		existing, err := s.repo.FindByItemID(ctx, tx, itemID)
		if err != nil {
			return "", err
		}
		if existing != nil {
			return "", domain.ErrDuplicateItemID
		}
		return itemID, nil
	}

	base := slug.Make(name)
	if base == "" {
		return id.String(), nil
	}
	existing, err := s.repo.FindByItemID(ctx, tx, base)
	if err != nil {
		return "", err
	}
	if existing == nil {
		return base, nil
	}
	return base + "-" + id.Base36(), nil
}

func (s *Service) normalizeAttributes(in domain.Attributes) (domain.Attributes, error) {
	out := domain.Attributes{Extra: in.Extra}
	if in.Material != nil {
		material := strings.ToLower(strings.TrimSpace(*in.Material))
		if _, ok := s.materials[material]; !ok {
			return out, domain.ErrInvalidMaterial
		}
		out.Material = &material
	}
	if in.Purity != nil {
		if purity := strings.TrimSpace(*in.Purity); purity != "" {
			out.Purity = &purity
		}
	}
	if in.Weight != nil {
		w := *in.Weight
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return out, domain.ErrInvalidWeight
		}
		out.Weight = &w
	}
	return out, nil
}

func (s *Service) buildPrice(req domain.PriceRequest) (*pricedomain.Price, error) {
	kind, ok := pricedomain.ParseKind(req.Kind)
	if !ok {
		return nil, pricedomain.ErrInvalidKind
	}
	if req.BaseValue < 0 || math.IsNaN(req.BaseValue) || math.IsInf(req.BaseValue, 0) {
		return nil, pricedomain.ErrInvalidBaseValue
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.defaultCurrency
	}
	if len(currency) != 3 {
		return nil, pricedomain.ErrInvalidCurrency
	}

	price := &pricedomain.Price{Kind: kind, BaseValue: req.BaseValue, Currency: currency}
	expr := strings.TrimSpace(ptrToString(req.Formula))
	if kind == pricedomain.KindDynamic {
		if expr == "" {
			return nil, pricedomain.ErrMissingFormula
		}
		if err := formula.Validate(expr); err != nil {
			return nil, pricedomain.ErrInvalidFormula
		}
		price.Formula = &expr
	}
	return price, nil
}

func ptrToString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/railzwaylabs/bullion/internal/clock"
	"github.com/railzwaylabs/bullion/internal/observability"
	"github.com/railzwaylabs/bullion/internal/order/domain"
	pricedomain "github.com/railzwaylabs/bullion/internal/price/domain"
	pricingdomain "github.com/railzwaylabs/bullion/internal/pricing/domain"
	productdomain "github.com/railzwaylabs/bullion/internal/product/domain"
	"github.com/railzwaylabs/bullion/pkg/db/pagination"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	ProductRepo productdomain.Repository
	PriceRepo   pricedomain.Repository
	Pricing     pricingdomain.Service
	Metrics     *observability.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	productRepo productdomain.Repository
	priceRepo   pricedomain.Repository
	pricing     pricingdomain.Service
	metrics     *observability.Metrics
	tracer      trace.Tracer
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("order.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		productRepo: p.ProductRepo,
		priceRepo:   p.PriceRepo,
		pricing:     p.Pricing,
		metrics:     p.Metrics,
		tracer:      otel.Tracer("bullion/order"),
	}
}

type line struct {
	product *productdomain.Product
	qty     int64
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Create")
	defer span.End()

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}
	if len(req.Items) == 0 {
		return nil, domain.ErrEmptyItems
	}

	ids := make([]snowflake.ID, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity < 1 {
			return nil, domain.ErrInvalidQuantity
		}
		id, err := snowflake.ParseString(strings.TrimSpace(item.ProductID))
		if err != nil {
			return nil, domain.ErrInvalidProductID
		}
		ids[i] = id
	}

	now := s.clock.Now(ctx)
	order := &domain.Order{
		ID:          s.genID.Generate(),
		UserID:      userID,
		Status:      domain.StatusPending,
		PaymentRefs: datatypes.NewJSONSlice([]string{}),
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	lines := make([]line, 0, len(req.Items))
	for i, item := range req.Items {
		product, err := s.productRepo.FindByID(ctx, s.db, ids[i])
		if err != nil {
			return nil, err
		}
		if product == nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, item.ProductID)
		}
		if product.Stock < item.Quantity {
			s.metrics.StockRejected()
			return nil, fmt.Errorf("%w for product: %s", domain.ErrInsufficientStock, product.Name)
		}

		orderItem, err := s.snapshotItem(ctx, order, product, item.Quantity, now)
		if err != nil {
			return nil, err
		}
		order.Items = append(order.Items, *orderItem)
		lines = append(lines, line{product: product, qty: item.Quantity})
	}

	var total float64
	for _, item := range order.Items {
		total += item.PriceAtOrder * float64(item.Quantity)
	}
	order.TotalAmount = total
	span.SetAttributes(attribute.String("order.id", order.ID.String()), attribute.Float64("order.total", total))

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, l := range lines {
			ok, err := s.productRepo.DecrementStock(ctx, tx, l.product.ID, l.qty)
			if err != nil {
				return err
			}
			if !ok {
				s.metrics.StockRejected()
				return fmt.Errorf("%w for product: %s", domain.ErrInsufficientStock, l.product.Name)
			}
		}
		return s.repo.Insert(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderCreated(total)
	s.log.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("user_id", userID),
		zap.Int("items", len(order.Items)),
		zap.Float64("total_amount", total),
		zap.String("currency", order.Currency),
	)
	return order, nil
}

func (s *Service) snapshotItem(ctx context.Context, order *domain.Order, product *productdomain.Product, qty int64, now time.Time) (*domain.OrderItem, error) {
	if product.PriceID == nil {
		return nil, fmt.Errorf("%w for product: %s", domain.ErrPriceNotFound, product.Name)
	}
	price, err := s.priceRepo.FindByID(ctx, s.db, *product.PriceID)
	if err != nil {
		return nil, err
	}
	if price == nil {
		return nil, fmt.Errorf("%w for product: %s", domain.ErrPriceNotFound, product.Name)
	}

	res, err := s.pricing.Resolve(ctx, productdomain.ToPricingInput(product.Attributes()), price)
	if err != nil {
		return nil, err
	}
	if res.Degraded() {
		s.log.Warn("order line priced from degraded breakdown",
			zap.String("order_id", order.ID.String()),
			zap.String("product_id", product.ID.String()),
			zap.String("error", res.Breakdown.Error),
		)
	}
	if math.IsNaN(res.FinalPrice) || math.IsInf(res.FinalPrice, 0) || res.FinalPrice < 0 {
		return nil, fmt.Errorf("%w for product: %s", domain.ErrInvalidUnitPrice, product.Name)
	}

	if order.Currency == "" {
		order.Currency = res.Currency
	} else if order.Currency != res.Currency {
		return nil, domain.ErrCurrencyMismatch
	}

	return &domain.OrderItem{
		ID:           s.genID.Generate(),
		OrderID:      order.ID,
		ProductID:    product.ID,
		ProductName:  product.Name,
		Quantity:     qty,
		PriceAtOrder: res.FinalPrice,
		Currency:     res.Currency,
		Pricing:      datatypes.NewJSONType(res.Breakdown),
		CreatedAt:    now,
	}, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Order, error) {
	orderID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.ErrInvalidID
	}
	order, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}
	return order, nil
}

func (s *Service) ListByUser(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return domain.ListResponse{}, domain.ErrInvalidUserID
	}

	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}.Normalize()
	cursor, err := pagination.DecodeCursor(page.PageToken)
	if err != nil {
		return domain.ListResponse{}, err
	}

	items, err := s.repo.ListByUser(ctx, s.db, userID, cursor, page.PageSize+1)
	if err != nil {
		return domain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, page.PageSize, func(o *domain.Order) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        o.ID.String(),
			CreatedAt: o.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > page.PageSize {
		items = items[:page.PageSize]
	}
	return domain.ListResponse{PageInfo: *pageInfo, Orders: items}, nil
}

var allowedTransitions = map[domain.Status][]domain.Status{
	domain.StatusPending:   {domain.StatusCancelled},
	domain.StatusConfirmed: {domain.StatusCompleted, domain.StatusCancelled},
}

func canTransition(from, to domain.Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// UpdateStatus handles fulfilment and cancellation. Cancelling returns the
// reserved stock. Pending to confirmed only ever happens through ApplyPayment.
func (s *Service) UpdateStatus(ctx context.Context, id string, status string) (*domain.Order, error) {
	orderID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.ErrInvalidID
	}
	to, ok := domain.ParseStatus(status)
	if !ok {
		return nil, domain.ErrInvalidStatus
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.repo.FindByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return domain.ErrNotFound
		}
		if !canTransition(order.Status, to) {
			return domain.ErrInvalidTransition
		}

		updated, err := s.repo.UpdateStatus(ctx, tx, order.ID, order.Version, to, s.clock.Now(ctx))
		if err != nil {
			return err
		}
		if !updated {
			return domain.ErrConcurrentUpdate
		}

		if to == domain.StatusCancelled {
			full, err := s.repo.FindByID(ctx, tx, order.ID)
			if err != nil {
				return err
			}
			for _, item := range full.Items {
				if err := s.productRepo.IncrementStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
					return err
				}
			}
		}
		s.log.Info("order status updated",
			zap.String("order_id", order.ID.String()),
			zap.String("from", string(order.Status)),
			zap.String("to", string(to)),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, orderID.String())
}

func (s *Service) ApplyPayment(ctx context.Context, tx *gorm.DB, orderID, paymentID snowflake.ID, amount float64) (*domain.Order, error) {
	order, err := s.repo.FindByIDForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		s.log.Error("payment settled for missing order",
			zap.String("order_id", orderID.String()),
			zap.String("payment_id", paymentID.String()),
		)
		return nil, fmt.Errorf("%w: order %s", domain.ErrOrderConsistency, orderID)
	}
	if !order.AcceptsPayments() {
		return nil, domain.ErrNotPayable
	}

	if !order.CanAccept(order.PaidAmount, amount) {
		return nil, domain.ErrPaidAmountExceeded
	}

	previous := order.Status
	order.PaidAmount = order.PaidWith(amount)
	order.PaymentRefs = append(order.PaymentRefs, paymentID.String())
	if order.Status == domain.StatusPending && order.FullyPaid() {
		order.Status = domain.StatusConfirmed
	}

	now := s.clock.Now(ctx)
	updated, err := s.repo.UpdatePayment(ctx, tx, order, order.Version, now)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, domain.ErrConcurrentUpdate
	}
	order.Version++
	order.UpdatedAt = now

	s.log.Info("payment applied",
		zap.String("order_id", order.ID.String()),
		zap.String("payment_id", paymentID.String()),
		zap.Float64("amount", amount),
		zap.Float64("paid_amount", order.PaidAmount),
		zap.String("status_from", string(previous)),
		zap.String("status", string(order.Status)),
	)
	return order, nil
}

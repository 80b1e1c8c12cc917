package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/railzwaylabs/bullion/internal/clock"
	"github.com/railzwaylabs/bullion/internal/config"
	"github.com/railzwaylabs/bullion/internal/order/domain"
	"github.com/railzwaylabs/bullion/internal/order/repository"
	pricedomain "github.com/railzwaylabs/bullion/internal/price/domain"
	pricerepo "github.com/railzwaylabs/bullion/internal/price/repository"
	pricingservice "github.com/railzwaylabs/bullion/internal/pricing/service"
	productdomain "github.com/railzwaylabs/bullion/internal/product/domain"
	productrepo "github.com/railzwaylabs/bullion/internal/product/repository"
	"github.com/railzwaylabs/bullion/internal/rate/cache"
	ratedomain "github.com/railzwaylabs/bullion/internal/rate/domain"
	raterepo "github.com/railzwaylabs/bullion/internal/rate/repository"
	rateservice "github.com/railzwaylabs/bullion/internal/rate/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	rates ratedomain.Service
	svc   *Service
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&ratedomain.RateDay{}, &ratedomain.RateSnapshot{},
		&productdomain.Product{}, &pricedomain.Price{},
		&domain.Order{}, &domain.OrderItem{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	var cfg config.Config
	cfg.Commerce.Materials = []string{"gold", "silver", "diamond"}
	clk := clock.Fixed{At: time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)}

	rates := rateservice.New(rateservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Cfg: cfg,
		Repo: raterepo.Provide(), Cache: cache.Noop{},
	})
	pricing := pricingservice.New(pricingservice.Params{Log: zap.NewNop(), Rates: rates})

	svc := New(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clk,
		Repo:        repository.Provide(),
		ProductRepo: productrepo.Provide(),
		PriceRepo:   pricerepo.Provide(),
		Pricing:     pricing,
	}).(*Service)

	return &fixture{db: db, node: node, rates: rates, svc: svc}
}

func ptr[T any](v T) *T { return &v }

func (f *fixture) product(t *testing.T, name string, stock int64, attrs productdomain.Attributes, price pricedomain.Price) *productdomain.Product {
	t.Helper()
	now := time.Now().UTC()
	p := &productdomain.Product{
		ID:        f.node.Generate(),
		ItemID:    name,
		Name:      name,
		Stock:     stock,
		Material:  attrs.Material,
		Purity:    attrs.Purity,
		Weight:    attrs.Weight,
		CreatedAt: now,
		UpdatedAt: now,
	}
	price.ID = f.node.Generate()
	price.ProductID = p.ID
	price.CreatedAt = now
	price.UpdatedAt = now
	p.PriceID = &price.ID
	if price.Currency == "" {
		price.Currency = "INR"
	}
	require.NoError(t, f.db.Create(p).Error)
	require.NoError(t, f.db.Create(&price).Error)
	return p
}

func (f *fixture) goldChain(t *testing.T, stock int64) *productdomain.Product {
	return f.product(t, "gold-chain", stock,
		productdomain.Attributes{Material: ptr("gold"), Purity: ptr("22k"), Weight: ptr(5.0)},
		pricedomain.Price{Kind: pricedomain.KindDynamic, BaseValue: 500, Formula: ptr("rate*weight+makingCharges")},
	)
}

func (f *fixture) recordGold(t *testing.T, rate float64) {
	_, err := f.rates.RecordRates(context.Background(), ratedomain.RecordRequest{
		Rates: map[string]map[string]float64{"gold": {"22k": rate}},
	})
	require.NoError(t, err)
}

func TestCreate_SnapshotsDynamicPrice(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.recordGold(t, 6500)
	chain := f.goldChain(t, 3)
	coin := f.product(t, "coin", 10, productdomain.Attributes{}, pricedomain.Price{Kind: pricedomain.KindFixed, BaseValue: 1200})

	order, err := f.svc.Create(ctx, domain.CreateRequest{
		UserID: "user-1",
		Items: []domain.ItemRequest{
			{ProductID: chain.ID.String(), Quantity: 1},
			{ProductID: coin.ID.String(), Quantity: 2},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPending, order.Status)
	assert.Equal(t, 0.0, order.PaidAmount)
	assert.Equal(t, "INR", order.Currency)
	assert.InDelta(t, 33000+2*1200, order.TotalAmount, 1e-9)
	require.Len(t, order.Items, 2)
	assert.Equal(t, 33000.0, order.Items[0].PriceAtOrder)
	assert.Equal(t, "rate*weight+makingCharges", order.Items[0].Pricing.Data().Formula)

	var stored productdomain.Product
	require.NoError(t, f.db.First(&stored, "id = ?", chain.ID).Error)
	assert.EqualValues(t, 2, stored.Stock)

	// a later rate change leaves the order untouched
	f.recordGold(t, 7000)
	got, err := f.svc.Get(ctx, order.ID.String())
	require.NoError(t, err)
	assert.InDelta(t, 35400, got.TotalAmount, 1e-9)
	assert.Equal(t, 33000.0, got.Items[0].PriceAtOrder)
}

func TestCreate_Validation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	coin := f.product(t, "coin", 1, productdomain.Attributes{}, pricedomain.Price{Kind: pricedomain.KindFixed, BaseValue: 1200})
	usd := f.product(t, "usd-bar", 5, productdomain.Attributes{}, pricedomain.Price{Kind: pricedomain.KindFixed, BaseValue: 10, Currency: "USD"})

	tests := []struct {
		name string
		req  domain.CreateRequest
		err  error
	}{
		{"no user", domain.CreateRequest{Items: []domain.ItemRequest{{ProductID: coin.ID.String(), Quantity: 1}}}, domain.ErrInvalidUserID},
		{"no items", domain.CreateRequest{UserID: "u"}, domain.ErrEmptyItems},
		{"zero quantity", domain.CreateRequest{UserID: "u", Items: []domain.ItemRequest{{ProductID: coin.ID.String(), Quantity: 0}}}, domain.ErrInvalidQuantity},
		{"bad product id", domain.CreateRequest{UserID: "u", Items: []domain.ItemRequest{{ProductID: "abc", Quantity: 1}}}, domain.ErrInvalidProductID},
		{"missing product", domain.CreateRequest{UserID: "u", Items: []domain.ItemRequest{{ProductID: "999", Quantity: 1}}}, domain.ErrProductNotFound},
		{"insufficient stock", domain.CreateRequest{UserID: "u", Items: []domain.ItemRequest{{ProductID: coin.ID.String(), Quantity: 2}}}, domain.ErrInsufficientStock},
		{"mixed currency", domain.CreateRequest{UserID: "u", Items: []domain.ItemRequest{
			{ProductID: coin.ID.String(), Quantity: 1},
			{ProductID: usd.ID.String(), Quantity: 1},
		}}, domain.ErrCurrencyMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.req)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	var stored productdomain.Product
	require.NoError(t, f.db.First(&stored, "id = ?", coin.ID).Error)
	assert.EqualValues(t, 1, stored.Stock)
}

func TestCreate_InsufficientStockMessageNamesProduct(t *testing.T) {
	f := setup(t)
	coin := f.product(t, "Sovereign", 0, productdomain.Attributes{}, pricedomain.Price{Kind: pricedomain.KindFixed, BaseValue: 1})

	_, err := f.svc.Create(context.Background(), domain.CreateRequest{UserID: "u", Items: []domain.ItemRequest{{ProductID: coin.ID.String(), Quantity: 1}}})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Contains(t, err.Error(), "Sovereign")
}

func TestCreate_DegradedFormulaPricesAtZero(t *testing.T) {
	f := setup(t)
	broken := f.product(t, "broken", 1,
		productdomain.Attributes{Material: ptr("gold"), Purity: ptr("22k")},
		pricedomain.Price{Kind: pricedomain.KindDynamic, BaseValue: 10, Formula: ptr("rate/0")},
	)

	order, err := f.svc.Create(context.Background(), domain.CreateRequest{UserID: "u", Items: []domain.ItemRequest{{ProductID: broken.ID.String(), Quantity: 1}}})
	require.NoError(t, err)
	assert.Equal(t, 0.0, order.TotalAmount)
	assert.NotEmpty(t, order.Items[0].Pricing.Data().Error)
}

func TestCreate_ConcurrentOrdersDoNotOversell(t *testing.T) {
	f := setup(t)
	coin := f.product(t, "coin", 3, productdomain.Attributes{}, pricedomain.Price{Kind: pricedomain.KindFixed, BaseValue: 100})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Create(context.Background(), domain.CreateRequest{
				UserID: "u",
				Items:  []domain.ItemRequest{{ProductID: coin.ID.String(), Quantity: 1}},
			})
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, success)
	var stored productdomain.Product
	require.NoError(t, f.db.First(&stored, "id = ?", coin.ID).Error)
	assert.EqualValues(t, 0, stored.Stock)
}

func TestListByUser_MostRecentFirst(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	coin := f.product(t, "coin", 10, productdomain.Attributes{}, pricedomain.Price{Kind: pricedomain.KindFixed, BaseValue: 100})

	var ids []snowflake.ID
	for i := 0; i < 3; i++ {
		f.svc.clock = clock.Fixed{At: time.Date(2025, 6, 10, 9, i, 0, 0, time.UTC)}
		o, err := f.svc.Create(ctx, domain.CreateRequest{UserID: "u1", Items: []domain.ItemRequest{{ProductID: coin.ID.String(), Quantity: 1}}})
		require.NoError(t, err)
		ids = append(ids, o.ID)
	}
	_, err := f.svc.Create(ctx, domain.CreateRequest{UserID: "u2", Items: []domain.ItemRequest{{ProductID: coin.ID.String(), Quantity: 1}}})
	require.NoError(t, err)

	page, err := f.svc.ListByUser(ctx, domain.ListRequest{UserID: "u1", PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page.Orders, 2)
	assert.Equal(t, ids[2], page.Orders[0].ID)
	assert.Equal(t, ids[1], page.Orders[1].ID)
	assert.True(t, page.PageInfo.HasMore)
	assert.Len(t, page.Orders[0].Items, 1)

	rest, err := f.svc.ListByUser(ctx, domain.ListRequest{UserID: "u1", PageSize: 2, PageToken: page.PageInfo.NextPageToken})
	require.NoError(t, err)
	require.Len(t, rest.Orders, 1)
	assert.Equal(t, ids[0], rest.Orders[0].ID)
}

func TestApplyPayment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.recordGold(t, 6500)
	chain := f.goldChain(t, 1)

	order, err := f.svc.Create(ctx, domain.CreateRequest{UserID: "u", Items: []domain.ItemRequest{{ProductID: chain.ID.String(), Quantity: 1}}})
	require.NoError(t, err)
	require.Equal(t, 33000.0, order.TotalAmount)

	apply := func(amount float64) (*domain.Order, error) {
		var out *domain.Order
		err := f.db.Transaction(func(tx *gorm.DB) error {
			var err error
			out, err = f.svc.ApplyPayment(ctx, tx, order.ID, f.node.Generate(), amount)
			return err
		})
		return out, err
	}

	after, err := apply(10000)
	require.NoError(t, err)
	assert.Equal(t, 10000.0, after.PaidAmount)
	assert.Equal(t, domain.StatusPending, after.Status)

	_, err = apply(23000.02)
	assert.ErrorIs(t, err, domain.ErrPaidAmountExceeded)

	after, err = apply(23000)
	require.NoError(t, err)
	assert.Equal(t, 33000.0, after.PaidAmount)
	assert.Equal(t, domain.StatusConfirmed, after.Status)

	stored, err := f.svc.Get(ctx, order.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, stored.Status)
	assert.Len(t, stored.PaymentRefs, 2)
}

func TestApplyPayment_WithinTolerance(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	coin := f.product(t, "coin", 1, productdomain.Attributes{}, pricedomain.Price{Kind: pricedomain.KindFixed, BaseValue: 100})
	order, err := f.svc.Create(ctx, domain.CreateRequest{UserID: "u", Items: []domain.ItemRequest{{ProductID: coin.ID.String(), Quantity: 1}}})
	require.NoError(t, err)

	var out *domain.Order
	err = f.db.Transaction(func(tx *gorm.DB) error {
		out, err = f.svc.ApplyPayment(ctx, tx, order.ID, f.node.Generate(), 99.995)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, out.Status)
}

func TestApplyPayment_MissingOrderIsConsistencyError(t *testing.T) {
	f := setup(t)
	err := f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.svc.ApplyPayment(context.Background(), tx, 12345, f.node.Generate(), 10)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrOrderConsistency)
}

func TestUpdateStatus(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	coin := f.product(t, "coin", 2, productdomain.Attributes{}, pricedomain.Price{Kind: pricedomain.KindFixed, BaseValue: 100})

	order, err := f.svc.Create(ctx, domain.CreateRequest{UserID: "u", Items: []domain.ItemRequest{{ProductID: coin.ID.String(), Quantity: 2}}})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, order.ID.String(), "shipped")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = f.svc.UpdateStatus(ctx, order.ID.String(), "confirmed")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.svc.UpdateStatus(ctx, order.ID.String(), "completed")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.svc.UpdateStatus(ctx, "42", "cancelled")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	cancelled, err := f.svc.UpdateStatus(ctx, order.ID.String(), "Cancelled")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)

	var stored productdomain.Product
	require.NoError(t, f.db.First(&stored, "id = ?", coin.ID).Error)
	assert.EqualValues(t, 2, stored.Stock)

	err = f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.svc.ApplyPayment(ctx, tx, order.ID, f.node.Generate(), 10)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrNotPayable)
}

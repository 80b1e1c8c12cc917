package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/railzwaylabs/bullion/internal/config"
	"github.com/railzwaylabs/bullion/internal/rate/cache"
	"github.com/railzwaylabs/bullion/internal/rate/domain"
	"github.com/railzwaylabs/bullion/internal/rate/repository"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now(context.Context) time.Time { return c.now }

func testConfig() config.Config {
	var cfg config.Config
	cfg.Commerce.Materials = []string{"gold", "silver", "diamond"}
	cfg.Commerce.DefaultCurrency = "INR"
	return cfg
}

func setupService(t *testing.T, c domain.Cache) (*Service, *fakeClock) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.RateDay{}, &domain.RateSnapshot{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	if c == nil {
		c = cache.Noop{}
	}
	clk := &fakeClock{now: time.Date(2025, 6, 10, 9, 30, 0, 0, time.UTC)}
	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Cfg:   testConfig(),
		Repo:  repository.Provide(),
		Cache: c,
	}).(*Service)
	return svc, clk
}

func TestRecordRates_AppendsSnapshots(t *testing.T) {
	svc, clk := setupService(t, nil)
	ctx := context.Background()

	day, err := svc.RecordRates(ctx, domain.RecordRequest{
		Rates: map[string]map[string]float64{
			"gold":   {"22k": 6500, "24k": 7100},
			"Silver": {"999": 80},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "2025-06-10", day.Date)
	require.Len(t, day.Products["gold"], 1)
	require.Len(t, day.Products["silver"], 1)
	assert.Equal(t, day.Products["gold"][0].Timestamp, day.Products["silver"][0].Timestamp)

	clk.now = clk.now.Add(time.Hour)
	day, err = svc.RecordRates(ctx, domain.RecordRequest{
		Rates: map[string]map[string]float64{"gold": {"22k": 6550}},
	})
	require.NoError(t, err)
	require.Len(t, day.Products["gold"], 2)
	assert.Equal(t, 6500.0, day.Products["gold"][0].Values["22k"])
	assert.Equal(t, 6550.0, day.Products["gold"][1].Values["22k"])
	require.Len(t, day.Products["silver"], 1)

	rate, err := svc.CurrentRate(ctx, "GOLD", "22k")
	require.NoError(t, err)
	assert.Equal(t, 6550.0, rate)

	// 24k is absent from the newest gold snapshot
	rate, err = svc.CurrentRate(ctx, "gold", "24k")
	require.NoError(t, err)
	assert.Equal(t, 0.0, rate)
}

func TestRecordRates_Validation(t *testing.T) {
	svc, _ := setupService(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  domain.RecordRequest
		err  error
	}{
		{"empty", domain.RecordRequest{}, domain.ErrEmptyRates},
		{"unknown material", domain.RecordRequest{Rates: map[string]map[string]float64{"copper": {"x": 1}}}, domain.ErrInvalidMaterial},
		{"negative rate", domain.RecordRequest{Rates: map[string]map[string]float64{"gold": {"22k": -1}}}, domain.ErrInvalidRate},
		{"blank purity", domain.RecordRequest{Rates: map[string]map[string]float64{"gold": {" ": 1}}}, domain.ErrInvalidPurity},
		{"bad date", domain.RecordRequest{Date: "10-06-2025", Rates: map[string]map[string]float64{"gold": {"22k": 1}}}, domain.ErrInvalidDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordRates(ctx, tt.req)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestRecordRates_EmptyPuritiesClearMaterial(t *testing.T) {
	svc, clk := setupService(t, nil)
	ctx := context.Background()

	_, err := svc.RecordRates(ctx, domain.RecordRequest{Rates: map[string]map[string]float64{"gold": {"22k": 6500}}})
	require.NoError(t, err)

	clk.now = clk.now.Add(time.Hour)
	day, err := svc.RecordRates(ctx, domain.RecordRequest{Rates: map[string]map[string]float64{"gold": {}}})
	require.NoError(t, err)
	require.Len(t, day.Products["gold"], 2)
	assert.Empty(t, day.Products["gold"][1].Values)

	rate, err := svc.CurrentRate(ctx, "gold", "22k")
	require.NoError(t, err)
	assert.Equal(t, 0.0, rate)
}

func TestCurrentRate_SilentZero(t *testing.T) {
	svc, _ := setupService(t, nil)
	ctx := context.Background()

	rate, err := svc.CurrentRate(ctx, "gold", "22k")
	require.NoError(t, err)
	assert.Equal(t, 0.0, rate)

	_, err = svc.RecordRates(ctx, domain.RecordRequest{Rates: map[string]map[string]float64{"gold": {"22k": 6500}}})
	require.NoError(t, err)

	rate, err = svc.CurrentRate(ctx, "platinum", "950")
	require.NoError(t, err)
	assert.Equal(t, 0.0, rate)

	rate, err = svc.CurrentRate(ctx, "silver", "999")
	require.NoError(t, err)
	assert.Equal(t, 0.0, rate)
}

func TestLatestRates_FallsBackToEarlierDay(t *testing.T) {
	svc, clk := setupService(t, nil)
	ctx := context.Background()

	_, err := svc.LatestRates(ctx, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.RecordRates(ctx, domain.RecordRequest{Date: "2025-06-07", Rates: map[string]map[string]float64{"gold": {"22k": 6400}}})
	require.NoError(t, err)
	_, err = svc.RecordRates(ctx, domain.RecordRequest{Date: "2025-06-08", Rates: map[string]map[string]float64{"gold": {"22k": 6450}}})
	require.NoError(t, err)

	day, err := svc.LatestRates(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "2025-06-08", day.Date)

	day, err = svc.LatestRates(ctx, "2025-06-07")
	require.NoError(t, err)
	assert.Equal(t, "2025-06-07", day.Date)

	// nothing on or before the requested date
	day, err = svc.LatestRates(ctx, "2025-01-01")
	require.NoError(t, err)
	assert.Equal(t, "2025-06-08", day.Date)

	clk.now = time.Date(2025, 6, 8, 23, 0, 0, 0, time.UTC)
	rate, err := svc.CurrentRate(ctx, "gold", "22k")
	require.NoError(t, err)
	assert.Equal(t, 6450.0, rate)
}

func TestRatesForDate(t *testing.T) {
	svc, _ := setupService(t, nil)
	ctx := context.Background()

	_, err := svc.RatesForDate(ctx, "2025-06-10")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.RatesForDate(ctx, "yesterday")
	assert.ErrorIs(t, err, domain.ErrInvalidDate)

	_, err = svc.RecordRates(ctx, domain.RecordRequest{Rates: map[string]map[string]float64{"diamond": {"vvs1": 52000}}})
	require.NoError(t, err)

	day, err := svc.RatesForDate(ctx, "2025-06-10")
	require.NoError(t, err)
	assert.Equal(t, 52000.0, day.Products["diamond"][0].Values["vvs1"])
}

func TestLatestRates_CacheInvalidatedOnRecord(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc, _ := setupService(t, cache.NewRedis(client, time.Minute, zap.NewNop()))
	ctx := context.Background()

	_, err = svc.RecordRates(ctx, domain.RecordRequest{Rates: map[string]map[string]float64{"gold": {"22k": 6500}}})
	require.NoError(t, err)

	rate, err := svc.CurrentRate(ctx, "gold", "22k")
	require.NoError(t, err)
	assert.Equal(t, 6500.0, rate)

	_, err = svc.RecordRates(ctx, domain.RecordRequest{Rates: map[string]map[string]float64{"gold": {"22k": 6600}}})
	require.NoError(t, err)

	rate, err = svc.CurrentRate(ctx, "gold", "22k")
	require.NoError(t, err)
	assert.Equal(t, 6600.0, rate)
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/railzwaylabs/bullion/internal/clock"
	"github.com/railzwaylabs/bullion/internal/config"
	quotadomain "github.com/railzwaylabs/bullion/internal/quota/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setup(t *testing.T, cfg config.QuotaConfig, at time.Time) (quotadomain.Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	var full config.Config
	full.Quota = cfg
	svc := NewService(ServiceParam{Redis: client, Log: zap.NewNop(), Cfg: full, Clock: clock.Fixed{At: at}})
	return svc, mr
}

func TestCanPlaceOrder(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2025, 6, 10, 9, 1, 30, 0, time.UTC)
	svc, mr := setup(t, config.QuotaConfig{Enabled: true, OrdersPerMinute: 2, PaymentsPerMinute: 5}, at)

	// 1. Within limit
	require.NoError(t, svc.CanPlaceOrder(ctx, "u1"))
	require.NoError(t, svc.CanPlaceOrder(ctx, "u1"))

	// 2. Exceeded
	assert.ErrorIs(t, svc.CanPlaceOrder(ctx, "u1"), quotadomain.ErrOrderQuotaExceeded)

	// 3. Other users and actions are counted separately
	assert.NoError(t, svc.CanPlaceOrder(ctx, "u2"))
	assert.NoError(t, svc.CanInitiatePayment(ctx, "u1"))

	assert.True(t, mr.Exists("quota:orders:u1:202506100901"))
	assert.Equal(t, 2*time.Minute, mr.TTL("quota:orders:u1:202506100901"))

	usage, err := svc.GetUserUsage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"orders": 3, "payments": 1}, usage)
}

func TestDisabled(t *testing.T) {
	ctx := context.Background()
	svc, mr := setup(t, config.QuotaConfig{Enabled: false, OrdersPerMinute: 1}, time.Now())

	for i := 0; i < 3; i++ {
		assert.NoError(t, svc.CanPlaceOrder(ctx, "u1"))
	}
	assert.Empty(t, mr.Keys())

	_, err := svc.GetUserUsage(ctx, "u1")
	assert.ErrorIs(t, err, quotadomain.ErrQuotaDisabled)
}

func TestWithoutRedisAllowsEverything(t *testing.T) {
	var cfg config.Config
	cfg.Quota = config.QuotaConfig{Enabled: true, OrdersPerMinute: 1}
	svc := NewService(ServiceParam{Log: zap.NewNop(), Cfg: cfg, Clock: clock.SystemClock{}})

	assert.NoError(t, svc.CanPlaceOrder(context.Background(), "u1"))
	assert.NoError(t, svc.CanPlaceOrder(context.Background(), "u1"))
}

func TestFailsOpenWhenRedisIsDown(t *testing.T) {
	svc, mr := setup(t, config.QuotaConfig{Enabled: true, PaymentsPerMinute: 1}, time.Now())
	mr.Close()

	assert.NoError(t, svc.CanInitiatePayment(context.Background(), "u1"))
	assert.NoError(t, svc.CanInitiatePayment(context.Background(), "u1"))
}

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/railzwaylabs/bullion/internal/clock"
	"github.com/railzwaylabs/bullion/internal/config"
	quotadomain "github.com/railzwaylabs/bullion/internal/quota/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const window = time.Minute

type ServiceParam struct {
	fx.In

	Redis *redis.Client `optional:"true"`
	Log   *zap.Logger
	Cfg   config.Config
	Clock clock.Clock
}

type service struct {
	redis *redis.Client
	log   *zap.Logger
	cfg   config.QuotaConfig
	clock clock.Clock
}

func NewService(p ServiceParam) quotadomain.Service {
	return &service{
		redis: p.Redis,
		log:   p.Log.Named("quota.service"),
		cfg:   p.Cfg.Quota,
		clock: p.Clock,
	}
}

func (s *service) enabled() bool {
	return s.cfg.Enabled && s.redis != nil
}

func (s *service) key(action, userID string, now time.Time) string {
	// Key: quota:{action}:{user_id}:{minute} e.g. quota:orders:u1:202506100901
	return fmt.Sprintf("quota:%s:%s:%s", action, userID, now.UTC().Format("200601021504"))
}

func (s *service) allow(ctx context.Context, action, userID string, limit int, exceeded error) error {
	if !s.enabled() || limit <= 0 {
		return nil
	}

	key := s.key(action, userID, s.clock.Now(ctx))

	// Atomic INCR
	val, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		s.log.Error("failed to increment quota", zap.String("action", action), zap.Error(err))
		// Fail open so a redis outage does not block checkout
		return nil
	}
	if val == 1 {
		s.redis.Expire(ctx, key, 2*window)
	}

	if val > int64(limit) {
		s.log.Warn("quota exceeded",
			zap.String("action", action),
			zap.String("user_id", userID),
			zap.Int64("count", val),
		)
		return exceeded
	}
	return nil
}

func (s *service) CanPlaceOrder(ctx context.Context, userID string) error {
	return s.allow(ctx, "orders", userID, s.cfg.OrdersPerMinute, quotadomain.ErrOrderQuotaExceeded)
}

func (s *service) CanInitiatePayment(ctx context.Context, userID string) error {
	return s.allow(ctx, "payments", userID, s.cfg.PaymentsPerMinute, quotadomain.ErrPaymentQuotaExceeded)
}

func (s *service) GetUserUsage(ctx context.Context, userID string) (map[string]int64, error) {
	if !s.enabled() {
		return nil, quotadomain.ErrQuotaDisabled
	}

	now := s.clock.Now(ctx)
	usage := make(map[string]int64)
	for _, action := range []string{"orders", "payments"} {
		val, err := s.redis.Get(ctx, s.key(action, userID, now)).Int64()
		if err != nil && err != redis.Nil {
			return nil, err
		}
		usage[action] = val
	}
	return usage, nil
}

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/railzwaylabs/bullion/internal/config"
	"github.com/railzwaylabs/bullion/internal/rate/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	versionKey = "bullion:rates:version"
	keyPrefix  = "bullion:rates:latest"
)

type Params struct {
	fx.In

	Client *redis.Client `optional:"true"`
	Cfg    config.Config
	Log    *zap.Logger
}

// New returns a redis backed cache, or a no-op cache when redis is not configured.
func New(p Params) domain.Cache {
	if p.Client == nil {
		return Noop{}
	}
	return NewRedis(p.Client, p.Cfg.Redis.RateCacheTTL, p.Log)
}

// Redis caches resolved days under a generation counter. Invalidate bumps
// the generation so every earlier entry becomes unreachable at once.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewRedis(client *redis.Client, ttl time.Duration, log *zap.Logger) *Redis {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Redis{client: client, ttl: ttl, log: log.Named("rate.cache")}
}

func (c *Redis) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, versionKey).Int64()
	if err != nil && err != redis.Nil {
		return -1, err
	}
	return gen, nil
}

func key(gen int64, date string) string {
	return fmt.Sprintf("%s:%d:%s", keyPrefix, gen, date)
}

func (c *Redis) Get(ctx context.Context, date string) (*domain.Day, int64, bool) {
	gen, err := c.generation(ctx)
	if err != nil {
		c.log.Warn("rate cache unavailable", zap.Error(err))
		return nil, -1, false
	}
	k := key(gen, date)
	raw, err := c.client.Get(ctx, k).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("rate cache read failed", zap.String("key", k), zap.Error(err))
		}
		return nil, gen, false
	}
	var day domain.Day
	if err := json.Unmarshal(raw, &day); err != nil {
		c.log.Warn("rate cache entry corrupt", zap.String("key", k), zap.Error(err))
		return nil, gen, false
	}
	return &day, gen, true
}

// Set writes under gen, the generation the caller's Get saw. After an
// Invalidate that key is no longer read, so a stale load is dropped.
func (c *Redis) Set(ctx context.Context, date string, gen int64, day *domain.Day) {
	if day == nil || gen < 0 {
		return
	}
	raw, err := json.Marshal(day)
	if err != nil {
		return
	}
	k := key(gen, date)
	if err := c.client.Set(ctx, k, raw, c.ttl).Err(); err != nil {
		c.log.Warn("rate cache write failed", zap.String("key", k), zap.Error(err))
	}
}

func (c *Redis) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, versionKey).Err()
}

type Noop struct{}

func (Noop) Get(context.Context, string) (*domain.Day, int64, bool) { return nil, -1, false }
func (Noop) Set(context.Context, string, int64, *domain.Day) {}
func (Noop) Invalidate(context.Context) error { return nil }

package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/railzwaylabs/bullion/internal/clock"
	"github.com/railzwaylabs/bullion/internal/config"
	paymentdomain "github.com/railzwaylabs/bullion/internal/payment/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scheduler",
	fx.Provide(New),
	fx.Invoke(func(lc fx.Lifecycle, s *Scheduler) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				s.Start()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return s.Stop(ctx)
			},
		})
	}),
)

type Params struct {
	fx.In

	Cfg      config.Config
	Log      *zap.Logger
	Clock    clock.Clock
	Payments paymentdomain.Service
	Redis    *redis.Client `optional:"true"`
}

type job struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error
}

// Scheduler runs periodic background jobs. With redis configured each run
// is guarded by a short lease so only one replica executes it.
type Scheduler struct {
	cfg      config.SchedulerConfig
	log      *zap.Logger
	clock    clock.Clock
	payments paymentdomain.Service
	redis    *redis.Client
	jobs     []job

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(p Params) *Scheduler {
	s := &Scheduler{
		cfg:      p.Cfg.Scheduler,
		log:      p.Log.Named("scheduler"),
		clock:    p.Clock,
		payments: p.Payments,
		redis:    p.Redis,
	}
	s.jobs = []job{
		{name: "reconcile_payments", interval: s.cfg.ReconcileInterval, run: s.ReconcilePaymentsJob},
	}
	return s
}

func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	for _, j := range s.jobs {
		if j.interval <= 0 {
			s.log.Info("job disabled", zap.String("job", j.name))
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
	s.log.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
}

func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) loop(ctx context.Context, j job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, j)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, j job) {
	release, owner := s.acquire(ctx, j)
	if !owner {
		return
	}
	defer release()

	started := time.Now()
	if err := j.run(ctx); err != nil {
		s.log.Error("job failed", zap.String("job", j.name), zap.Error(err))
		return
	}
	s.log.Debug("job finished", zap.String("job", j.name), zap.Duration("took", time.Since(started)))
}

func (s *Scheduler) acquire(ctx context.Context, j job) (func(), bool) {
	if s.redis == nil {
		return func() {}, true
	}
	key := "bullion:scheduler:" + j.name
	ok, err := s.redis.SetNX(ctx, key, s.clock.Now(ctx).Format(time.RFC3339Nano), j.interval).Result()
	if err != nil {
		s.log.Warn("job lease unavailable, running locally", zap.String("job", j.name), zap.Error(err))
		return func() {}, true
	}
	if !ok {
		return nil, false
	}
	return func() {
		_ = s.redis.Del(context.Background(), key).Err()
	}, true
}

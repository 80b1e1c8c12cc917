package service

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/railzwaylabs/bullion/internal/clock"
	"github.com/railzwaylabs/bullion/internal/config"
	"github.com/railzwaylabs/bullion/internal/observability"
	"github.com/railzwaylabs/bullion/internal/rate/domain"
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

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Cfg     config.Config
	Repo    domain.Repository
	Cache   domain.Cache
	Metrics *observability.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	cache     domain.Cache
	metrics   *observability.Metrics
	materials map[string]struct{}
	tracer    trace.Tracer
}

func New(p Params) domain.Service {
	materials := make(map[string]struct{}, len(p.Cfg.Commerce.Materials))
	for _, m := range p.Cfg.Commerce.Materials {
		materials[strings.ToLower(strings.TrimSpace(m))] = struct{}{}
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("rate.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		cache:     p.Cache,
		metrics:   p.Metrics,
		materials: materials,
		tracer:    otel.Tracer("bullion/rate"),
	}
}

func (s *Service) RecordRates(ctx context.Context, req domain.RecordRequest) (*domain.Day, error) {
	ctx, span := s.tracer.Start(ctx, "rate.RecordRates")
	defer span.End()

	now := s.clock.Now(ctx)
	date, err := s.resolveDate(ctx, req.Date)
	if err != nil {
		return nil, err
	}

	rates, err := s.normalize(req.Rates)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("rate.date", date), attribute.Int("rate.materials", len(rates)))

	materials := make([]string, 0, len(rates))
	for material := range rates {
		materials = append(materials, material)
	}
	sort.Strings(materials)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.EnsureDay(ctx, tx, date, now); err != nil {
			return err
		}
		// concurrent writers for the same day queue up here
		if _, err := s.repo.LockDay(ctx, tx, date); err != nil {
			return err
		}

		snaps := make([]domain.RateSnapshot, 0, len(materials))
		for _, material := range materials {
			seq, err := s.repo.MaxSeq(ctx, tx, date, material)
			if err != nil {
				return err
			}
			snaps = append(snaps, domain.RateSnapshot{
				ID:         s.genID.Generate(),
				Date:       date,
				Material:   material,
				Seq:        seq + 1,
				Values:     datatypes.NewJSONType(rates[material]),
				RecordedAt: now,
			})
		}
		if err := s.repo.InsertSnapshots(ctx, tx, snaps); err != nil {
			return err
		}
		return tx.WithContext(ctx).Model(&domain.RateDay{}).Where("date = ?", date).Update("updated_at", now).Error
	})
	if err != nil {
		s.log.Error("failed to record rates", zap.String("date", date), zap.Error(err))
		return nil, err
	}

	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.Warn("failed to invalidate rate cache", zap.Error(err))
	}
	for _, material := range materials {
		s.metrics.RateSnapshotAppended(material)
	}
	s.log.Info("rates recorded", zap.String("date", date), zap.Strings("materials", materials))

	return s.loadDay(ctx, date)
}

// CurrentRate never fails for missing data: an unknown material, a material
// without snapshots or a purity absent from the newest snapshot all yield 0.
func (s *Service) CurrentRate(ctx context.Context, material, purity string) (float64, error) {
	material = strings.ToLower(strings.TrimSpace(material))
	if _, ok := s.materials[material]; !ok {
		return 0, nil
	}

	day, err := s.LatestRates(ctx, "")
	if err != nil {
		if err == domain.ErrNotFound {
			return 0, nil
		}
		return 0, err
	}

	snap, ok := day.Latest(material)
	if !ok {
		return 0, nil
	}
	return snap.Values[strings.TrimSpace(purity)], nil
}

func (s *Service) LatestRates(ctx context.Context, date string) (*domain.Day, error) {
	date, err := s.resolveDate(ctx, date)
	if err != nil {
		return nil, err
	}

	cached, gen, ok := s.cache.Get(ctx, date)
	if ok {
		return cached, nil
	}

	day, err := s.repo.FindDay(ctx, s.db, date)
	if err != nil {
		return nil, err
	}
	if day == nil {
		day, err = s.repo.FindLatestDayOnOrBefore(ctx, s.db, date)
		if err != nil {
			return nil, err
		}
	}
	if day == nil {
		// only later days exist
		day, err = s.repo.FindLatestDay(ctx, s.db)
		if err != nil {
			return nil, err
		}
	}
	if day == nil {
		return nil, domain.ErrNotFound
	}

	out, err := s.loadDay(ctx, day.Date)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, date, gen, out)
	return out, nil
}

func (s *Service) RatesForDate(ctx context.Context, date string) (*domain.Day, error) {
	date = strings.TrimSpace(date)
	if !validDate(date) {
		return nil, domain.ErrInvalidDate
	}
	day, err := s.repo.FindDay(ctx, s.db, date)
	if err != nil {
		return nil, err
	}
	if day == nil {
		return nil, domain.ErrNotFound
	}
	return s.loadDay(ctx, date)
}

func (s *Service) loadDay(ctx context.Context, date string) (*domain.Day, error) {
	snaps, err := s.repo.ListSnapshots(ctx, s.db, date)
	if err != nil {
		return nil, err
	}
	out := &domain.Day{Date: date, Products: make(map[string][]domain.Snapshot)}
	for _, snap := range snaps {
		out.Products[snap.Material] = append(out.Products[snap.Material], domain.Snapshot{
			Timestamp: snap.RecordedAt.UTC(),
			Values:    snap.Values.Data(),
		})
	}
	return out, nil
}

func (s *Service) resolveDate(ctx context.Context, date string) (string, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return s.clock.Now(ctx).UTC().Format(domain.DateLayout), nil
	}
	if !validDate(date) {
		return "", domain.ErrInvalidDate
	}
	return date, nil
}

func (s *Service) normalize(in map[string]map[string]float64) (map[string]map[string]float64, error) {
	out := make(map[string]map[string]float64, len(in))
	for material, values := range in {
		key := strings.ToLower(strings.TrimSpace(material))
		if _, ok := s.materials[key]; !ok {
			return nil, domain.ErrInvalidMaterial
		}
		// an empty map still appends a snapshot, clearing the material's rates
		clean := make(map[string]float64, len(values))
		for purity, rate := range values {
			purity = strings.TrimSpace(purity)
			if purity == "" {
				return nil, domain.ErrInvalidPurity
			}
			if rate < 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
				return nil, domain.ErrInvalidRate
			}
			clean[purity] = rate
		}
		if existing, ok := out[key]; ok {
			for k, v := range clean {
				existing[k] = v
			}
			continue
		}
		out[key] = clean
	}
	if len(out) == 0 {
		return nil, domain.ErrEmptyRates
	}
	return out, nil
}

func validDate(date string) bool {
	_, err := time.Parse(domain.DateLayout, date)
	return err == nil
}

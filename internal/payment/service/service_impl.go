package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/railzwaylabs/bullion/internal/clock"
	"github.com/railzwaylabs/bullion/internal/observability"
	orderdomain "github.com/railzwaylabs/bullion/internal/order/domain"
	"github.com/railzwaylabs/bullion/internal/payment/adapters"
	"github.com/railzwaylabs/bullion/internal/payment/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Reservations without a provider transaction older than this are
// treated as interrupted provider calls.
const reservationTimeout = 10 * time.Minute

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	OrderRepo orderdomain.Repository
	Orders    orderdomain.Service
	Registry  *adapters.Registry
	Metrics   *observability.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	orderRepo orderdomain.Repository
	orders    orderdomain.Service
	registry  *adapters.Registry
	metrics   *observability.Metrics
	locks     *keyedMutex
	tracer    trace.Tracer
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("payment.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		orderRepo: p.OrderRepo,
		orders:    p.Orders,
		registry:  p.Registry,
		metrics:   p.Metrics,
		locks:     newKeyedMutex(),
		tracer:    otel.Tracer("bullion/payment"),
	}
}

// Initiate charges an order through the default provider in three steps.
// The amount is first reserved as a pending payment while the order row is
// locked, so concurrent payments see it in the remaining balance. The
// provider is then called outside any transaction. Finally the provider's
// transaction is attached and the payment settled. A reservation the
// provider rejected is released; any later failure leaves a pending payment
// the reconciler can settle.
func (s *Service) Initiate(ctx context.Context, req domain.InitiateRequest) (*domain.Payment, error) {
	ctx, span := s.tracer.Start(ctx, "payment.Initiate")
	defer span.End()

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}
	orderID, err := snowflake.ParseString(strings.TrimSpace(req.OrderID))
	if err != nil {
		return nil, domain.ErrInvalidOrderID
	}
	if math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) || req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	method, ok := domain.ParseMethod(req.Method)
	if !ok {
		return nil, domain.ErrInvalidMethod
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	span.SetAttributes(attribute.String("order.id", orderID.String()))

	provider, err := s.registry.Default()
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(orderID.String())
	defer unlock()

	if key != "" {
		existing, err := s.replay(ctx, userID, key, orderID, req.Amount)
		if err != nil || existing != nil {
			return existing, err
		}
	}

	payment, err := s.reserve(ctx, userID, orderID, req.Amount, method, key, provider.Name())
	if err != nil {
		return nil, err
	}

	result, err := provider.Initiate(ctx, domain.Charge{
		Reference:      payment.ID.String(),
		Amount:         payment.Amount,
		Currency:       payment.Currency,
		Method:         method,
		IdempotencyKey: key,
		Metadata: map[string]string{
			"order_id":   orderID.String(),
			"payment_id": payment.ID.String(),
			"user_id":    userID,
		},
	})
	if err == nil && (result == nil || result.TransactionID == "") {
		err = domain.ErrProviderResponse
	}
	if err != nil {
		s.log.Warn("provider rejected charge",
			zap.String("provider", provider.Name()),
			zap.String("order_id", orderID.String()),
			zap.Error(err),
		)
		s.release(ctx, payment)
		if errors.Is(err, domain.ErrProviderResponse) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrProviderFailed, provider.Name(), err)
	}

	// The charge exists at the provider from here on, so the remaining
	// writes must not be cut short by the caller going away.
	ctx = context.WithoutCancel(ctx)
	if err := s.repo.AttachTransaction(ctx, s.db, payment.ID, result.TransactionID, result.Raw, s.clock.Now(ctx)); err != nil {
		s.log.Error("failed to record provider transaction",
			zap.String("payment_id", payment.ID.String()),
			zap.String("transaction_id", result.TransactionID),
			zap.Error(err),
		)
		return nil, err
	}
	payment.TransactionID = result.TransactionID
	payment.ProviderMetadata = datatypes.JSONMap(result.Raw)

	if status := normalizeStatus(result.Status); status != domain.StatusPending {
		if _, err := s.settle(ctx, payment, status, result.Raw); err != nil {
			s.log.Error("charged payment left pending",
				zap.String("payment_id", payment.ID.String()),
				zap.String("order_id", orderID.String()),
				zap.Error(err),
			)
			return nil, err
		}
	}

	stored, err := s.Get(ctx, payment.ID.String())
	if err != nil {
		return nil, err
	}
	s.metrics.PaymentRecorded(string(stored.Status), string(stored.Method))
	s.log.Info("payment recorded",
		zap.String("payment_id", stored.ID.String()),
		zap.String("order_id", stored.OrderID.String()),
		zap.String("provider", stored.Provider),
		zap.String("status", string(stored.Status)),
		zap.Float64("amount", stored.Amount),
	)
	return stored, nil
}

// reserve stores a pending payment for amount after checking it against the
// order's remaining balance, pending payments included.
func (s *Service) reserve(ctx context.Context, userID string, orderID snowflake.ID, amount float64, method domain.Method, key, providerName string) (*domain.Payment, error) {
	var payment *domain.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.FindByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order == nil || order.UserID != userID {
			return domain.ErrOrderNotFound
		}
		if !order.AcceptsPayments() {
			return domain.ErrOrderNotPayable
		}

		pending, err := s.repo.SumPendingByOrder(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if !order.CanAccept(order.PaidAmount+pending, amount) {
			return domain.ErrExceedsRemaining
		}

		now := s.clock.Now(ctx)
		payment = &domain.Payment{
			ID:        s.genID.Generate(),
			OrderID:   order.ID,
			UserID:    userID,
			Amount:    amount,
			Currency:  order.Currency,
			Method:    method,
			Status:    domain.StatusPending,
			Provider:  providerName,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if key != "" {
			payment.IdempotencyKey = &key
		}
		return s.repo.Insert(ctx, tx, payment)
	})
	if isUniqueViolation(err) {
		return nil, domain.ErrIdempotencyReused
	}
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// release drops a reservation after the provider refused the charge.
func (s *Service) release(ctx context.Context, payment *domain.Payment) {
	released, err := s.repo.Release(context.WithoutCancel(ctx), s.db, payment.ID)
	if err != nil || !released {
		s.log.Error("failed to release payment reservation",
			zap.String("payment_id", payment.ID.String()),
			zap.Bool("released", released),
			zap.Error(err),
		)
	}
}

// isUniqueViolation matches gorm's translated duplicate-key error and the
// raw messages of drivers that do not translate, such as glebarez/sqlite.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate entry") || strings.Contains(msg, "duplicate key")
}

// replay returns the payment already stored under key, or an error when the
// key was used for a different charge.
func (s *Service) replay(ctx context.Context, userID, key string, orderID snowflake.ID, amount float64) (*domain.Payment, error) {
	existing, err := s.repo.FindByIdempotencyKey(ctx, s.db, userID, key)
	if err != nil || existing == nil {
		return nil, err
	}
	if existing.OrderID != orderID || math.Abs(existing.Amount-amount) > orderdomain.Tolerance {
		return nil, domain.ErrIdempotencyReused
	}
	return existing, nil
}

func normalizeStatus(status domain.Status) domain.Status {
	switch status {
	case domain.StatusCompleted, domain.StatusFailed:
		return status
	default:
		return domain.StatusPending
	}
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Payment, error) {
	paymentID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.ErrInvalidID
	}
	payment, err := s.repo.FindByID(ctx, s.db, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.ErrNotFound
	}
	return payment, nil
}

func (s *Service) Verify(ctx context.Context, id string) (*domain.Payment, error) {
	payment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.verify(ctx, payment)
}

func (s *Service) verify(ctx context.Context, payment *domain.Payment) (*domain.Payment, error) {
	ctx, span := s.tracer.Start(ctx, "payment.Verify")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", payment.ID.String()))

	if payment.Status != domain.StatusPending {
		return payment, nil
	}
	if payment.TransactionID == "" {
		return s.expireReservation(ctx, payment)
	}

	provider, err := s.registry.Get(payment.Provider)
	if err != nil {
		return nil, err
	}
	result, err := provider.Verify(ctx, payment.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrProviderFailed, provider.Name(), err)
	}
	status := normalizeStatus(result.Status)
	if status == domain.StatusPending {
		return payment, nil
	}

	metadata := map[string]any{}
	for k, v := range payment.ProviderMetadata {
		metadata[k] = v
	}
	metadata["verification"] = result.Raw

	unlock := s.locks.Lock(payment.OrderID.String())
	settled, err := s.settle(ctx, payment, status, metadata)
	unlock()
	if err != nil {
		return nil, err
	}

	if settled {
		s.metrics.PaymentReconciled(string(status))
		s.log.Info("payment settled",
			zap.String("payment_id", payment.ID.String()),
			zap.String("order_id", payment.OrderID.String()),
			zap.String("status", string(status)),
		)
	}
	return s.Get(ctx, payment.ID.String())
}

// expireReservation fails a reservation whose provider call never
// reported back. Younger reservations may still be in flight.
func (s *Service) expireReservation(ctx context.Context, payment *domain.Payment) (*domain.Payment, error) {
	if s.clock.Now(ctx).Sub(payment.CreatedAt) < reservationTimeout {
		return payment, nil
	}
	s.log.Error("payment reservation expired without a provider transaction",
		zap.String("payment_id", payment.ID.String()),
		zap.String("order_id", payment.OrderID.String()),
	)
	metadata := map[string]any{"reason": "provider_call_interrupted"}
	if _, err := s.repo.Settle(ctx, s.db, payment.ID, domain.StatusFailed, metadata, s.clock.Now(ctx)); err != nil {
		return nil, err
	}
	s.metrics.PaymentReconciled(string(domain.StatusFailed))
	return s.Get(ctx, payment.ID.String())
}

// settle moves a pending payment to status and, when completed, applies it
// to its order in the same transaction. Callers hold the order's lock. It
// reports false when the payment had already settled.
func (s *Service) settle(ctx context.Context, payment *domain.Payment, status domain.Status, metadata map[string]any) (bool, error) {
	var settled bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock the order before the payment row, same order as reserve.
		if _, err := s.orderRepo.FindByIDForUpdate(ctx, tx, payment.OrderID); err != nil {
			return err
		}

		var err error
		settled, err = s.repo.Settle(ctx, tx, payment.ID, status, metadata, s.clock.Now(ctx))
		if err != nil {
			return err
		}
		if !settled || status != domain.StatusCompleted {
			return nil
		}

		_, err = s.orders.ApplyPayment(ctx, tx, payment.OrderID, payment.ID, payment.Amount)
		if errors.Is(err, orderdomain.ErrNotPayable) || errors.Is(err, orderdomain.ErrPaidAmountExceeded) {
			s.log.Error("settled payment could not be applied to order",
				zap.String("payment_id", payment.ID.String()),
				zap.String("order_id", payment.OrderID.String()),
				zap.Error(err),
			)
			return nil
		}
		return err
	})
	if err != nil {
		return false, err
	}
	return settled, nil
}

func (s *Service) ReconcilePending(ctx context.Context, createdBefore time.Time, limit int) (domain.ReconcileResult, error) {
	var result domain.ReconcileResult
	if limit <= 0 {
		limit = 100
	}
	items, err := s.repo.ListPending(ctx, s.db, createdBefore, limit)
	if err != nil {
		return result, err
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Checked++
		payment, err := s.verify(ctx, item)
		if err != nil {
			result.Errors++
			s.log.Warn("payment verification failed",
				zap.String("payment_id", item.ID.String()),
				zap.Error(err),
			)
			continue
		}
		switch payment.Status {
		case domain.StatusCompleted:
			result.Completed++
		case domain.StatusFailed:
			result.Failed++
		default:
			result.StillPending++
		}
	}
	return result, nil
}

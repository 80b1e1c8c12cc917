package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/railzwaylabs/bullion/internal/config"
	"github.com/railzwaylabs/bullion/internal/observability"
	orderdomain "github.com/railzwaylabs/bullion/internal/order/domain"
	paymentdomain "github.com/railzwaylabs/bullion/internal/payment/domain"
	productdomain "github.com/railzwaylabs/bullion/internal/product/domain"
	quotadomain "github.com/railzwaylabs/bullion/internal/quota/domain"
	ratedomain "github.com/railzwaylabs/bullion/internal/rate/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("server",
	fx.Provide(New),
	fx.Invoke(RegisterLifecycle),
)

type Params struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	DB         *gorm.DB
	Redis      *redis.Client          `optional:"true"`
	Registry   *prometheus.Registry   `optional:"true"`
	Metrics    *observability.Metrics `optional:"true"`
	RateSvc    ratedomain.Service
	ProductSvc productdomain.Service
	OrderSvc   orderdomain.Service
	PaymentSvc paymentdomain.Service
	QuotaSvc   quotadomain.Service    `optional:"true"`
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	db         *gorm.DB
	redis      *redis.Client
	registry   *prometheus.Registry
	metrics    *observability.Metrics
	rateSvc    ratedomain.Service
	productSvc productdomain.Service
	orderSvc   orderdomain.Service
	paymentSvc paymentdomain.Service
	quotaSvc   quotadomain.Service
}

func New(p Params) (*Server, error) {
	if p.Cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := registerValidators(p.Cfg.Commerce.Materials); err != nil {
		return nil, fmt.Errorf("register validators: %w", err)
	}

	s := &Server{
		engine:     gin.New(),
		cfg:        p.Cfg,
		log:        p.Log.Named("http"),
		db:         p.DB,
		redis:      p.Redis,
		registry:   p.Registry,
		metrics:    p.Metrics,
		rateSvc:    p.RateSvc,
		productSvc: p.ProductSvc,
		orderSvc:   p.OrderSvc,
		paymentSvc: p.PaymentSvc,
		quotaSvc:   p.QuotaSvc,
	}
	s.engine.Use(gin.Recovery(), s.RequestContext(), s.Identity())
	s.RegisterRoutes()
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) RegisterRoutes() {
	r := s.engine

	r.GET("/health", s.Health)
	if s.registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})))
	}

	rates := r.Group("/rates")
	rates.POST("", s.AdminRequired(), s.RecordRates)
	rates.GET("/latest", s.GetLatestRates)
	rates.GET("/:date", s.GetRatesForDate)

	products := r.Group("/products")
	products.GET("", s.ListProducts)
	products.GET("/:id", s.GetProduct)
	products.POST("", s.AdminRequired(), s.CreateProduct)

	orders := r.Group("/orders", s.AuthRequired())
	orders.POST("", s.CreateOrder)
	orders.GET("/my-orders", s.ListMyOrders)
	orders.GET("/:id", s.GetOrder)
	orders.PATCH("/:id/status", s.AdminRequired(), s.UpdateOrderStatus)

	payments := r.Group("/payments", s.AuthRequired())
	payments.POST("/initiate", s.InitiatePayment)
	payments.GET("/:id", s.GetPayment)
	payments.POST("/:id/verify", s.AdminRequired(), s.VerifyPayment)
}

func RegisterLifecycle(lc fx.Lifecycle, s *Server, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: s.engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("http server listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cfg.HTTP.ShutdownTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout)
				defer cancel()
			}
			return srv.Shutdown(ctx)
		},
	})
}

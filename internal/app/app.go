package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/bookstore/internal/cache"
	"github.com/xenking/bookstore/internal/domain/auth"
	"github.com/xenking/bookstore/internal/domain/cart"
	"github.com/xenking/bookstore/internal/domain/order"
	"github.com/xenking/bookstore/internal/domain/user"
	"github.com/xenking/bookstore/internal/handler"
	"github.com/xenking/bookstore/internal/openlibrary"
	"github.com/xenking/bookstore/internal/outbox"
	"github.com/xenking/bookstore/internal/storage/postgres"
	"github.com/xenking/bookstore/pkg/health"
	"github.com/xenking/bookstore/pkg/httpmiddleware"
)

const serviceName = "bookstore-api"

// Run creates all dependencies, starts the HTTP server and the outbox relay,
// and handles graceful shutdown. It is the single wiring point for the
// application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("payment_mode", cfg.Payment.Mode),
		zap.Bool("outbox", cfg.Outbox.Enabled),
	)

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck("postgres", pool.Ping))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Redis backs the cart cache and idempotency keys; both are optional.
	var (
		cartCache   cart.Cache
		idempotency handler.IdempotencyStore
	)
	if cfg.Redis.URL != "" {
		rdb, err := cache.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() { _ = rdb.Close() }()

		cartCache = cache.NewCartCache(rdb, cfg.Redis.CartTTL)
		idempotency = cache.NewIdempotency(rdb, cache.DefaultIdempotencyTTL)
		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.PingCheck("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
	} else {
		lg.Warn("Redis is not configured, cart caching and idempotency keys are disabled")
	}

	// Repositories.
	bookRepo := postgres.NewBookRepository(pool)
	userRepo := postgres.NewUserRepository(pool)
	cartRepo := postgres.NewCartRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	outboxRepo := postgres.NewOutboxRepository(pool)

	// Domain services.
	settler, err := cfg.Payment.settler()
	if err != nil {
		return err
	}
	checkoutMetrics, err := order.NewMetrics(m.MeterProvider().Meter("github.com/xenking/bookstore/internal/domain/order"))
	if err != nil {
		return errors.Wrap(err, "create checkout metrics")
	}
	authSvc := auth.NewService(userRepo, auth.NewTokens([]byte(cfg.Auth.Secret), cfg.Auth.TokenTTL))
	userSvc := user.NewService(userRepo)
	cartSvc := cart.NewService(cartRepo, bookRepo, cartCache)
	orderSvc := order.NewService(postgres.NewUnitOfWork(pool), orderRepo, bookRepo,
		order.WithSettler(settler),
		order.WithMetrics(checkoutMetrics),
		order.WithEvents(cfg.Outbox.Enabled),
		order.WithCartInvalidator(cartSvc),
	)
	olClient := openlibrary.New(cfg.OpenLibrary.BaseURL, cfg.OpenLibrary.Timeout)

	h := handler.NewHandler(
		handler.Config{ImageBaseURL: cfg.ImageBaseURL},
		handler.Deps{
			Auth:        authSvc,
			Users:       userSvc,
			Books:       bookRepo,
			Carts:       cartSvc,
			Orders:      orderSvc,
			OpenLibrary: olClient,
			Idempotency: idempotency,
		},
	)

	// Router: health endpoints + API routes on one server.
	router := h.Routes()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	routeFinder := httpmiddleware.MakeRouteFinder(router)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.OpenLibrary.Timeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Skip:   isProbe,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument(serviceName, routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	healthSvc.Start(ctx, 10*time.Second)
	defer healthSvc.Stop()
	healthSvc.SetReady(true)

	g, gCtx := errgroup.WithContext(ctx)
	if cfg.Outbox.Enabled {
		pub := outbox.NewKafkaPublisher(outbox.ParseBrokers(cfg.Kafka.Brokers), cfg.Kafka.Topic)
		defer func() {
			if err := pub.Close(); err != nil {
				lg.Warn("Close kafka publisher", zap.Error(err))
			}
		}()
		relay := outbox.NewRelay(outboxRepo, pub, cfg.Outbox.Interval, cfg.Outbox.Batch)
		g.Go(func() error {
			return relay.Run(zctx.Base(gCtx, lg.Named("outbox")))
		})
	}

	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gCtx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}

func isProbe(r *http.Request) bool {
	return r.URL.Path == "/livez" || r.URL.Path == "/readyz"
}

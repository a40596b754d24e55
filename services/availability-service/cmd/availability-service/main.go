package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotwise/libs/db"
	"github.com/md-rashed-zaman/slotwise/libs/grpcx"
	"github.com/md-rashed-zaman/slotwise/libs/httpx"
	"github.com/md-rashed-zaman/slotwise/libs/kafkax"
	"github.com/md-rashed-zaman/slotwise/libs/metrics"
	otelx "github.com/md-rashed-zaman/slotwise/libs/otel"
	"github.com/md-rashed-zaman/slotwise/libs/runtime"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/booking"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/catalog"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/consumer"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/grpcserver"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/handlers"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/inbox"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/outbox"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/settings"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/storage"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/migrations"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.Service, cfg.LogLevel)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	collector := metrics.NewCollector("slotwise")

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{MaxConns: int32(cfg.DBMaxConns)})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		if err := migrations.Apply(ctx, pool, logger); err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()
	}

	settingsStore, storeChecks := buildSettingsStore(ctx, cfg, pool, rdb, logger, collector)

	outboxRepo := outbox.NewRepository(pool)
	settingsSvc := settings.NewService(settingsStore, logger,
		settings.WithMetrics(collector),
		settings.WithChangeRecorder(outbox.NewSettingsRecorder(outboxRepo)),
	)

	catalogRepo := catalog.NewRepository(pool)
	bookingRepo := storage.NewBookingRepository(pool)
	bookingSvc := booking.NewService(
		booking.NewPostgresStore(bookingRepo, outboxRepo),
		settingsSvc,
		catalogRepo,
		logger,
		booking.WithMetrics(collector),
		booking.WithLocation(cfg.Location),
	)

	publisher := outbox.NewPublisher(outboxRepo, logger, collector, outbox.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		PollEvery: cfg.OutboxPollEvery,
		BatchSize: cfg.OutboxBatchSize,
	})
	go publisher.Run(ctx)

	if strings.TrimSpace(cfg.KafkaBrokers) != "" && strings.TrimSpace(cfg.CatalogTopic) != "" {
		projector := catalog.NewProjector(pool, catalogRepo, inbox.NewRepository())
		catalogConsumer := consumer.New(logger, collector, consumer.Config{
			Brokers:  cfg.KafkaBrokers,
			GroupID:  cfg.KafkaGroupID,
			Topic:    cfg.CatalogTopic,
			Attempts: cfg.ConsumerAttempts,
			Backoff:  cfg.ConsumerBackoff,
		}, projector.Handle)
		go catalogConsumer.Run(ctx)
	} else {
		logger.Warn("catalog consumer disabled (no kafka brokers configured)")
	}

	checks := append([]runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}, storeChecks...)
	if strings.TrimSpace(cfg.KafkaBrokers) != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/metrics", collector.Handler())

	api := http.NewServeMux()
	handlers.New(settingsSvc, bookingSvc, logger).Register(api)
	mux.Handle("/api/v1/public/", httpx.Chain(api, httpx.RateLimit(buildLimiter(cfg, rdb, logger), logger, cfg.RateLimitFailOpen)))
	mux.Handle("/api/v1/", api)

	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(cfg.CORS),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		collector.HTTPMiddleware(),
		httpx.WithBodyLimit(cfg.BodyLimit),
		httpx.WithTimeout(cfg.RequestTimeout),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "availability")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := startGrpcServer(ctx, cfg.GRPCPort, bookingSvc, logger); err != nil {
		logger.Error("grpc server init failed", "err", err)
		panic(err)
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// buildSettingsStore layers the settings stores: Postgres primary, SQLite secondary behind a
// breaker, then the Redis cache when configured. The secondary and cache are optional for
// readiness.
func buildSettingsStore(ctx context.Context, cfg serviceConfig, pool *db.Pool, rdb *redis.Client, logger *slog.Logger, m *metrics.Collector) (settings.Store, []runtime.ReadyCheck) {
	var (
		store  settings.Store = settings.NewPostgresStore(pool)
		checks []runtime.ReadyCheck
	)

	secondary, err := settings.OpenSQLite(ctx, cfg.SQLitePath, cfg.SQLiteBusyTimeout)
	if err != nil {
		logger.Error("settings secondary unavailable; running without fallback", "path", cfg.SQLitePath, "err", err)
	} else {
		go func() {
			<-ctx.Done()
			_ = secondary.Close()
		}()
		checks = append(checks, runtime.ReadyCheck{Name: "settings-secondary", Check: secondary.Ping, Optional: true})
		store = settings.NewFallbackStore(store, secondary, settings.BreakerOptions{
			ConsecutiveFailures: uint32(cfg.BreakerFailures),
			OpenFor:             cfg.BreakerOpenFor,
		}, logger, m)
	}

	if rdb != nil {
		store = settings.NewCachedStore(store, rdb, cfg.SettingsCacheTTL, logger, m)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Optional: true, Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		logger.Info("settings cache enabled (redis)", "redis_addr", cfg.RedisAddr, "ttl", cfg.SettingsCacheTTL.String())
	}
	return store, checks
}

func buildLimiter(cfg serviceConfig, rdb *redis.Client, logger *slog.Logger) httpx.Limiter {
	if rdb != nil {
		logger.Info("rate limiting enabled (redis)", "per_minute", cfg.RateLimitPerMinute)
		return httpx.NewRedisLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, cfg.RateLimitPrefix)
	}
	logger.Info("rate limiting enabled (in-memory)", "per_minute", cfg.RateLimitPerMinute)
	return httpx.NewMemoryLimiter(cfg.RateLimitPerMinute, time.Minute)
}

func startGrpcServer(ctx context.Context, port string, slots grpcserver.Slots, logger *slog.Logger) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}

	srv := grpcx.NewServer(grpcx.UnaryServerLoggingInterceptor(logger))
	hs := grpcserver.Register(srv, slots, logger)

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		hs.Shutdown()
		srv.GracefulStop()
	}()

	return nil
}

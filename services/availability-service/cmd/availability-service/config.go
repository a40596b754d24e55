package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotwise/libs/config"
	"github.com/md-rashed-zaman/slotwise/libs/httpx"
)

type serviceConfig struct {
	Service  string
	Port     string
	GRPCPort string
	LogLevel string

	DatabaseURL    string
	DBMaxConns     int
	MigrateOnStart bool

	SQLitePath        string
	SQLiteBusyTimeout time.Duration
	BreakerFailures   int
	BreakerOpenFor    time.Duration

	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	SettingsCacheTTL time.Duration

	KafkaBrokers     string
	KafkaGroupID     string
	CatalogTopic     string
	ConsumerAttempts int
	ConsumerBackoff  time.Duration
	OutboxPollEvery  time.Duration
	OutboxBatchSize  int

	Location *time.Location

	BodyLimit          int64
	RequestTimeout     time.Duration
	RateLimitPerMinute int
	RateLimitFailOpen  bool
	RateLimitPrefix    string
	CORS               httpx.CORSPolicy
}

func loadConfig() (serviceConfig, error) {
	port, err := config.Port("PORT", "8085")
	if err != nil {
		return serviceConfig{}, err
	}
	grpcPort, err := config.Port("GRPC_PORT", "9095")
	if err != nil {
		return serviceConfig{}, err
	}
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return serviceConfig{}, err
	}
	tz := config.String("BOOKING_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return serviceConfig{}, fmt.Errorf("BOOKING_TIMEZONE: %w", err)
	}

	return serviceConfig{
		Service:  config.String("SERVICE_NAME", "availability-service"),
		Port:     port,
		GRPCPort: grpcPort,
		LogLevel: config.String("LOG_LEVEL", "info"),

		DatabaseURL:    dbURL,
		DBMaxConns:     config.Int("DB_MAX_CONNS", 10, 1),
		MigrateOnStart: config.Bool("MIGRATE_ON_START", true),

		SQLitePath:        config.String("SETTINGS_SQLITE_PATH", "availability-settings.db"),
		SQLiteBusyTimeout: config.Duration("SETTINGS_SQLITE_BUSY_TIMEOUT", 5*time.Second),
		BreakerFailures:   config.Int("SETTINGS_BREAKER_FAILURES", 5, 1),
		BreakerOpenFor:    config.Duration("SETTINGS_BREAKER_OPEN_FOR", 30*time.Second),

		RedisAddr:        strings.TrimSpace(config.String("REDIS_ADDR", "")),
		RedisPassword:    config.String("REDIS_PASSWORD", ""),
		RedisDB:          config.Int("REDIS_DB", 0, 0),
		SettingsCacheTTL: config.Duration("SETTINGS_CACHE_TTL", 5*time.Minute),

		KafkaBrokers:     config.String("KAFKA_BROKERS", ""),
		KafkaGroupID:     config.String("KAFKA_GROUP_ID", "availability-service"),
		CatalogTopic:     config.String("KAFKA_CATALOG_TOPIC", "catalog.service.upserted.v1"),
		ConsumerAttempts: config.Int("KAFKA_HANDLER_ATTEMPTS", 5, 1),
		ConsumerBackoff:  config.Duration("KAFKA_HANDLER_BACKOFF", 500*time.Millisecond),
		OutboxPollEvery:  config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxBatchSize:  config.Int("OUTBOX_BATCH_SIZE", 50, 1),

		Location: loc,

		BodyLimit:          int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20, 1)),
		RequestTimeout:     config.Duration("REQUEST_TIMEOUT", 10*time.Second),
		RateLimitPerMinute: config.Int("RATE_LIMIT_PER_MINUTE", 120, 1),
		RateLimitFailOpen:  config.Bool("RATE_LIMIT_FAIL_OPEN", true),
		RateLimitPrefix:    config.String("RATE_LIMIT_PREFIX", "rl:availability"),
		CORS: httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", "GET,POST,PUT,OPTIONS"),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", "Content-Type,X-Request-Id,X-Business-Id,Idempotency-Key"),
			ExposedHeaders:   config.List("CORS_EXPOSED_HEADERS", "X-Request-Id,Idempotent-Replayed,Retry-After"),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Duration("CORS_MAX_AGE", 10*time.Minute),
		},
	}, nil
}

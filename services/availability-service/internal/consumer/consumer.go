package consumer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotwise/libs/kafkax"
	"github.com/md-rashed-zaman/slotwise/libs/metrics"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/codes"
)

// ErrDuplicate tells the consumer an event was seen before and skipped.
var ErrDuplicate = errors.New("duplicate event")

type Handler func(ctx context.Context, msg kafka.Message) error

// Reader is the part of *kafka.Reader the loop uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader   Reader
	logger   *slog.Logger
	metrics  *metrics.Collector
	handler  Handler
	attempts int
	backoff  time.Duration
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
	// Attempts bounds handler retries per message before it is skipped.
	Attempts int
	Backoff  time.Duration
}

func New(logger *slog.Logger, m *metrics.Collector, cfg Config, handler Handler) *Consumer {
	brokers := kafkax.SplitBrokers(cfg.Brokers)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return NewWithReader(reader, logger, m, cfg, handler)
}

func NewWithReader(reader Reader, logger *slog.Logger, m *metrics.Collector, cfg Config, handler Handler) *Consumer {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	return &Consumer{
		reader:   reader,
		logger:   logger,
		metrics:  m,
		handler:  handler,
		attempts: cfg.Attempts,
		backoff:  cfg.Backoff,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			if !sleep(ctx, c.backoff) {
				return
			}
			continue
		}

		c.process(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	ctxSpan, span := kafkax.StartConsumeSpan(ctx, msg)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	var err error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		err = c.handler(ctxSpan, msg)
		if err == nil || errors.Is(err, ErrDuplicate) || errors.Is(err, ErrPoison) {
			break
		}
		c.logger.Warn("handler error", "err", err, "event_id", meta.EventID, "attempt", attempt)
		if attempt < c.attempts && !sleep(ctx, c.backoff*time.Duration(attempt)) {
			break
		}
	}

	outcome := "processed"
	switch {
	case err == nil:
	case errors.Is(err, ErrDuplicate):
		outcome = "duplicate"
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
	default:
		outcome = "failed"
		c.logger.Error("event skipped", "err", err, "event_id", meta.EventID, "event_type", meta.EventType)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if c.metrics != nil {
		c.metrics.EventsConsumedTotal.WithLabelValues(msg.Topic, outcome).Inc()
	}
}

// ErrPoison marks a message that can never be handled, such as an undecodable payload.
var ErrPoison = errors.New("unprocessable event")

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

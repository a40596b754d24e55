package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotwise/libs/kafkax"
	"github.com/md-rashed-zaman/slotwise/libs/metrics"
	otelx "github.com/md-rashed-zaman/slotwise/libs/otel"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type dispatcher interface {
	Dispatch(ctx context.Context, limit int, deliver func(context.Context, []Record) error) (int, error)
}

type PublisherConfig struct {
	Brokers   string
	PollEvery time.Duration
	BatchSize int
}

// Publisher relays staged events to Kafka. Delivery is at-least-once: a batch whose marking
// fails after a successful write is sent again, and consumers dedupe by event id.
type Publisher struct {
	source    dispatcher
	writer    MessageWriter
	logger    *slog.Logger
	metrics   *metrics.Collector
	pollEvery time.Duration
	batchSize int
}

// NewPublisher returns a publisher writing to cfg.Brokers, or nil when no brokers are
// configured. Run on a nil publisher returns immediately.
func NewPublisher(repo *Repository, logger *slog.Logger, m *metrics.Collector, cfg PublisherConfig) *Publisher {
	brokers := kafkax.SplitBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		logger.Warn("outbox publisher disabled, no kafka brokers configured")
		return nil
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(repo, w, logger, m, cfg)
}

func newPublisher(source dispatcher, w MessageWriter, logger *slog.Logger, m *metrics.Collector, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		source:    source,
		writer:    w,
		logger:    logger,
		metrics:   m,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	if p == nil {
		return
	}
	if c, ok := p.writer.(interface{ Close() error }); ok {
		defer c.Close()
	}

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Drain(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("outbox publish failed", "err", err)
			}
		}
	}
}

// Drain publishes full batches until the backlog is shorter than one batch and returns the
// number of events sent.
func (p *Publisher) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := p.source.Dispatch(ctx, p.batchSize, p.deliver)
		total += n
		if err != nil {
			return total, err
		}
		if p.metrics != nil && n > 0 {
			p.metrics.EventsPublishedTotal.Add(float64(n))
		}
		if n < p.batchSize {
			return total, nil
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, records []Record) error {
	ctx, span := otel.Tracer("slotwise/outbox").Start(ctx, "outbox.publish")
	defer span.End()
	span.SetAttributes(attribute.Int("messaging.batch.message_count", len(records)))

	msgs := make([]kafka.Message, len(records))
	for i, r := range records {
		msgs[i] = toMessage(ctx, r)
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// toMessage restores the trace context captured at insert time so consumers join the
// originating trace.
func toMessage(ctx context.Context, r Record) kafka.Message {
	msgCtx := otelx.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate)
	return kafkax.NewEventMessage(msgCtx, kafkax.EventMeta{EventID: r.EventID, EventType: r.EventType}, r.AggregateID, r.Payload)
}

package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotwise/libs/db"
	otelx "github.com/md-rashed-zaman/slotwise/libs/otel"
)

// Record is a stored event awaiting publication. Field order follows pendingColumns.
type Record struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Traceparent   string
	Tracestate    string
	CreatedAt     time.Time
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stages evt on q together with the trace context of ctx. Pass the transaction that
// carries the state change so both commit together.
func (r *Repository) Insert(ctx context.Context, q db.Querier, evt Event) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := q.Exec(ctx, `
		INSERT INTO outbox_events (event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, evt.EventID, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, traceparent, tracestate)
	return err
}

// Append stages evt in a transaction of its own.
func (r *Repository) Append(ctx context.Context, evt Event) error {
	return r.Insert(ctx, r.pool, evt)
}

// Dispatch locks up to limit pending events, oldest first, and hands them to deliver. Rows are
// stamped published only when deliver succeeds; otherwise they stay pending for the next call.
// Other dispatchers skip rows locked here.
func (r *Repository) Dispatch(ctx context.Context, limit int, deliver func(context.Context, []Record) error) (int, error) {
	var n int
	err := r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT `+pendingColumns+`
			FROM outbox_events
			WHERE published_at IS NULL
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		`, limit)
		if err != nil {
			return err
		}
		pending, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Record])
		if err != nil || len(pending) == 0 {
			return err
		}
		if err := deliver(ctx, pending); err != nil {
			return err
		}

		ids := make([]int64, len(pending))
		for i, rec := range pending {
			ids[i] = rec.ID
		}
		if _, err := tx.Exec(ctx, `UPDATE outbox_events SET published_at = now() WHERE id = ANY($1)`, ids); err != nil {
			return err
		}
		n = len(pending)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

const pendingColumns = `id, event_id::text, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at`

package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotwise/libs/db"
	"github.com/md-rashed-zaman/slotwise/libs/kafkax"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/consumer"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/inbox"
	"github.com/segmentio/kafka-go"
)

const TopicServiceUpserted = "catalog.service.upserted.v1"

// maxDurationMinutes rejects services longer than a day; they could never be booked.
const maxDurationMinutes = 24 * 60

type serviceUpserted struct {
	BusinessID      string    `json:"business_id"`
	ServiceID       string    `json:"service_id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"`
	Active          *bool     `json:"active"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DecodeServiceUpserted validates a catalog event. Failures wrap consumer.ErrPoison.
func DecodeServiceUpserted(msg kafka.Message) (Service, error) {
	var evt serviceUpserted
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return Service{}, fmt.Errorf("%w: %v", consumer.ErrPoison, err)
	}
	evt.BusinessID = strings.TrimSpace(evt.BusinessID)
	evt.ServiceID = strings.TrimSpace(evt.ServiceID)
	if evt.BusinessID == "" || evt.ServiceID == "" {
		return Service{}, fmt.Errorf("%w: business_id and service_id required", consumer.ErrPoison)
	}
	if evt.DurationMinutes <= 0 || evt.DurationMinutes > maxDurationMinutes {
		return Service{}, fmt.Errorf("%w: duration_minutes %d out of range", consumer.ErrPoison, evt.DurationMinutes)
	}
	s := Service{
		BusinessID:      evt.BusinessID,
		ServiceID:       evt.ServiceID,
		Name:            evt.Name,
		DurationMinutes: evt.DurationMinutes,
		Active:          true,
		UpdatedAt:       evt.UpdatedAt,
	}
	if evt.Active != nil {
		s.Active = *evt.Active
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = msg.Time
	}
	return s, nil
}

// Projector applies catalog events to the local mirror exactly once.
type Projector struct {
	pool  *db.Pool
	repo  *Repository
	inbox *inbox.Repository
}

func NewProjector(pool *db.Pool, repo *Repository, inboxRepo *inbox.Repository) *Projector {
	return &Projector{pool: pool, repo: repo, inbox: inboxRepo}
}

func (p *Projector) Handle(ctx context.Context, msg kafka.Message) error {
	svc, err := DecodeServiceUpserted(msg)
	if err != nil {
		return err
	}
	meta := kafkax.ExtractEventMeta(msg)
	return p.pool.WithTx(ctx, func(tx pgx.Tx) error {
		fresh, err := p.inbox.Claim(ctx, tx, meta.EventID, meta.EventType)
		if err != nil {
			return err
		}
		if !fresh {
			return consumer.ErrDuplicate
		}
		return p.repo.Upsert(ctx, tx, svc)
	})
}

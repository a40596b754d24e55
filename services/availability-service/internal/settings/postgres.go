package settings

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotwise/libs/db"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/schedule"
)

type PostgresStore struct {
	pool *db.Pool
}

func NewPostgresStore(pool *db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, businessID string) (schedule.Settings, error) {
	var (
		doc       []byte
		updatedAt time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT document, updated_at
		FROM availability_settings
		WHERE business_id = $1
	`, businessID).Scan(&doc, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return schedule.Settings{}, ErrNotFound
	}
	if err != nil {
		return schedule.Settings{}, err
	}
	out, err := decode(businessID, doc)
	if err != nil {
		return schedule.Settings{}, err
	}
	out.UpdatedAt = updatedAt
	return out, nil
}

func (s *PostgresStore) Save(ctx context.Context, in schedule.Settings) error {
	doc, err := encode(in)
	if err != nil {
		return err
	}
	updatedAt := in.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO availability_settings (business_id, document, updated_at)
		VALUES ($1, $2::jsonb, $3)
		ON CONFLICT (business_id) DO UPDATE
		SET document = EXCLUDED.document,
			updated_at = EXCLUDED.updated_at
	`, in.BusinessID, string(doc), updatedAt)
	return err
}

package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotwise/libs/db"
)

// Service is the local copy of a bookable service owned by the catalog.
type Service struct {
	BusinessID      string
	ServiceID       string
	Name            string
	DurationMinutes int
	Active          bool
	UpdatedAt       time.Time
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert keeps the newest version of a service. Older events arriving late are ignored.
func (r *Repository) Upsert(ctx context.Context, q db.Querier, s Service) error {
	_, err := q.Exec(ctx, `
		INSERT INTO service_catalog (business_id, service_id, name, duration_minutes, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (business_id, service_id) DO UPDATE
		SET name = EXCLUDED.name,
			duration_minutes = EXCLUDED.duration_minutes,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
		WHERE service_catalog.updated_at <= EXCLUDED.updated_at
	`, s.BusinessID, s.ServiceID, s.Name, s.DurationMinutes, s.Active, s.UpdatedAt)
	return err
}

// Duration reports the length of an active service. ok is false for unknown or retired services.
func (r *Repository) Duration(ctx context.Context, businessID, serviceID string) (int, bool, error) {
	var mins int
	err := r.pool.QueryRow(ctx, `
		SELECT duration_minutes
		FROM service_catalog
		WHERE business_id = $1 AND service_id = $2 AND active
	`, businessID, serviceID).Scan(&mins)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return mins, true, nil
}

package inbox

import (
	"context"

	"github.com/md-rashed-zaman/slotwise/libs/db"
)

// Repository tracks consumed event ids. It holds no pool; every call runs on the caller's
// transaction so the claim shares the fate of the projection it guards.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Claim reports whether eventID is new. A false result means the event was handled before
// and the caller should skip it.
func (r *Repository) Claim(ctx context.Context, q db.Querier, eventID, eventType string) (bool, error) {
	tag, err := q.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

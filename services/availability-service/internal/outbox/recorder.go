package outbox

import (
	"context"

	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/schedule"
)

// SettingsRecorder emits availability.settings.updated.v1 after a settings save.
type SettingsRecorder struct {
	repo *Repository
}

func NewSettingsRecorder(repo *Repository) *SettingsRecorder {
	return &SettingsRecorder{repo: repo}
}

func (r *SettingsRecorder) SettingsUpdated(ctx context.Context, s schedule.Settings) error {
	evt, err := NewEvent(AggregateSettings, s.BusinessID, EventSettingsUpdated, SettingsUpdated{
		BusinessID:         s.BusinessID,
		BufferMinutes:      s.BufferMinutes,
		AdvanceBookingDays: s.AdvanceBookingDays,
		MinAdvanceHours:    s.MinAdvanceHours,
		Overrides:          len(s.Overrides),
		Blocks:             len(s.Blocks),
		UpdatedAt:          s.UpdatedAt,
	})
	if err != nil {
		return err
	}
	return r.repo.Append(ctx, evt)
}

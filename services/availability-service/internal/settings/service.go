package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotwise/libs/metrics"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/schedule"
)

// ErrSettingsUnavailable means settings could not be read, as opposed to never saved.
var ErrSettingsUnavailable = errors.New("availability settings unavailable")

type ChangeRecorder interface {
	SettingsUpdated(ctx context.Context, s schedule.Settings) error
}

type Service struct {
	store   Store
	events  ChangeRecorder
	logger  *slog.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

type Option func(*Service)

func WithChangeRecorder(r ChangeRecorder) Option {
	return func(s *Service) { s.events = r }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{store: store, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetAvailabilitySettings never fails: unknown businesses and read failures both yield the
// defaults, the latter with an error log.
func (s *Service) GetAvailabilitySettings(ctx context.Context, businessID string) schedule.Settings {
	out, err := s.Load(ctx, businessID)
	if err != nil {
		s.logger.Error("load availability settings failed, serving defaults", "business_id", businessID, "err", err)
		return schedule.DefaultSettings(businessID)
	}
	return out
}

// Load returns stored settings, or the defaults when none were saved. A store failure is
// reported as ErrSettingsUnavailable so callers can tell "fully booked" from "could not load".
func (s *Service) Load(ctx context.Context, businessID string) (schedule.Settings, error) {
	out, err := s.store.Get(ctx, businessID)
	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, ErrNotFound):
		if s.metrics != nil {
			s.metrics.SettingsReadsTotal.WithLabelValues("default").Inc()
		}
		return schedule.DefaultSettings(businessID), nil
	default:
		return schedule.Settings{}, fmt.Errorf("%w: %v", ErrSettingsUnavailable, err)
	}
}

// SaveAvailabilitySettings replaces the business's settings wholesale. Last writer wins.
func (s *Service) SaveAvailabilitySettings(ctx context.Context, in schedule.Settings) error {
	if in.Overrides == nil {
		in.Overrides = map[schedule.Date]schedule.DateOverride{}
	}
	if in.Blocks == nil {
		in.Blocks = map[schedule.Date]schedule.DateBlock{}
	}
	if err := in.Validate(); err != nil {
		return err
	}
	// Microseconds match timestamptz, so tiers compare equal after a round trip.
	in.UpdatedAt = s.now().UTC().Truncate(time.Microsecond)

	if err := s.store.Save(ctx, in); err != nil {
		return fmt.Errorf("save availability settings: %w", err)
	}
	s.logger.Info("availability settings saved",
		"business_id", in.BusinessID,
		"overrides", len(in.Overrides),
		"blocks", len(in.Blocks),
	)

	if s.events != nil {
		if err := s.events.SettingsUpdated(ctx, in); err != nil {
			s.logger.Warn("settings change event not recorded", "business_id", in.BusinessID, "err", err)
		}
	}
	return nil
}

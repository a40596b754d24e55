package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotwise/libs/metrics"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/schedule"
	"github.com/sony/gobreaker/v2"
)

type BreakerOptions struct {
	// ConsecutiveFailures trips the breaker open.
	ConsecutiveFailures uint32
	// OpenFor is how long the breaker stays open before letting a probe through.
	OpenFor time.Duration
}

// FallbackStore reads and writes through primary, guarded by a circuit breaker, and falls back
// to secondary when primary fails. Successful primary operations are mirrored into secondary.
// Writes that only reached secondary carry a newer UpdatedAt than primary's copy and are
// written back on the next successful primary read.
type FallbackStore struct {
	primary   Store
	secondary Store
	breaker   *gobreaker.CircuitBreaker[schedule.Settings]
	logger    *slog.Logger
	metrics   *metrics.Collector
}

func NewFallbackStore(primary, secondary Store, opts BreakerOptions, logger *slog.Logger, m *metrics.Collector) *FallbackStore {
	if opts.ConsecutiveFailures == 0 {
		opts.ConsecutiveFailures = 5
	}
	if opts.OpenFor <= 0 {
		opts.OpenFor = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	f := &FallbackStore{primary: primary, secondary: secondary, logger: logger, metrics: m}
	f.breaker = gobreaker.NewCircuitBreaker[schedule.Settings](gobreaker.Settings{
		Name:        "settings-primary",
		MaxRequests: 1,
		Timeout:     opts.OpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= opts.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("settings breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			if m != nil {
				m.BreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	if m != nil {
		m.BreakerState.WithLabelValues("settings-primary").Set(float64(gobreaker.StateClosed))
	}
	return f
}

func (f *FallbackStore) State() gobreaker.State {
	return f.breaker.State()
}

func (f *FallbackStore) Get(ctx context.Context, businessID string) (schedule.Settings, error) {
	s, err := f.breaker.Execute(func() (schedule.Settings, error) {
		return f.primary.Get(ctx, businessID)
	})
	if err == nil {
		f.read("primary")
		return f.reconcile(ctx, s), nil
	}
	if errors.Is(err, ErrNotFound) {
		// Only a save that never reached primary leaves a stamped copy here.
		local, lErr := f.secondary.Get(ctx, businessID)
		if lErr != nil || local.UpdatedAt.IsZero() {
			return schedule.Settings{}, ErrNotFound
		}
		f.read("secondary")
		f.replay(ctx, local)
		return local, nil
	}

	f.logger.Warn("settings primary read failed, using secondary", "business_id", businessID, "err", err)
	s, sErr := f.secondary.Get(ctx, businessID)
	if sErr != nil {
		if !errors.Is(sErr, ErrNotFound) {
			f.logger.Error("settings secondary read failed", "business_id", businessID, "err", sErr)
		}
		return schedule.Settings{}, fmt.Errorf("settings primary unavailable and no usable local copy: %w", err)
	}
	f.read("secondary")
	return s, nil
}

// reconcile compares a primary read with the local copy. A newer local copy is a write
// acknowledged while primary was down: it is served and written back. Otherwise primary is
// mirrored locally.
func (f *FallbackStore) reconcile(ctx context.Context, s schedule.Settings) schedule.Settings {
	local, err := f.secondary.Get(ctx, s.BusinessID)
	switch {
	case err == nil && local.UpdatedAt.After(s.UpdatedAt):
		f.replay(ctx, local)
		return local
	case err == nil && local.UpdatedAt.Equal(s.UpdatedAt):
		return s
	case err != nil && !errors.Is(err, ErrNotFound):
		f.logger.Warn("settings secondary read failed", "business_id", s.BusinessID, "err", err)
	}
	if mErr := f.secondary.Save(ctx, s); mErr != nil {
		f.logger.Warn("mirror settings to secondary failed", "business_id", s.BusinessID, "err", mErr)
	}
	return s
}

func (f *FallbackStore) replay(ctx context.Context, local schedule.Settings) {
	_, err := f.breaker.Execute(func() (schedule.Settings, error) {
		return schedule.Settings{}, f.primary.Save(ctx, local)
	})
	if err != nil {
		f.logger.Warn("replay of local settings to primary failed", "business_id", local.BusinessID, "err", err)
		return
	}
	f.write("replay")
	f.logger.Info("replayed settings saved while primary was down", "business_id", local.BusinessID, "updated_at", local.UpdatedAt)
}

func (f *FallbackStore) Save(ctx context.Context, s schedule.Settings) error {
	_, err := f.breaker.Execute(func() (schedule.Settings, error) {
		return schedule.Settings{}, f.primary.Save(ctx, s)
	})
	if err == nil {
		f.write("primary")
		if mErr := f.secondary.Save(ctx, s); mErr != nil {
			f.logger.Warn("mirror settings to secondary failed", "business_id", s.BusinessID, "err", mErr)
		}
		return nil
	}

	f.logger.Warn("settings primary write failed, writing secondary only", "business_id", s.BusinessID, "err", err)
	if sErr := f.secondary.Save(ctx, s); sErr != nil {
		return fmt.Errorf("save settings %s: primary: %v: %w", s.BusinessID, err, sErr)
	}
	f.write("secondary")
	return nil
}

func (f *FallbackStore) read(tier string) {
	if f.metrics != nil {
		f.metrics.SettingsReadsTotal.WithLabelValues(tier).Inc()
	}
}

func (f *FallbackStore) write(tier string) {
	if f.metrics != nil {
		f.metrics.SettingsWritesTotal.WithLabelValues(tier).Inc()
	}
}

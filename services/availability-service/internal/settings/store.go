package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/schedule"
)

var ErrNotFound = errors.New("availability settings not found")

// Store persists one settings document per business. Save is a full replace.
type Store interface {
	Get(ctx context.Context, businessID string) (schedule.Settings, error)
	Save(ctx context.Context, s schedule.Settings) error
}

func encode(s schedule.Settings) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode settings %s: %w", s.BusinessID, err)
	}
	return b, nil
}

func decode(businessID string, doc []byte) (schedule.Settings, error) {
	var s schedule.Settings
	if err := json.Unmarshal(doc, &s); err != nil {
		return schedule.Settings{}, fmt.Errorf("decode settings %s: %w", businessID, err)
	}
	s.BusinessID = businessID
	if err := s.Validate(); err != nil {
		return schedule.Settings{}, fmt.Errorf("stored settings %s: %w", businessID, err)
	}
	return s, nil
}

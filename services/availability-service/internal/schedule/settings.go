package schedule

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	DefaultBufferMinutes      = 15
	DefaultAdvanceBookingDays = 30
	DefaultMinAdvanceHours    = 24
)

// Settings is the availability aggregate owned by one business. Overrides and Blocks are keyed
// by the date they apply to, so each date has at most one of each.
type Settings struct {
	BusinessID         string
	WeeklyTemplate     WeeklyTemplate
	Overrides          map[Date]DateOverride
	Blocks             map[Date]DateBlock
	BufferMinutes      int
	AdvanceBookingDays int
	MinAdvanceHours    int
	UpdatedAt          time.Time
}

// Upper bounds keep window arithmetic well inside time.Duration.
const (
	MaxAdvanceBookingDays = 2 * 366
	MaxMinAdvanceHours    = 24 * 366
)

// DefaultSettings is what a business gets before it saves anything: weekdays 09:00-17:00.
func DefaultSettings(businessID string) Settings {
	var w WeeklyTemplate
	for d := time.Monday; d <= time.Friday; d++ {
		w[d] = DaySchedule{IsActive: true, TimeSlots: []TimeRange{{Start: 9 * 60, End: 17 * 60}}}
	}
	w[time.Saturday] = DaySchedule{}
	w[time.Sunday] = DaySchedule{}
	return Settings{
		BusinessID:         businessID,
		WeeklyTemplate:     w,
		Overrides:          map[Date]DateOverride{},
		Blocks:             map[Date]DateBlock{},
		BufferMinutes:      DefaultBufferMinutes,
		AdvanceBookingDays: DefaultAdvanceBookingDays,
		MinAdvanceHours:    DefaultMinAdvanceHours,
	}
}

func (s Settings) Override(d Date) (DateOverride, bool) {
	o, ok := s.Overrides[d]
	return o, ok
}

func (s Settings) Block(d Date) (DateBlock, bool) {
	b, ok := s.Blocks[d]
	return b, ok
}

// Validate reports every invalid field at once.
func (s Settings) Validate() error {
	var p problems
	if strings.TrimSpace(s.BusinessID) == "" {
		p.add("business_id is required")
	}
	if s.BufferMinutes < 0 || s.BufferMinutes > MinutesPerDay {
		p.add(fmt.Sprintf("buffer_minutes must be between 0 and %d", MinutesPerDay))
	}
	if s.AdvanceBookingDays < 1 || s.AdvanceBookingDays > MaxAdvanceBookingDays {
		p.add(fmt.Sprintf("advance_booking_days must be between 1 and %d", MaxAdvanceBookingDays))
	}
	if s.MinAdvanceHours < 0 || s.MinAdvanceHours > MaxMinAdvanceHours {
		p.add(fmt.Sprintf("min_advance_hours must be between 0 and %d", MaxMinAdvanceHours))
	}
	for wd, day := range s.WeeklyTemplate {
		checkRanges(&p, "weekly_template."+weekdayKeys[wd], day.TimeSlots)
	}
	for key, o := range s.Overrides {
		if o.Date != key {
			p.add(fmt.Sprintf("overrides[%s]: date mismatch %s", key, o.Date))
		}
		checkRanges(&p, "overrides["+key.String()+"]", o.TimeSlots)
	}
	for key, b := range s.Blocks {
		if b.Date != key {
			p.add(fmt.Sprintf("blocks[%s]: date mismatch %s", key, b.Date))
		}
		checkRanges(&p, "blocks["+key.String()+"]", b.TimeSlots)
	}
	sort.Strings(p)
	return p.err()
}

func checkRanges(p *problems, path string, ranges []TimeRange) {
	for i, r := range ranges {
		if err := r.check(); err != nil {
			p.add(fmt.Sprintf("%s.time_slots[%d]: %v", path, i, err))
		}
	}
}

type settingsJSON struct {
	BusinessID         string         `json:"business_id"`
	WeeklyTemplate     WeeklyTemplate `json:"weekly_template"`
	Overrides          []DateOverride `json:"overrides"`
	Blocks             []DateBlock    `json:"blocks"`
	BufferMinutes      int            `json:"buffer_minutes"`
	AdvanceBookingDays int            `json:"advance_booking_days"`
	MinAdvanceHours    int            `json:"min_advance_hours"`
	UpdatedAt          *time.Time     `json:"updated_at,omitempty"`
}

// MarshalJSON writes overrides and blocks as arrays sorted by date.
func (s Settings) MarshalJSON() ([]byte, error) {
	w := settingsJSON{
		BusinessID:         s.BusinessID,
		WeeklyTemplate:     s.WeeklyTemplate,
		Overrides:          make([]DateOverride, 0, len(s.Overrides)),
		Blocks:             make([]DateBlock, 0, len(s.Blocks)),
		BufferMinutes:      s.BufferMinutes,
		AdvanceBookingDays: s.AdvanceBookingDays,
		MinAdvanceHours:    s.MinAdvanceHours,
	}
	if !s.UpdatedAt.IsZero() {
		t := s.UpdatedAt
		w.UpdatedAt = &t
	}
	for _, o := range s.Overrides {
		if o.TimeSlots == nil {
			o.TimeSlots = []TimeRange{}
		}
		w.Overrides = append(w.Overrides, o)
	}
	for _, b := range s.Blocks {
		if b.TimeSlots == nil {
			b.TimeSlots = []TimeRange{}
		}
		w.Blocks = append(w.Blocks, b)
	}
	sort.Slice(w.Overrides, func(i, j int) bool { return w.Overrides[i].Date.Before(w.Overrides[j].Date) })
	sort.Slice(w.Blocks, func(i, j int) bool { return w.Blocks[i].Date.Before(w.Blocks[j].Date) })
	return json.Marshal(w)
}

// UnmarshalJSON rejects duplicate dates. Range shape errors surface from TimeRange itself.
func (s *Settings) UnmarshalJSON(b []byte) error {
	var w settingsJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	out := Settings{
		BusinessID:         w.BusinessID,
		WeeklyTemplate:     w.WeeklyTemplate,
		Overrides:          make(map[Date]DateOverride, len(w.Overrides)),
		Blocks:             make(map[Date]DateBlock, len(w.Blocks)),
		BufferMinutes:      w.BufferMinutes,
		AdvanceBookingDays: w.AdvanceBookingDays,
		MinAdvanceHours:    w.MinAdvanceHours,
	}
	if w.UpdatedAt != nil {
		out.UpdatedAt = *w.UpdatedAt
	}
	var p problems
	for _, o := range w.Overrides {
		if o.Date.IsZero() {
			p.add("overrides: date is required")
			continue
		}
		if _, dup := out.Overrides[o.Date]; dup {
			p.add(fmt.Sprintf("overrides: duplicate date %s", o.Date))
			continue
		}
		out.Overrides[o.Date] = o
	}
	for _, bl := range w.Blocks {
		if bl.Date.IsZero() {
			p.add("blocks: date is required")
			continue
		}
		if _, dup := out.Blocks[bl.Date]; dup {
			p.add(fmt.Sprintf("blocks: duplicate date %s", bl.Date))
			continue
		}
		out.Blocks[bl.Date] = bl
	}
	if err := p.err(); err != nil {
		return err
	}
	*s = out
	return nil
}

package schedule

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimeRange is a same-day, half-open interval [Start, End).
type TimeRange struct {
	Start Clock
	End   Clock
}

func NewTimeRange(start, end string) (TimeRange, error) {
	var p problems
	s, err := ParseClock(start)
	if err != nil {
		p.add("start: " + err.Error())
	}
	e, err := ParseClock(end)
	if err != nil {
		p.add("end: " + err.Error())
	}
	if len(p) > 0 {
		return TimeRange{}, p.err()
	}
	r := TimeRange{Start: s, End: e}
	if err := r.check(); err != nil {
		return TimeRange{}, &ValidationError{Fields: []string{err.Error()}}
	}
	return r, nil
}

func MustTimeRange(start, end string) TimeRange {
	r, err := NewTimeRange(start, end)
	if err != nil {
		panic(err)
	}
	return r
}

func (r TimeRange) check() error {
	if r.Start < 0 || r.End > EndOfDay {
		return fmt.Errorf("range %s outside the day", r)
	}
	if r.End <= r.Start {
		return fmt.Errorf("range %s ends before it starts", r)
	}
	return nil
}

func (r TimeRange) Minutes() int { return int(r.End - r.Start) }

// Overlaps reports whether two half-open ranges share at least one minute.
func (r TimeRange) Overlaps(o TimeRange) bool {
	return r.Start < o.End && o.Start < r.End
}

func (r TimeRange) String() string {
	return r.Start.String() + "-" + r.End.String()
}

type timeRangeJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (r TimeRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(timeRangeJSON{Start: r.Start.String(), End: r.End.String()})
}

func (r *TimeRange) UnmarshalJSON(b []byte) error {
	var w timeRangeJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	v, err := NewTimeRange(w.Start, w.End)
	if err != nil {
		return err
	}
	*r = v
	return nil
}

type DaySchedule struct {
	IsActive  bool        `json:"is_active"`
	TimeSlots []TimeRange `json:"time_slots"`
}

// Open reports whether the day can take bookings at all.
func (d DaySchedule) Open() bool {
	return d.IsActive && len(d.TimeSlots) > 0
}

// WeeklyTemplate is the recurring schedule, indexed by time.Weekday.
type WeeklyTemplate [7]DaySchedule

var weekdayKeys = [7]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// jsonOrder lists weekdays Monday first, the order owners think in.
var jsonOrder = [7]time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday}

func (w WeeklyTemplate) Day(d time.Weekday) DaySchedule {
	return w[d]
}

func (w WeeklyTemplate) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, wd := range jsonOrder {
		if i > 0 {
			b.WriteByte(',')
		}
		day := w[wd]
		if day.TimeSlots == nil {
			day.TimeSlots = []TimeRange{}
		}
		v, err := json.Marshal(day)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&b, "%q:%s", weekdayKeys[wd], v)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

// UnmarshalJSON accepts lower-case English weekday keys. Missing days are inactive.
func (w *WeeklyTemplate) UnmarshalJSON(b []byte) error {
	var raw map[string]DaySchedule
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var out WeeklyTemplate
	var p problems
	for key, day := range raw {
		idx := weekdayIndex(key)
		if idx < 0 {
			p.add(fmt.Sprintf("weekly_template: unknown weekday %q", key))
			continue
		}
		out[idx] = day
	}
	if err := p.err(); err != nil {
		return err
	}
	*w = out
	return nil
}

func weekdayIndex(key string) int {
	key = strings.ToLower(strings.TrimSpace(key))
	for i, k := range weekdayKeys {
		if k == key {
			return i
		}
	}
	return -1
}

// DateOverride replaces the weekly template for one date.
type DateOverride struct {
	Date      Date        `json:"date"`
	IsActive  bool        `json:"is_active"`
	TimeSlots []TimeRange `json:"time_slots"`
}

func (o DateOverride) Schedule() DaySchedule {
	return DaySchedule{IsActive: o.IsActive, TimeSlots: o.TimeSlots}
}

// DateBlock marks a whole date or some of its ranges unbookable.
type DateBlock struct {
	Date      Date        `json:"date"`
	FullDay   bool        `json:"full_day"`
	TimeSlots []TimeRange `json:"time_slots"`
}

package schedule

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{in: "00:00", want: 0},
		{in: "09:30", want: 570},
		{in: "23:59", want: 1439},
		{in: "24:00", want: EndOfDay},
		{in: "24:01", wantErr: true},
		{in: "9:30", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "ab:cd", wantErr: true},
		{in: "-1:00", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseClock(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseClock(%q): expected error, got %v", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseClock(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseClock(%q) = %d, want %d", tc.in, got, tc.want)
		}
		if got.String() != tc.in {
			t.Fatalf("round trip %q -> %q", tc.in, got.String())
		}
	}
}

func TestNewTimeRangeRejectsMalformed(t *testing.T) {
	for _, tc := range [][2]string{
		{"10:00", "09:00"},
		{"10:00", "10:00"},
		{"25:00", "26:00"},
		{"24:00", "24:00"},
		{"x", "10:00"},
	} {
		_, err := NewTimeRange(tc[0], tc[1])
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("NewTimeRange(%q, %q): expected ValidationError, got %v", tc[0], tc[1], err)
		}
	}

	r, err := NewTimeRange("22:00", "24:00")
	if err != nil {
		t.Fatalf("range ending at midnight: %v", err)
	}
	if r.Minutes() != 120 {
		t.Fatalf("expected 120 minutes, got %d", r.Minutes())
	}
}

func TestTimeRangeOverlapIsHalfOpen(t *testing.T) {
	a := MustTimeRange("09:00", "10:00")
	if a.Overlaps(MustTimeRange("10:00", "11:00")) {
		t.Fatalf("adjacent ranges must not overlap")
	}
	if !a.Overlaps(MustTimeRange("09:59", "10:30")) {
		t.Fatalf("expected overlap")
	}
}

func TestTimeRangeJSONValidates(t *testing.T) {
	var r TimeRange
	err := json.Unmarshal([]byte(`{"start":"12:00","end":"11:00"}`), &r)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestDate(t *testing.T) {
	d := MustParseDate("2024-01-15")
	if d.Weekday() != time.Monday {
		t.Fatalf("expected Monday, got %s", d.Weekday())
	}
	if got := d.AddDays(17).String(); got != "2024-02-01" {
		t.Fatalf("AddDays crossed month wrong: %s", got)
	}
	if _, err := ParseDate("2024-02-30"); err == nil {
		t.Fatalf("expected invalid date error")
	}
	at := d.At(MustParseClock("13:45"), time.UTC)
	if at.Hour() != 13 || at.Minute() != 45 || at.Day() != 15 {
		t.Fatalf("unexpected At: %s", at)
	}
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings("biz-1")
	if err := s.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	for d := time.Monday; d <= time.Friday; d++ {
		day := s.WeeklyTemplate.Day(d)
		if !day.Open() || day.TimeSlots[0].String() != "09:00-17:00" {
			t.Fatalf("%s: unexpected default %+v", d, day)
		}
	}
	if s.WeeklyTemplate.Day(time.Saturday).Open() || s.WeeklyTemplate.Day(time.Sunday).Open() {
		t.Fatalf("weekend must be closed by default")
	}
	if s.BufferMinutes != 15 || s.AdvanceBookingDays != 30 || s.MinAdvanceHours != 24 {
		t.Fatalf("unexpected default knobs: %+v", s)
	}
}

func TestSettingsValidateListsEveryField(t *testing.T) {
	s := DefaultSettings("")
	s.BufferMinutes = -1
	s.AdvanceBookingDays = 0
	s.MinAdvanceHours = -2
	s.WeeklyTemplate[time.Monday].TimeSlots = []TimeRange{{Start: 600, End: 540}}

	err := s.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Fields) != 5 {
		t.Fatalf("expected 5 problems, got %d: %v", len(verr.Fields), verr.Fields)
	}
}

func TestSettingsValidateUpperBounds(t *testing.T) {
	cases := []struct {
		name  string
		apply func(*Settings)
		field string
	}{
		{"huge buffer", func(s *Settings) { s.BufferMinutes = math.MaxInt - 10 }, "buffer_minutes"},
		{"buffer over a day", func(s *Settings) { s.BufferMinutes = MinutesPerDay + 1 }, "buffer_minutes"},
		{"huge notice", func(s *Settings) { s.MinAdvanceHours = math.MaxInt / 2 }, "min_advance_hours"},
		{"huge horizon", func(s *Settings) { s.AdvanceBookingDays = MaxAdvanceBookingDays + 1 }, "advance_booking_days"},
	}
	for _, tc := range cases {
		s := DefaultSettings("biz-1")
		tc.apply(&s)
		var verr *ValidationError
		if err := s.Validate(); !errors.As(err, &verr) {
			t.Fatalf("%s: expected ValidationError, got %v", tc.name, err)
		}
		if len(verr.Fields) != 1 || !strings.HasPrefix(verr.Fields[0], tc.field) {
			t.Fatalf("%s: unexpected problems %v", tc.name, verr.Fields)
		}
	}

	s := DefaultSettings("biz-1")
	s.BufferMinutes = MinutesPerDay
	s.MinAdvanceHours = MaxMinAdvanceHours
	s.AdvanceBookingDays = MaxAdvanceBookingDays
	if err := s.Validate(); err != nil {
		t.Fatalf("limits themselves must be accepted: %v", err)
	}
}

func TestSettingsJSONRoundTrip(t *testing.T) {
	s := DefaultSettings("biz-1")
	d := MustParseDate("2024-12-24")
	s.Overrides[d] = DateOverride{Date: d, IsActive: true, TimeSlots: []TimeRange{MustTimeRange("10:00", "14:00")}}
	b := MustParseDate("2024-12-25")
	s.Blocks[b] = DateBlock{Date: b, FullDay: true}

	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"monday":{"is_active":true,"time_slots":[{"start":"09:00","end":"17:00"}]}`) {
		t.Fatalf("unexpected weekly template encoding: %s", raw)
	}

	var got Settings
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if o, ok := got.Override(d); !ok || o.TimeSlots[0].String() != "10:00-14:00" {
		t.Fatalf("override lost: %+v", got.Overrides)
	}
	if bl, ok := got.Block(b); !ok || !bl.FullDay {
		t.Fatalf("block lost: %+v", got.Blocks)
	}
	again, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("marshal again: %v", err)
	}
	if string(again) != string(raw) {
		t.Fatalf("encoding not stable:\n%s\n%s", raw, again)
	}
}

func TestSettingsJSONRejectsDuplicateDates(t *testing.T) {
	body := `{"business_id":"b","weekly_template":{},"overrides":[
		{"date":"2024-01-01","is_active":false,"time_slots":[]},
		{"date":"2024-01-01","is_active":true,"time_slots":[]}
	],"blocks":[],"buffer_minutes":0,"advance_booking_days":1,"min_advance_hours":0}`
	var s Settings
	err := json.Unmarshal([]byte(body), &s)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !strings.Contains(verr.Error(), "duplicate date 2024-01-01") {
		t.Fatalf("unexpected message: %v", verr)
	}
}

func TestWeeklyTemplateRejectsUnknownDay(t *testing.T) {
	var w WeeklyTemplate
	if err := json.Unmarshal([]byte(`{"funday":{"is_active":true,"time_slots":[]}}`), &w); err == nil {
		t.Fatalf("expected error for unknown weekday")
	}
}

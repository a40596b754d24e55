package availability

import "github.com/md-rashed-zaman/slotwise/services/availability-service/internal/schedule"

type DayStatus string

const (
	DayOpen    DayStatus = "open"
	DayClosed  DayStatus = "closed"
	DayBlocked DayStatus = "blocked"
)

// Day is the effective schedule for one date after precedence has been applied.
type Day struct {
	Date   schedule.Date
	Status DayStatus
	// Ranges is the chosen schedule (override or template). Empty unless Status is DayOpen.
	Ranges []schedule.TimeRange
	// Blocked holds the partial-block ranges for the date.
	Blocked []schedule.TimeRange
}

// ResolveDaySchedule applies precedence: a full-day block wins, then a date override, then the
// weekly template. Partial blocks are reported separately and subtract from whichever schedule won.
func ResolveDaySchedule(s schedule.Settings, date schedule.Date) Day {
	day := Day{Date: date, Status: DayClosed}

	block, hasBlock := s.Block(date)
	if hasBlock && block.FullDay {
		day.Status = DayBlocked
		return day
	}

	effective := s.WeeklyTemplate.Day(date.Weekday())
	if o, ok := s.Override(date); ok {
		effective = o.Schedule()
	}
	if !effective.Open() {
		return day
	}

	day.Status = DayOpen
	day.Ranges = effective.TimeSlots
	if hasBlock {
		day.Blocked = block.TimeSlots
	}
	return day
}

// StepMinutes is the probing granularity for candidate start times: half the duration,
// kept within [15, 30].
func StepMinutes(durationMinutes int) int {
	step := durationMinutes / 2
	if step < 15 {
		step = 15
	}
	if step > 30 {
		step = 30
	}
	return step
}

// GenerateSlots walks each range from its start in StepMinutes increments and keeps every
// candidate whose occupied interval [s, s+duration+buffer) fits in the range and whose booked
// interval [s, s+duration) overlaps none of the blocked ranges.
//
// Output follows the order of ranges; nothing is sorted.
func GenerateSlots(ranges, blocked []schedule.TimeRange, durationMinutes, bufferMinutes int) []schedule.Clock {
	if durationMinutes <= 0 {
		return nil
	}
	if bufferMinutes < 0 {
		bufferMinutes = 0
	}
	if durationMinutes > schedule.MinutesPerDay || durationMinutes+bufferMinutes > schedule.MinutesPerDay {
		return nil
	}
	step := StepMinutes(durationMinutes)

	var slots []schedule.Clock
	for _, r := range ranges {
		for t := r.Start; t.Add(durationMinutes+bufferMinutes) <= r.End; t = t.Add(step) {
			candidate := schedule.TimeRange{Start: t, End: t.Add(durationMinutes)}
			if !overlapsAny(candidate, blocked) {
				slots = append(slots, t)
			}
		}
	}
	return slots
}

func overlapsAny(c schedule.TimeRange, busy []schedule.TimeRange) bool {
	for _, b := range busy {
		// Half-open: [c.Start,c.End) overlaps [b.Start,b.End) iff c.Start < b.End && b.Start < c.End.
		if c.Overlaps(b) {
			return true
		}
	}
	return false
}

// Slots returns the bookable start times for date. Existing bookings are widened by the buffer
// on both sides so a new booking never starts or ends within bufferMinutes of another one.
func Slots(s schedule.Settings, date schedule.Date, durationMinutes int, bookings []schedule.TimeRange) []schedule.Clock {
	day := ResolveDaySchedule(s, date)
	if day.Status != DayOpen {
		return nil
	}
	busy := make([]schedule.TimeRange, 0, len(day.Blocked)+len(bookings))
	busy = append(busy, day.Blocked...)
	for _, b := range bookings {
		busy = append(busy, widen(b, s.BufferMinutes))
	}
	return GenerateSlots(day.Ranges, busy, durationMinutes, s.BufferMinutes)
}

func widen(r schedule.TimeRange, by int) schedule.TimeRange {
	if by <= 0 {
		return r
	}
	out := schedule.TimeRange{Start: r.Start.Add(-by), End: r.End.Add(by)}
	if out.Start < 0 {
		out.Start = 0
	}
	if out.End > schedule.EndOfDay {
		out.End = schedule.EndOfDay
	}
	return out
}

// IsSlotBookable reports whether at is one of the start times Slots would offer.
func IsSlotBookable(s schedule.Settings, date schedule.Date, at schedule.Clock, durationMinutes int, bookings []schedule.TimeRange) bool {
	for _, slot := range Slots(s, date, durationMinutes, bookings) {
		if slot == at {
			return true
		}
	}
	return false
}

// Format renders start times as "HH:MM". It never returns nil so JSON encodes an empty list.
func Format(slots []schedule.Clock) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.String())
	}
	return out
}

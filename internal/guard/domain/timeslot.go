package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTimeSlot is returned when a time slot fails write-time validation.
var ErrInvalidTimeSlot = errors.New("invalid time slot")

// Weekday is the three-letter day code used on the wire (Mon..Sun).
type Weekday string

const (
	Mon Weekday = "Mon"
	Tue Weekday = "Tue"
	Wed Weekday = "Wed"
	Thu Weekday = "Thu"
	Fri Weekday = "Fri"
	Sat Weekday = "Sat"
	Sun Weekday = "Sun"
)

// AllWeekdays lists day codes in display order.
var AllWeekdays = []Weekday{Mon, Tue, Wed, Thu, Fri, Sat, Sun}

// IsValid returns true for a known day code.
func (w Weekday) IsValid() bool {
	switch w {
	case Mon, Tue, Wed, Thu, Fri, Sat, Sun:
		return true
	default:
		return false
	}
}

// WeekdayOf converts a time.Weekday into the wire day code.
func WeekdayOf(d time.Weekday) Weekday {
	switch d {
	case time.Monday:
		return Mon
	case time.Tuesday:
		return Tue
	case time.Wednesday:
		return Wed
	case time.Thursday:
		return Thu
	case time.Friday:
		return Fri
	case time.Saturday:
		return Sat
	default:
		return Sun
	}
}

// TimeSlot is a recurring weekly window during which a rule applies.
// Times are "HH:MM" on a 24-hour clock. A slot whose end is numerically at or
// before its start wraps past midnight into the following day.
type TimeSlot struct {
	StartTime string    `json:"startTime"`
	EndTime   string    `json:"endTime"`
	Days      []Weekday `json:"days"`
}

// NewTimeSlot constructs a TimeSlot and validates it.
func NewTimeSlot(start, end string, days []Weekday) (TimeSlot, error) {
	s := TimeSlot{StartTime: start, EndTime: end, Days: days}
	if err := s.Validate(); err != nil {
		return TimeSlot{}, err
	}
	return s, nil
}

// Validate checks times and the day set. The day set must be non-empty; the
// engine would otherwise carry a slot that can never match.
func (s TimeSlot) Validate() error {
	if _, err := ClockMinutes(s.StartTime); err != nil {
		return fmt.Errorf("%w: start %q", ErrInvalidTimeSlot, s.StartTime)
	}
	if _, err := ClockMinutes(s.EndTime); err != nil {
		return fmt.Errorf("%w: end %q", ErrInvalidTimeSlot, s.EndTime)
	}
	if len(s.Days) == 0 {
		return fmt.Errorf("%w: empty day set", ErrInvalidTimeSlot)
	}
	for _, d := range s.Days {
		if !d.IsValid() {
			return fmt.Errorf("%w: unknown day %q", ErrInvalidTimeSlot, d)
		}
	}
	return nil
}

// appliesOn reports whether the slot's day set includes the given day.
func (s TimeSlot) appliesOn(day Weekday) bool {
	for _, d := range s.Days {
		if d == day {
			return true
		}
	}
	return false
}

// previousWeekday returns the day before the given day code.
func previousWeekday(day Weekday) Weekday {
	for i, d := range AllWeekdays {
		if d == day {
			return AllWeekdays[(i+6)%7]
		}
	}
	return day
}

// Contains reports whether the instant (day, minutes since midnight) falls
// inside this slot. The day set names the day a window starts on, so an
// overnight window matches from start until midnight on a listed day and
// from midnight until end on the following morning. Malformed times never
// panic; the slot simply does not match.
func (s TimeSlot) Contains(day Weekday, minutes int) bool {
	start, err := ClockMinutes(s.StartTime)
	if err != nil {
		return false
	}
	end, err := ClockMinutes(s.EndTime)
	if err != nil {
		return false
	}
	if end > start {
		return s.appliesOn(day) && minutes >= start && minutes < end
	}
	// wraps past midnight
	if minutes >= start {
		return s.appliesOn(day)
	}
	if minutes < end {
		return s.appliesOn(previousWeekday(day))
	}
	return false
}

// FirstMatchingSlot returns the first slot in order containing the instant.
// Order of the input is the only tie-break between overlapping slots.
func FirstMatchingSlot(slots []TimeSlot, day Weekday, minutes int) (TimeSlot, bool) {
	for _, s := range slots {
		if s.Contains(day, minutes) {
			return s, true
		}
	}
	return TimeSlot{}, false
}

// ClockMinutes parses an "HH:MM" string into minutes since midnight.
func ClockMinutes(clock string) (int, error) {
	h, m, ok := strings.Cut(clock, ":")
	if !ok {
		return 0, fmt.Errorf("malformed clock value %q", clock)
	}
	hours, err := strconv.Atoi(h)
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("malformed hour in %q", clock)
	}
	mins, err := strconv.Atoi(m)
	if err != nil || mins < 0 || mins > 59 {
		return 0, fmt.Errorf("malformed minute in %q", clock)
	}
	return hours*60 + mins, nil
}

// Format12Hour renders a 24-hour "HH:MM" value as "H:MM AM/PM" for
// user-facing verdict reasons. Malformed input is returned unchanged.
func Format12Hour(clock string) string {
	total, err := ClockMinutes(clock)
	if err != nil {
		return clock
	}
	hours, mins := total/60, total%60
	period := "AM"
	if hours >= 12 {
		period = "PM"
	}
	h12 := hours % 12
	if h12 == 0 {
		h12 = 12
	}
	return fmt.Sprintf("%d:%02d %s", h12, mins, period)
}

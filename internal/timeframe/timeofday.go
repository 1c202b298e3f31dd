// Package timeframe provides wall-clock time-of-day values and the windows
// and day plans built from them. Values carry no date or time zone.
package timeframe

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Day is the length of one wall-clock day.
const Day = 24 * time.Hour

var (
	// ErrInvalidTime is returned when a time-of-day cannot be parsed or is out of range.
	ErrInvalidTime = errors.New("invalid time of day")

	// ErrInvalidWindow is returned when a window ends before it starts.
	ErrInvalidWindow = errors.New("invalid time window")

	// ErrInvalidDay is returned for a day-of-week outside Sunday..Saturday.
	ErrInvalidDay = errors.New("invalid day of week")
)

// TimeOfDay is an offset from local midnight in the range [0, 24h).
type TimeOfDay time.Duration

// Midnight is the first instant of the day.
const Midnight TimeOfDay = 0

// Of builds a TimeOfDay from clock components. Values outside a single day
// wrap around midnight.
func Of(hour, minute, second int) TimeOfDay {
	d := time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute + time.Duration(second)*time.Second
	return wrap(d)
}

// NewTimeOfDay builds a TimeOfDay and rejects out-of-range components.
func NewTimeOfDay(hour, minute, second int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 59 {
		return 0, fmt.Errorf("%w: %02d:%02d:%02d", ErrInvalidTime, hour, minute, second)
	}
	return Of(hour, minute, second), nil
}

// ParseTimeOfDay parses "15:04" or "15:04:05".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	layout := "15:04"
	if strings.Count(s, ":") == 2 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return FromTime(t), nil
}

// FromTime returns the wall-clock time of day of t in its own location.
func FromTime(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay(time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(t.Nanosecond()))
}

func wrap(d time.Duration) TimeOfDay {
	d %= Day
	if d < 0 {
		d += Day
	}
	return TimeOfDay(d)
}

// Duration returns the offset from midnight.
func (t TimeOfDay) Duration() time.Duration {
	return time.Duration(t)
}

// Clock returns the hour, minute and second.
func (t TimeOfDay) Clock() (hour, minute, second int) {
	d := time.Duration(t)
	hour = int(d / time.Hour)
	minute = int(d % time.Hour / time.Minute)
	second = int(d % time.Minute / time.Second)
	return
}

// Add returns t+d wrapped around midnight.
func (t TimeOfDay) Add(d time.Duration) TimeOfDay {
	return wrap(time.Duration(t) + d)
}

// Sub returns t-u. The result may be negative.
func (t TimeOfDay) Sub(u TimeOfDay) time.Duration {
	return time.Duration(t) - time.Duration(u)
}

// Before reports whether t is earlier in the day than u.
func (t TimeOfDay) Before(u TimeOfDay) bool { return t < u }

// After reports whether t is later in the day than u.
func (t TimeOfDay) After(u TimeOfDay) bool { return t > u }

// On places t on the calendar date of d, in d's location.
func (t TimeOfDay) On(d time.Time) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, d.Location()).Add(time.Duration(t))
}

// String formats as "15:04", or "15:04:05" when seconds are set.
func (t TimeOfDay) String() string {
	h, m, s := t.Clock()
	if s != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

// MarshalText implements encoding.TextMarshaler.
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

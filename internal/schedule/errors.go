// Package schedule implements the weekly schedule model: events made of day
// plans, cached day-of-week partitions kept coherent under mutation, and the
// daily timers that publish a notification when a plan starts.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/schedule-keeper/backend/internal/timeframe"
)

var (
	// ErrInvalidArgument is returned when a nil collection is assigned or an
	// argument is otherwise unusable.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrOutOfRange is returned for a day outside Sunday (0) .. Saturday (6).
	ErrOutOfRange = errors.New("out of range")

	// ErrSubscriberFull is reported when a channel subscriber's buffer is
	// full and the notification was dropped for it.
	ErrSubscriberFull = errors.New("subscriber buffer full")
)

// checkDay returns ErrOutOfRange for a day that has no partition.
func checkDay(day time.Weekday) error {
	if !timeframe.ValidDay(day) {
		return fmt.Errorf("%w: day %d, the allowed range is between 0 and 6, or from %s to %s",
			ErrOutOfRange, int(day), time.Sunday, time.Saturday)
	}
	return nil
}

// ObserverError describes an observer that failed while receiving a
// notification. It is reported to the broadcaster's error hook and never
// returned to the publisher.
type ObserverError struct {
	SubscriptionID uint64
	Err            error
}

func (e *ObserverError) Error() string {
	return fmt.Sprintf("observer %d: %v", e.SubscriptionID, e.Err)
}

func (e *ObserverError) Unwrap() error {
	return e.Err
}

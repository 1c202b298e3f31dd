package schedule

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/schedule-keeper/backend/internal/timeframe"
)

// TimeFrames partitions the time covered by every plan of the schedule.
// A zero or infinite (math.MaxInt64 or math.MinInt64) step selects the
// compact partition, a positive step the stepped one. Days are ignored: all
// plans share one 24h axis.
func (s *Schedule) TimeFrames(step time.Duration) ([]timeframe.Window, error) {
	plans := s.AllPlans()
	switch {
	case step == 0 || step == math.MaxInt64 || step == math.MinInt64:
		return CompactFrames(plans), nil
	case step < 0:
		return nil, fmt.Errorf("%w: negative step %s", ErrInvalidArgument, step)
	default:
		return SteppedFrames(plans, step), nil
	}
}

// CompactFrames walks a frame start forward from the earliest plan start.
// Plans starting before the frame start are discarded; among the plans
// starting exactly at it the earliest end closes the frame, and the next
// frame starts there. When nothing starts at the frame start but a
// discarded plan still runs past it, the frame covers that remainder up to
// its end or the next plan start, whichever comes first. Otherwise the
// frame start jumps to the next plan start. Empty plans are ignored.
func CompactFrames(plans []timeframe.DayPlan) []timeframe.Window {
	windows := make([]timeframe.Window, 0, len(plans))
	for _, p := range plans {
		if p.End > p.Start {
			windows = append(windows, p.Window)
		}
	}
	if len(windows) == 0 {
		return nil
	}

	var frames []timeframe.Window
	at := slices.MinFunc(windows, func(a, b timeframe.Window) int {
		return cmp.Compare(a.Start, b.Start)
	}).Start
	for {
		// Plans over by the frame start can no longer contribute.
		windows = slices.DeleteFunc(windows, func(w timeframe.Window) bool {
			return w.End <= at
		})
		if len(windows) == 0 {
			return frames
		}

		end := timeframe.TimeOfDay(-1)
		for _, w := range windows {
			if w.Start == at && (end < 0 || w.End < end) {
				end = w.End
			}
		}

		if end < 0 {
			next := timeframe.TimeOfDay(-1)
			for _, w := range windows {
				switch {
				case w.Start < at && (end < 0 || w.End < end):
					end = w.End
				case w.Start > at && (next < 0 || w.Start < next):
					next = w.Start
				}
			}
			if end < 0 {
				// Gap: nothing runs at the frame start.
				at = next
				continue
			}
			if next >= 0 && next < end {
				end = next
			}
		}

		frames = append(frames, timeframe.Window{Start: at, End: end})
		at = end
	}
}

// SteppedFrames emits contiguous step-long windows from the earliest plan
// start until the latest plan end. The last window is clipped to that end.
func SteppedFrames(plans []timeframe.DayPlan, step time.Duration) []timeframe.Window {
	if len(plans) == 0 || step <= 0 {
		return nil
	}
	earliest, latest := plans[0].Start, plans[0].End
	for _, p := range plans[1:] {
		earliest = min(earliest, p.Start)
		latest = max(latest, p.End)
	}
	if latest <= earliest {
		return nil
	}

	var frames []timeframe.Window
	for at := earliest; at < latest; {
		end := latest
		if step < latest.Sub(at) {
			end = timeframe.TimeOfDay(time.Duration(at) + step)
		}
		frames = append(frames, timeframe.Window{Start: at, End: end})
		at = end
	}
	return frames
}

package schedule

import (
	"slices"
	"time"
)

// allDays lists Sunday..Saturday in order.
var allDays = []time.Weekday{
	time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
	time.Thursday, time.Friday, time.Saturday,
}

// slot holds a cached value that is either absent or valid. There is no
// stale state: invalidation drops the value.
type slot[T any] struct {
	valid bool
	value T
}

func (s *slot[T]) get(fill func() T) T {
	if !s.valid {
		s.value = fill()
		s.valid = true
	}
	return s.value
}

// peek returns the value when valid.
func (s *slot[T]) peek() (T, bool) {
	return s.value, s.valid
}

// invalidate drops the value and reports whether one was held.
func (s *slot[T]) invalidate() bool {
	was := s.valid
	var zero T
	s.value = zero
	s.valid = false
	return was
}

// dayCache holds one partition slot per day of the week. Callers check the
// day with checkDay before indexing and hold the owner's lock.
type dayCache[T any] struct {
	days [7]slot[[]T]
}

func (c *dayCache[T]) get(day time.Weekday, fill func(time.Weekday) []T) []T {
	return c.days[day].get(func() []T { return fill(day) })
}

func (c *dayCache[T]) peek(day time.Weekday) ([]T, bool) {
	return c.days[day].peek()
}

func (c *dayCache[T]) invalidate(day time.Weekday) {
	c.days[day].invalidate()
}

func (c *dayCache[T]) clear() {
	for _, d := range allDays {
		c.days[d].invalidate()
	}
}

// daySet collects distinct days while preserving nothing but membership.
type daySet [7]bool

func (s *daySet) add(d time.Weekday) {
	if d >= time.Sunday && d <= time.Saturday {
		s[d] = true
	}
}

func (s *daySet) addAll(days []time.Weekday) {
	for _, d := range days {
		s.add(d)
	}
}

func (s *daySet) empty() bool {
	return !slices.Contains(s[:], true)
}

// list returns the members in Sunday..Saturday order.
func (s *daySet) list() []time.Weekday {
	var out []time.Weekday
	for _, d := range allDays {
		if s[d] {
			out = append(out, d)
		}
	}
	return out
}

package schedule

import (
	"fmt"
	"slices"
	"sync"
)

// ChangeAction identifies the kind of mutation a Collection went through.
type ChangeAction int

const (
	ActionAdd ChangeAction = iota
	ActionRemove
	ActionReplace
	ActionMove
	ActionReset
)

func (a ChangeAction) String() string {
	switch a {
	case ActionAdd:
		return "add"
	case ActionRemove:
		return "remove"
	case ActionReplace:
		return "replace"
	case ActionMove:
		return "move"
	case ActionReset:
		return "reset"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Change is emitted once per Collection mutation.
type Change[T any] struct {
	Action   ChangeAction
	NewItems []T
	OldItems []T
}

// Collection is an ordered, goroutine-safe list that reports every mutation
// to its observers. Range operations are reported as a single change.
//
// Writers are serialized across the mutation and the notification that
// follows it. Observers run on the writer's goroutine and must not mutate the
// collection they observe.
type Collection[T comparable] struct {
	writeMu sync.Mutex

	mu    sync.RWMutex
	items []T

	obsMu     sync.Mutex
	observers map[int]func(Change[T])
	order     []int
	nextObsID int
}

// NewCollection returns a collection holding items in order.
func NewCollection[T comparable](items ...T) *Collection[T] {
	return &Collection[T]{
		items:     slices.Clone(items),
		observers: make(map[int]func(Change[T])),
	}
}

// Observe registers fn for every subsequent change. The returned function
// removes it and is safe to call more than once.
func (c *Collection[T]) Observe(fn func(Change[T])) (cancel func()) {
	c.obsMu.Lock()
	if c.observers == nil {
		c.observers = make(map[int]func(Change[T]))
	}
	id := c.nextObsID
	c.nextObsID++
	c.observers[id] = fn
	c.order = append(c.order, id)
	c.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.obsMu.Lock()
			defer c.obsMu.Unlock()
			delete(c.observers, id)
			if i := slices.Index(c.order, id); i >= 0 {
				c.order = slices.Delete(c.order, i, i+1)
			}
		})
	}
}

// Items returns a copy of the current contents.
func (c *Collection[T]) Items() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.items)
}

// Len returns the number of items.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// At returns the item at index i.
func (c *Collection[T]) At(i int) (T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.items) {
		var zero T
		return zero, c.indexError(i)
	}
	return c.items[i], nil
}

// Index returns the position of the first occurrence of item, or -1.
func (c *Collection[T]) Index(item T) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Index(c.items, item)
}

// Contains reports whether item is present.
func (c *Collection[T]) Contains(item T) bool {
	return c.Index(item) >= 0
}

// Append adds items at the end as one change.
func (c *Collection[T]) Append(items ...T) {
	if len(items) == 0 {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	added := slices.Clone(items)
	c.mu.Lock()
	c.items = append(c.items, added...)
	c.mu.Unlock()

	c.emit(Change[T]{Action: ActionAdd, NewItems: added})
}

// Insert places item at index i.
func (c *Collection[T]) Insert(i int, item T) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	if i < 0 || i > len(c.items) {
		c.mu.Unlock()
		return c.indexError(i)
	}
	c.items = slices.Insert(c.items, i, item)
	c.mu.Unlock()

	c.emit(Change[T]{Action: ActionAdd, NewItems: []T{item}})
	return nil
}

// Remove deletes the first occurrence of each item and reports the ones that
// were present as one change. It returns how many were removed.
func (c *Collection[T]) Remove(items ...T) int {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var removed []T
	c.mu.Lock()
	for _, item := range items {
		if i := slices.Index(c.items, item); i >= 0 {
			c.items = slices.Delete(c.items, i, i+1)
			removed = append(removed, item)
		}
	}
	c.mu.Unlock()

	if len(removed) > 0 {
		c.emit(Change[T]{Action: ActionRemove, OldItems: removed})
	}
	return len(removed)
}

// RemoveAt deletes the item at index i and returns it.
func (c *Collection[T]) RemoveAt(i int) (T, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	if i < 0 || i >= len(c.items) {
		c.mu.Unlock()
		var zero T
		return zero, c.indexError(i)
	}
	old := c.items[i]
	c.items = slices.Delete(c.items, i, i+1)
	c.mu.Unlock()

	c.emit(Change[T]{Action: ActionRemove, OldItems: []T{old}})
	return old, nil
}

// Set replaces the item at index i.
func (c *Collection[T]) Set(i int, item T) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	if i < 0 || i >= len(c.items) {
		c.mu.Unlock()
		return c.indexError(i)
	}
	old := c.items[i]
	c.items[i] = item
	c.mu.Unlock()

	c.emit(Change[T]{Action: ActionReplace, NewItems: []T{item}, OldItems: []T{old}})
	return nil
}

// Move relocates the item at index from to index to.
func (c *Collection[T]) Move(from, to int) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	if from < 0 || from >= len(c.items) {
		c.mu.Unlock()
		return c.indexError(from)
	}
	if to < 0 || to >= len(c.items) {
		c.mu.Unlock()
		return c.indexError(to)
	}
	item := c.items[from]
	c.items = slices.Delete(c.items, from, from+1)
	c.items = slices.Insert(c.items, to, item)
	c.mu.Unlock()

	c.emit(Change[T]{Action: ActionMove, NewItems: []T{item}, OldItems: []T{item}})
	return nil
}

// Reset clears the collection and repopulates it with items as one change.
func (c *Collection[T]) Reset(items ...T) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	old := c.items
	c.items = slices.Clone(items)
	c.mu.Unlock()

	c.emit(Change[T]{Action: ActionReset, NewItems: slices.Clone(items), OldItems: old})
}

// Clear removes every item.
func (c *Collection[T]) Clear() {
	c.Reset()
}

func (c *Collection[T]) emit(ch Change[T]) {
	c.obsMu.Lock()
	fns := make([]func(Change[T]), 0, len(c.order))
	for _, id := range c.order {
		fns = append(fns, c.observers[id])
	}
	c.obsMu.Unlock()

	for _, fn := range fns {
		fn(ch)
	}
}

func (c *Collection[T]) indexError(i int) error {
	return fmt.Errorf("%w: index %d, length %d", ErrOutOfRange, i, len(c.items))
}

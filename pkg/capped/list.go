// Package capped provides a bounded, most-recent-first list. Pushing beyond the
// capacity evicts the oldest entries first.
package capped

import "sync"

// List is a bounded most-recent-first list safe for concurrent use.
type List[T any] struct {
	mu    sync.RWMutex
	items []T // items[0] is the most recent
	cap   int
}

// New creates a list holding at most capacity items. Capacity < 1 is treated as 1.
func New[T any](capacity int) *List[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &List[T]{items: make([]T, 0, capacity), cap: capacity}
}

// Push inserts v as the most recent item and returns the evicted items, oldest last.
func (l *List[T]) Push(v T) []T {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = append(l.items, v)
	copy(l.items[1:], l.items[:len(l.items)-1])
	l.items[0] = v
	return l.trim()
}

// Replace swaps the whole content. in must be most-recent-first; it is truncated to cap.
func (l *List[T]) Replace(in []T) []T {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = append(l.items[:0:0], in...)
	return l.trim()
}

// Items returns a copy of the content, most recent first.
func (l *List[T]) Items() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]T, len(l.items))
	copy(out, l.items)
	return out
}

// Head returns up to n most recent items.
func (l *List[T]) Head(n int) []T {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > len(l.items) {
		n = len(l.items)
	}
	out := make([]T, n)
	copy(out, l.items[:n])
	return out
}

// Update calls fn for every item in place under the write lock and returns how
// many calls reported a change.
func (l *List[T]) Update(fn func(*T) bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	changed := 0
	for i := range l.items {
		if fn(&l.items[i]) {
			changed++
		}
	}
	return changed
}

// Clear removes every item.
func (l *List[T]) Clear() {
	l.mu.Lock()
	l.items = l.items[:0]
	l.mu.Unlock()
}

// Len returns the number of items.
func (l *List[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Cap returns the capacity.
func (l *List[T]) Cap() int { return l.cap }

func (l *List[T]) trim() []T {
	if len(l.items) <= l.cap {
		return nil
	}
	evicted := make([]T, len(l.items)-l.cap)
	copy(evicted, l.items[l.cap:])
	var zero T
	for i := l.cap; i < len(l.items); i++ {
		l.items[i] = zero
	}
	l.items = l.items[:l.cap]
	return evicted
}

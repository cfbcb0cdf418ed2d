package observable

import (
	"context"
	"sync"

	"github.com/vinumeris/lighthouse/affinity"
)

// SetChange is a snapshotted delta delivered to a Set's listeners: exactly
// one element was added or removed.
type SetChange[T comparable] struct {
	Element T
	Added   bool
}

type setListener[T comparable] struct {
	id       int
	executor *affinity.Executor
	fn       func(SetChange[T])
}

// Handle detaches a previously registered listener. Calling Detach more
// than once, or on an already-detached handle, is a no-op.
type Handle struct {
	detach func()
}

// Detach removes the listener this handle was returned for.
func (h Handle) Detach() {
	if h.detach != nil {
		h.detach()
	}
}

// Set is a mutable set whose changes are mirrored to listeners, each on its
// own chosen executor, as snapshotted single-element deltas.
type Set[T comparable] struct {
	mu        sync.Mutex
	items     map[T]struct{}
	listeners []*setListener[T]
	nextID    int
}

// NewSet returns an empty observable set.
func NewSet[T comparable]() *Set[T] {
	return &Set[T]{items: make(map[T]struct{})}
}

// Snapshot returns a copy of the set's current elements.
func (s *Set[T]) Snapshot() []T {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]T, 0, len(s.items))
	for k := range s.items {
		out = append(out, k)
	}
	return out
}

// Contains reports whether v is currently a member.
func (s *Set[T]) Contains(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[v]
	return ok
}

// Add inserts v, notifying listeners if it was not already present.
func (s *Set[T]) Add(v T) {
	s.mu.Lock()
	if _, exists := s.items[v]; exists {
		s.mu.Unlock()
		return
	}
	s.items[v] = struct{}{}
	listeners := append([]*setListener[T](nil), s.listeners...)
	s.mu.Unlock()

	s.notify(listeners, SetChange[T]{Element: v, Added: true})
}

// Remove deletes v, notifying listeners if it was present.
func (s *Set[T]) Remove(v T) {
	s.mu.Lock()
	if _, exists := s.items[v]; !exists {
		s.mu.Unlock()
		return
	}
	delete(s.items, v)
	listeners := append([]*setListener[T](nil), s.listeners...)
	s.mu.Unlock()

	s.notify(listeners, SetChange[T]{Element: v, Added: false})
}

func (s *Set[T]) notify(listeners []*setListener[T], change SetChange[T]) {
	for _, l := range listeners {
		l := l
		l.executor.Execute(context.Background(), func(ctx context.Context) {
			l.fn(change)
		})
	}
}

// AddListener registers fn to be called, on executor, with a snapshotted
// delta every time the set changes. The returned Handle detaches it.
func (s *Set[T]) AddListener(executor *affinity.Executor, fn func(SetChange[T])) Handle {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	l := &setListener[T]{id: id, executor: executor, fn: fn}
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()

	return Handle{detach: func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, cur := range s.listeners {
			if cur.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}}
}

// Mirror returns a new Set, owned by targetExecutor, that reflects every
// change to s as it happens, each delta snapshotted at source time and
// replayed onto targetExecutor in order.
func (s *Set[T]) Mirror(targetExecutor *affinity.Executor) (*Set[T], Handle) {
	mirror := NewSet[T]()
	for _, v := range s.Snapshot() {
		mirror.items[v] = struct{}{}
	}

	handle := s.AddListener(targetExecutor, func(change SetChange[T]) {
		if change.Added {
			mirror.Add(change.Element)
		} else {
			mirror.Remove(change.Element)
		}
	})

	return mirror, handle
}

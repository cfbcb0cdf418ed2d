package observable

import (
	"context"
	"sync"

	"github.com/vinumeris/lighthouse/affinity"
)

// MapChange is a snapshotted delta for a single key: its new value, or its
// removal.
type MapChange[K comparable, V any] struct {
	Key     K
	Value   V
	Removed bool
}

type mapListener[K comparable, V any] struct {
	id       int
	executor *affinity.Executor
	fn       func(MapChange[K, V])
}

// Map is a mutable key/value map whose changes are mirrored to listeners as
// snapshotted single-key deltas. Used for the backend's per-project
// lifecycle state, keyed by project id.
type Map[K comparable, V any] struct {
	mu        sync.Mutex
	items     map[K]V
	listeners []*mapListener[K, V]
	nextID    int
}

// NewMap returns an empty observable map.
func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{items: make(map[K]V)}
}

// Get returns the value for key and whether it was present.
func (m *Map[K, V]) Get(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[key]
	return v, ok
}

// Snapshot returns a shallow copy of the map's current contents.
func (m *Map[K, V]) Snapshot() map[K]V {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[K]V, len(m.items))
	for k, v := range m.items {
		out[k] = v
	}
	return out
}

// Set inserts or overwrites the value for key, notifying listeners.
func (m *Map[K, V]) Set(key K, value V) {
	m.mu.Lock()
	m.items[key] = value
	listeners := append([]*mapListener[K, V](nil), m.listeners...)
	m.mu.Unlock()

	m.notify(listeners, MapChange[K, V]{Key: key, Value: value})
}

// Delete removes key, notifying listeners if it was present.
func (m *Map[K, V]) Delete(key K) {
	m.mu.Lock()
	v, ok := m.items[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.items, key)
	listeners := append([]*mapListener[K, V](nil), m.listeners...)
	m.mu.Unlock()

	m.notify(listeners, MapChange[K, V]{Key: key, Value: v, Removed: true})
}

func (m *Map[K, V]) notify(listeners []*mapListener[K, V], change MapChange[K, V]) {
	for _, l := range listeners {
		l := l
		l.executor.Execute(context.Background(), func(ctx context.Context) {
			l.fn(change)
		})
	}
}

// AddListener registers fn to run on executor with a snapshotted delta each
// time the map changes.
func (m *Map[K, V]) AddListener(executor *affinity.Executor, fn func(MapChange[K, V])) Handle {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	l := &mapListener[K, V]{id: id, executor: executor, fn: fn}
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()

	return Handle{detach: func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, cur := range m.listeners {
			if cur.id == id {
				m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
				return
			}
		}
	}}
}

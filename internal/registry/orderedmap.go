package registry

import "sync"

// orderedMap is a small generic index: a map keyed by id, with insertion
// order preserved for deterministic iteration (spec.md §4.A: "Users
// (ordered by insertion; primary key = user-id)"). Values are stored by
// pointer internally so edit can mutate in place under the lock, but
// every method that crosses the lock boundary returns or accepts a
// detached copy — "Copies — not references — cross lock boundaries"
// (spec.md §9).
type orderedMap[K comparable, V any] struct {
	mu     sync.RWMutex
	order  []K
	values map[K]*V
}

func newOrderedMap[K comparable, V any]() *orderedMap[K, V] {
	return &orderedMap[K, V]{values: make(map[K]*V)}
}

// ErrNotFound is returned by EditByID on a missing id; RemoveByID
// reports a missing id by returning false instead.
type ErrNotFound struct{ ID string }

func (e ErrNotFound) Error() string { return "not found: " + e.ID }

// Insert adds or overwrites the value at id.
func (m *orderedMap[K, V]) Insert(id K, v V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.values[id]; !exists {
		m.order = append(m.order, id)
	}
	cp := v
	m.values[id] = &cp
}

// RemoveByID deletes id, reporting whether it was present.
func (m *orderedMap[K, V]) RemoveByID(id K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[id]; !ok {
		return false
	}
	delete(m.values, id)
	for i, k := range m.order {
		if k == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true
}

// GetByID returns a detached copy of the value at id, suitable for use
// outside the index's lock (spec.md §4.A).
func (m *orderedMap[K, V]) GetByID(id K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[id]
	if !ok {
		var zero V
		return zero, false
	}
	return *v, true
}

// EditByID invokes fn with exclusive access to the stored value. fn must
// not block or acquire another Registry lock (spec.md §4.A).
func (m *orderedMap[K, V]) EditByID(id K, fn func(*V)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[id]
	if !ok {
		return ErrNotFound{ID: anyToString(id)}
	}
	fn(v)
	return nil
}

// ContainsKey reports whether id is present.
func (m *orderedMap[K, V]) ContainsKey(id K) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.values[id]
	return ok
}

// List returns a copy of every value, in insertion order.
func (m *orderedMap[K, V]) List() []V {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]V, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, *m.values[k])
	}
	return out
}

// Len reports the number of entries currently indexed.
func (m *orderedMap[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// Filter returns copies of every value for which pred holds, preserving
// insertion order. Used to derive a room's user list by filtering Users
// on RoomID rather than maintaining a back-pointer list (spec.md §9).
func (m *orderedMap[K, V]) Filter(pred func(V) bool) []V {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]V, 0)
	for _, k := range m.order {
		v := *m.values[k]
		if pred(v) {
			out = append(out, v)
		}
	}
	return out
}

func anyToString(id any) string {
	if s, ok := id.(string); ok {
		return s
	}
	return ""
}

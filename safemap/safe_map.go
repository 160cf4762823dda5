// Package safemap wraps sync.Map with generic keys and values.
// Besides plain Store/Load/Delete it exposes the atomic compound operations
// (Swap, LoadOrStore, LoadAndDelete, CompareAndDelete) that registries need to
// replace or evict entries without a check-then-act race.
package safemap

import "sync"

// SafeMap is a generic sync.Map. The zero value is an empty map ready for use.
// Keys must be comparable; values may be any type. CompareAndDelete
// additionally requires V to be comparable at run time.
//
// SafeMap must not be copied after first use.
type SafeMap[K comparable, V any] struct {
	m sync.Map
}

// NewSafeMap returns a new, empty SafeMap.
//
// Returns:
//   - An empty map
func NewSafeMap[K comparable, V any]() *SafeMap[K, V] {
	return &SafeMap[K, V]{}
}

// Store sets the value for key k, overwriting any existing value.
//
// Parameters:
//   - k: Key to write
//   - v: Value stored under k
func (m *SafeMap[K, V]) Store(k K, v V) {
	m.m.Store(k, v)
}

// Load returns the value stored for k.
//
// Parameters:
//   - k: Key to read
//
// Returns:
//   - The stored value, or V's zero value
//   - Whether k was present
func (m *SafeMap[K, V]) Load(k K) (V, bool) {
	v, found := m.m.Load(k)
	if !found {
		var empty V
		return empty, false
	}

	return v.(V), true
}

// Swap stores v for k and returns the value it replaced.
//
// Parameters:
//   - k: Key to write
//   - v: The new value
//
// Returns:
//   - The previous value, or the zero value of V if there was none
//   - true if a previous value was replaced
func (m *SafeMap[K, V]) Swap(k K, v V) (V, bool) {
	prev, loaded := m.m.Swap(k, v)
	if !loaded {
		var empty V
		return empty, false
	}

	return prev.(V), true
}

// LoadOrStore returns the existing value for k if present. Otherwise it
// stores and returns v.
//
// Parameters:
//   - k: Key to read or store
//   - v: The value to store when k is absent
//
// Returns:
//   - The existing or newly stored value
//   - true if the value was loaded, false if v was stored
func (m *SafeMap[K, V]) LoadOrStore(k K, v V) (V, bool) {
	actual, loaded := m.m.LoadOrStore(k, v)
	return actual.(V), loaded
}

// LoadAndDelete removes k and returns the value it held.
//
// Parameters:
//   - k: The key to remove
//
// Returns:
//   - The removed value, or the zero value of V if k was absent
//   - true if k was present
func (m *SafeMap[K, V]) LoadAndDelete(k K) (V, bool) {
	v, loaded := m.m.LoadAndDelete(k)
	if !loaded {
		var empty V
		return empty, false
	}

	return v.(V), true
}

// CompareAndDelete removes k only if it currently maps to old. Values are
// compared with ==, so V must hold comparable values (pointers, for example).
//
// Parameters:
//   - k: The key to remove
//   - old: The value k must currently hold
//
// Returns:
//   - true if the entry was removed
func (m *SafeMap[K, V]) CompareAndDelete(k K, old V) bool {
	return m.m.CompareAndDelete(k, old)
}

// Delete removes the entry for k. Deleting an absent key is a no-op.
//
// Parameters:
//   - k: Key to remove
func (m *SafeMap[K, V]) Delete(k K) {
	m.m.Delete(k)
}

// Range calls f for each entry until f returns false. Entries stored or
// deleted concurrently may or may not be visited.
//
// Parameters:
//   - f: Visitor; returning false ends the walk
func (m *SafeMap[K, V]) Range(f func(k K, v V) bool) {
	m.m.Range(func(k, v any) bool {
		return f(k.(K), v.(V))
	})
}

// Keys returns a snapshot of the keys currently in the map, in no particular order.
//
// Returns:
//   - The keys present at the time of the call
func (m *SafeMap[K, V]) Keys() []K {
	var keys []K
	m.Range(func(k K, _ V) bool {
		keys = append(keys, k)
		return true
	})

	return keys
}

// Len returns the number of entries. It is O(n).
//
// Returns:
//   - Entry count at the time of the walk
func (m *SafeMap[K, V]) Len() int {
	length := 0
	m.Range(func(K, V) bool {
		length++
		return true
	})

	return length
}

// Has reports whether k is present.
//
// Parameters:
//   - k: Key to test
//
// Returns:
//   - Whether an entry for k exists
func (m *SafeMap[K, V]) Has(k K) bool {
	_, found := m.m.Load(k)
	return found
}

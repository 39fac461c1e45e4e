// Package safemap provides a type-safe concurrent map built on sync.Map with
// a constant-time length, used as the server's session registry.
package safemap

import (
	"sync"
	"sync/atomic"
)

// SafeMap is a concurrent map that is safe for use by multiple goroutines.
// It wraps sync.Map and keeps an entry count alongside it, so Len does not
// need to walk the map. Keys must be comparable; values may be any type.
//
// SafeMap must not be copied after first use.
type SafeMap[K comparable, V any] struct {
	m   sync.Map
	len atomic.Int64
}

// NewSafeMap returns a new, empty SafeMap.
func NewSafeMap[K comparable, V any]() *SafeMap[K, V] {
	return &SafeMap[K, V]{}
}

// Store sets the value for key k, overwriting any existing value.
//
// Parameters:
//   - k: The key to store
//   - v: The value to associate with k
func (m *SafeMap[K, V]) Store(k K, v V) {
	if _, loaded := m.m.Swap(k, v); !loaded {
		m.len.Add(1)
	}
}

// Load returns the value for key k and whether it was present. A missing
// key yields the zero value of V.
//
// Parameters:
//   - k: The key to look up
//
// Returns:
//   - The value associated with k, or the zero value of V if not found
//   - true if the key was present, false otherwise
func (m *SafeMap[K, V]) Load(k K) (V, bool) {
	v, found := m.m.Load(k)
	if !found {
		var empty V
		return empty, false
	}

	return v.(V), true
}

// LoadAndDelete removes the entry for key k and returns the value it held.
// Only the caller that actually removes the entry sees loaded == true, which
// makes it suitable for one-shot cleanup.
//
// Parameters:
//   - k: The key to remove
//
// Returns:
//   - The removed value, or the zero value of V if k was absent
//   - true if this call removed the entry
func (m *SafeMap[K, V]) LoadAndDelete(k K) (V, bool) {
	v, loaded := m.m.LoadAndDelete(k)
	if !loaded {
		var empty V
		return empty, false
	}

	m.len.Add(-1)
	return v.(V), true
}

// Delete removes the entry for key k. Deleting a missing key is a no-op.
func (m *SafeMap[K, V]) Delete(k K) {
	m.LoadAndDelete(k)
}

// Range calls f sequentially for each key and value present in the map,
// stopping early if f returns false. Entries stored or deleted concurrently
// may or may not be visited.
//
// Parameters:
//   - f: Function called for each entry; return false to stop iteration
func (m *SafeMap[K, V]) Range(f func(k K, v V) bool) {
	m.m.Range(func(k, v any) bool {
		return f(k.(K), v.(V))
	})
}

// Len returns the number of entries in the map.
func (m *SafeMap[K, V]) Len() int {
	return int(m.len.Load())
}

// Has reports whether key k is present in the map.
func (m *SafeMap[K, V]) Has(k K) bool {
	_, found := m.m.Load(k)
	return found
}

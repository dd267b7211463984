package concurrent_map

import "sync"

// Map is a typed wrapper around sync.Map.
type Map[K comparable, V any] struct {
	cMap sync.Map
}

func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{}
}

// GetOrSet returns the existing value for k, or stores and returns v.
func (m *Map[K, V]) GetOrSet(k K, v V) (V, bool) {
	actual, loaded := m.cMap.LoadOrStore(k, v)
	return actual.(V), loaded
}

func (m *Map[K, V]) Delete(k K) {
	m.cMap.Delete(k)
}

func (m *Map[K, V]) Len() int {
	n := 0
	m.cMap.Range(func(_, _ any) bool {
		n++
		return true
	})

	return n
}

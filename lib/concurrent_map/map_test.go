package concurrent_map

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMap(t *testing.T) {
	m := NewMap[string, int]()
	assert.Zero(t, m.Len())

	v, loaded := m.GetOrSet("a", 1)
	assert.False(t, loaded)
	assert.Equal(t, 1, v)

	v, loaded = m.GetOrSet("a", 2)
	assert.True(t, loaded)
	assert.Equal(t, 1, v)

	m.GetOrSet("b", 2)
	assert.Equal(t, 2, m.Len())

	m.Delete("a")
	assert.Equal(t, 1, m.Len())

	v, loaded = m.GetOrSet("a", 3)
	assert.False(t, loaded)
	assert.Equal(t, 3, v)
}

func TestMapGetOrSetConcurrent(t *testing.T) {
	m := NewMap[string, *sync.Mutex]()

	var wg sync.WaitGroup
	results := make([]*sync.Mutex, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = m.GetOrSet("session", &sync.Mutex{})
		}(i)
	}
	wg.Wait()

	for _, mu := range results {
		assert.Same(t, results[0], mu)
	}
}

package status

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestRegistry_StablePointers verifies repeated lookups share one metric
func TestRegistry_StablePointers(t *testing.T) {
	r := NewRegistry()
	a := r.Int("physics.ticks")
	a.Add(3)
	assert.Same(t, a, r.Int("physics.ticks"))
	assert.Equal(t, int64(3), r.Int("physics.ticks").Load())

	assert.True(t, r.Ints.Has("physics.ticks"))
	assert.False(t, r.Floats.Has("physics.ticks"))
	r.Float("physics.alpha")
	assert.Equal(t, 2, r.TotalCount())
}

// TestRegistry_String verifies ints then floats, each in key order
func TestRegistry_String(t *testing.T) {
	r := NewRegistry()
	r.Int("b").Store(2)
	r.Int("a").Store(1)
	r.Float("z").Set(0.5)
	r.Float("c").Set(1.25)

	assert.Equal(t, "a=1 b=2 c=1.250 z=0.500", r.String())
	assert.Empty(t, NewRegistry().String())
}

// TestAtomicFloat verifies Add and Max under contention
func TestAtomicFloat(t *testing.T) {
	var sum, peak AtomicFloat
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for k := 0; k < 1000; k++ {
				sum.Add(0.5)
				peak.Max(float64(g*1000 + k))
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, 4000.0, sum.Get())
	assert.Equal(t, 7999.0, peak.Get())

	assert.Equal(t, 7999.0, peak.Max(10))
	peak.Set(-1)
	assert.Equal(t, -1.0, peak.Get())
}

// TestMetricMap_Range verifies sorted iteration
func TestMetricMap_Range(t *testing.T) {
	m := NewMetricMap[int]()
	for _, k := range []string{"c", "a", "b"} {
		*m.Get(k) = len(k)
	}
	var keys []string
	m.Range(func(k string, _ *int) { keys = append(keys, k) })
	assert.Equal(t, []string{"a", "b", "c"}, keys)
	assert.Equal(t, 3, m.Count())
}

package status

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Registry holds the process's named gauges
// Owners look up pointers once at construction and store into them every tick
type Registry struct {
	Ints   *MetricMap[atomic.Int64]
	Floats *MetricMap[AtomicFloat]
}

func NewRegistry() *Registry {
	return &Registry{
		Ints:   NewMetricMap[atomic.Int64](),
		Floats: NewMetricMap[AtomicFloat](),
	}
}

func (r *Registry) Int(key string) *atomic.Int64 { return r.Ints.Get(key) }

func (r *Registry) Float(key string) *AtomicFloat { return r.Floats.Get(key) }

func (r *Registry) TotalCount() int {
	return r.Ints.Count() + r.Floats.Count()
}

// String renders every gauge as key=value, ints first, each group in key order
func (r *Registry) String() string {
	var b strings.Builder
	r.Ints.Range(func(key string, v *atomic.Int64) {
		fmt.Fprintf(&b, "%s=%d ", key, v.Load())
	})
	r.Floats.Range(func(key string, v *AtomicFloat) {
		fmt.Fprintf(&b, "%s=%.3f ", key, v.Get())
	})
	return strings.TrimSpace(b.String())
}

package vmath

import "github.com/go-gl/mathgl/mgl32"

// --- Randomness ---

// FastRand is a xorshift64 source for reproducible spawning in sandboxes and tests
type FastRand struct {
	state uint64
}

func NewFastRand(seed uint64) *FastRand {
	if seed == 0 {
		seed = 1
	}
	return &FastRand{state: seed}
}

func (r *FastRand) Next() uint64 {
	x := r.state
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	r.state = x
	return x
}

func (r *FastRand) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(r.Next() % uint64(n))
}

// Float32 returns a value in [0, 1)
func (r *FastRand) Float32() float32 {
	return float32(r.Next()>>40) / (1 << 24)
}

// Range returns a value in [lo, hi)
func (r *FastRand) Range(lo, hi float32) float32 {
	return lo + (hi-lo)*r.Float32()
}

// V3InBox returns a point uniformly inside box
func (r *FastRand) V3InBox(box AABB) mgl32.Vec3 {
	return mgl32.Vec3{
		r.Range(box.Min[0], box.Max[0]),
		r.Range(box.Min[1], box.Max[1]),
		r.Range(box.Min[2], box.Max[2]),
	}
}

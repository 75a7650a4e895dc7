package vmath

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestIsFinite(t *testing.T) {
	assert.True(t, IsFinite(0))
	assert.True(t, IsFinite(-1e30))
	assert.False(t, IsFinite(float32(math.NaN())))
	assert.False(t, IsFinite(float32(math.Inf(-1))))
	assert.False(t, V3Finite(mgl32.Vec3{0, float32(math.Inf(1)), 0}))
}

func TestV3Lerp(t *testing.T) {
	a := mgl32.Vec3{0, 10, -4}
	b := mgl32.Vec3{2, 20, 4}
	assert.Equal(t, a, V3Lerp(a, b, 0))
	assert.Equal(t, b, V3Lerp(a, b, 1))
	assert.Equal(t, mgl32.Vec3{1, 15, 0}, V3Lerp(a, b, 0.5))
}

func TestV3SafeNormalize(t *testing.T) {
	assert.Equal(t, mgl32.Vec3{}, V3SafeNormalize(mgl32.Vec3{}, 1e-6))
	n := V3SafeNormalize(mgl32.Vec3{3, 0, 4}, 1e-6)
	assert.InDelta(t, 0.6, n[0], 1e-6)
	assert.InDelta(t, 0.8, n[2], 1e-6)
}

func TestAABB(t *testing.T) {
	a := NewAABB(mgl32.Vec3{1, 1, 1}, mgl32.Vec3{-1, -1, -1})
	assert.Equal(t, mgl32.Vec3{-1, -1, -1}, a.Min)
	assert.Equal(t, mgl32.Vec3{1, 1, 1}, a.Max)
	assert.Equal(t, mgl32.Vec3{}, a.Center())
	assert.Equal(t, mgl32.Vec3{1, 1, 1}, a.HalfExtents())

	touching := FromCenterHalfExtents(mgl32.Vec3{2, 0, 0}, mgl32.Vec3{1, 1, 1})
	assert.True(t, a.Overlaps(touching))
	overlap, ok := a.Intersection(touching)
	assert.True(t, ok)
	assert.Equal(t, float32(1), overlap.Min[0])
	assert.Equal(t, float32(1), overlap.Max[0])

	apart := touching.Translate(mgl32.Vec3{0.01, 0, 0})
	assert.False(t, a.Overlaps(apart))
	_, ok = a.Intersection(apart)
	assert.False(t, ok)

	outer := FromCenterHalfExtents(mgl32.Vec3{}, mgl32.Vec3{5, 5, 5})
	assert.True(t, outer.Contains(a))
	assert.False(t, a.Contains(outer))
}

func TestFastRand_Deterministic(t *testing.T) {
	a, b := NewFastRand(7), NewFastRand(7)
	box := AABB{Min: mgl32.Vec3{-1, 0, 2}, Max: mgl32.Vec3{1, 3, 4}}
	for i := 0; i < 100; i++ {
		pa, pb := a.V3InBox(box), b.V3InBox(box)
		assert.Equal(t, pa, pb)
		assert.True(t, box.Contains(AABB{Min: pa, Max: pa}), "%v outside", pa)
	}
	assert.Zero(t, NewFastRand(0).Intn(0))
}

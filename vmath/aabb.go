package vmath

import "github.com/go-gl/mathgl/mgl32"

// AABB is an axis-aligned box given by its min and max corners
type AABB struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// NewAABB orders the corners so Min <= Max on every axis
func NewAABB(a, b mgl32.Vec3) AABB {
	return AABB{Min: V3Min(a, b), Max: V3Max(a, b)}
}

// FromCenterHalfExtents builds a box around center
func FromCenterHalfExtents(center, half mgl32.Vec3) AABB {
	return AABB{Min: center.Sub(half), Max: center.Add(half)}
}

// Overlaps is the closed-interval test: touching faces count as overlap
func (b AABB) Overlaps(o AABB) bool {
	return b.Min[0] <= o.Max[0] && b.Max[0] >= o.Min[0] &&
		b.Min[1] <= o.Max[1] && b.Max[1] >= o.Min[1] &&
		b.Min[2] <= o.Max[2] && b.Max[2] >= o.Min[2]
}

// Contains reports whether o lies entirely inside b
func (b AABB) Contains(o AABB) bool {
	return o.Min[0] >= b.Min[0] && o.Max[0] <= b.Max[0] &&
		o.Min[1] >= b.Min[1] && o.Max[1] <= b.Max[1] &&
		o.Min[2] >= b.Min[2] && o.Max[2] <= b.Max[2]
}

func (b AABB) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

func (b AABB) HalfExtents() mgl32.Vec3 {
	return b.Max.Sub(b.Min).Mul(0.5)
}

// IsFinite reports whether both corners are finite
func (b AABB) IsFinite() bool {
	return V3Finite(b.Min) && V3Finite(b.Max)
}

// Intersection returns the overlap box and whether it is non-empty
// A touching pair yields a zero-thickness box and true
func (b AABB) Intersection(o AABB) (AABB, bool) {
	if !b.Overlaps(o) {
		return AABB{}, false
	}
	return AABB{Min: V3Max(b.Min, o.Min), Max: V3Min(b.Max, o.Max)}, true
}

// Translate offsets both corners by d
func (b AABB) Translate(d mgl32.Vec3) AABB {
	return AABB{Min: b.Min.Add(d), Max: b.Max.Add(d)}
}

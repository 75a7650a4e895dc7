// Package vmath holds the float32 math shared by the physics packages
// Vectors and quaternions are mgl32 types; scalar functions come from math32
package vmath

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Axis indices into mgl32.Vec3
const (
	AxisX = 0
	AxisY = 1
	AxisZ = 2
)

// Zero is the zero vector
var Zero = mgl32.Vec3{}

// --- Scalar ---

// IsFinite reports whether f is neither NaN nor infinite
func IsFinite(f float32) bool {
	return !math32.IsNaN(f) && !math32.IsInf(f, 0)
}

// Clamp bounds f to [lo, hi]
func Clamp(f, lo, hi float32) float32 {
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}

// Lerp interpolates a→b by t without clamping t
func Lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}

// --- Vector ---

// V3Finite reports whether every component of v is finite
func V3Finite(v mgl32.Vec3) bool {
	return IsFinite(v[0]) && IsFinite(v[1]) && IsFinite(v[2])
}

// V3Lerp interpolates a→b per component
func V3Lerp(a, b mgl32.Vec3, t float32) mgl32.Vec3 {
	return mgl32.Vec3{
		Lerp(a[0], b[0], t),
		Lerp(a[1], b[1], t),
		Lerp(a[2], b[2], t),
	}
}

// V3Min returns the component-wise minimum
func V3Min(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{math32.Min(a[0], b[0]), math32.Min(a[1], b[1]), math32.Min(a[2], b[2])}
}

// V3Max returns the component-wise maximum
func V3Max(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{math32.Max(a[0], b[0]), math32.Max(a[1], b[1]), math32.Max(a[2], b[2])}
}

// V3Floor floors each component and converts to int
func V3Floor(v mgl32.Vec3) [3]int {
	return [3]int{int(math32.Floor(v[0])), int(math32.Floor(v[1])), int(math32.Floor(v[2]))}
}

// V3NonNegative reports whether no component is negative
func V3NonNegative(v mgl32.Vec3) bool {
	return v[0] >= 0 && v[1] >= 0 && v[2] >= 0
}

// V3SafeNormalize returns v/|v|, or the zero vector when |v| is below eps
// mgl32's Normalize divides by zero on the zero vector
func V3SafeNormalize(v mgl32.Vec3, eps float32) mgl32.Vec3 {
	l := v.Len()
	if l < eps {
		return mgl32.Vec3{}
	}
	return v.Mul(1 / l)
}

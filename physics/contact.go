package physics

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/lixenwraith/voxphys/core"
	"github.com/lixenwraith/voxphys/vmath"
)

// ContactPair is one narrow-phase hit; Normal points from A to B
type ContactPair struct {
	A, B        core.EntityID
	RowA, RowB  int // rows at detection time, valid until the next structural change
	Point       mgl32.Vec3
	Normal      mgl32.Vec3
	Penetration float32
}

// CollisionData is the bounded per-tick contact buffer
// Storage is allocated once; Reset keeps it
type CollisionData struct {
	pairs   []ContactPair
	dropped int
}

func NewCollisionData(maxContacts int) *CollisionData {
	return &CollisionData{pairs: make([]ContactPair, 0, maxContacts)}
}

func (d *CollisionData) Reset() {
	d.pairs = d.pairs[:0]
	d.dropped = 0
}

// Add appends c, or counts it as dropped when the buffer is full
func (d *CollisionData) Add(c ContactPair) bool {
	if len(d.pairs) == cap(d.pairs) {
		d.dropped++
		return false
	}
	d.pairs = append(d.pairs, c)
	return true
}

// Pairs is a view valid until the next Reset
func (d *CollisionData) Pairs() []ContactPair { return d.pairs }

func (d *CollisionData) Len() int { return len(d.pairs) }

func (d *CollisionData) Cap() int { return cap(d.pairs) }

// Dropped is the number of contacts refused since Reset
func (d *CollisionData) Dropped() int { return d.dropped }

// boxContact derives a contact from two boxes
// The normal is the axis of least penetration, signed from a toward b;
// the point is the centre of the overlap box
func boxContact(a, b vmath.AABB) (point, normal mgl32.Vec3, depth float32, ok bool) {
	overlap, hit := a.Intersection(b)
	if !hit {
		return
	}
	size := overlap.Max.Sub(overlap.Min)
	axis := vmath.AxisX
	depth = size[0]
	if size[1] < depth {
		axis, depth = vmath.AxisY, size[1]
	}
	if size[2] < depth {
		axis, depth = vmath.AxisZ, size[2]
	}

	delta := b.Center().Sub(a.Center())
	sign := float32(1)
	if delta[axis] < 0 {
		sign = -1
	} else if delta[axis] == 0 {
		// Concentric on this axis: fall back to the box extents so the result is stable
		if b.Min[axis] < a.Min[axis] {
			sign = -1
		}
	}
	normal[axis] = sign
	return overlap.Center(), normal, depth, true
}

// penetrationAlong is the overlap of a and b on the axis of the axis-aligned normal n
func penetrationAlong(a, b vmath.AABB, n mgl32.Vec3) float32 {
	axis := vmath.AxisX
	switch {
	case n[vmath.AxisY] != 0:
		axis = vmath.AxisY
	case n[vmath.AxisZ] != 0:
		axis = vmath.AxisZ
	}
	return math32.Min(a.Max[axis], b.Max[axis]) - math32.Max(a.Min[axis], b.Min[axis])
}

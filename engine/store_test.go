package engine

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lixenwraith/voxphys/core"
)

var unitHalf = mgl32.Vec3{0.5, 0.5, 0.5}

// checkAligned verifies every row's handle resolves back to that row
func checkAligned(t *testing.T, s *Store) {
	t.Helper()
	cols := s.Columns()
	require.Len(t, cols.Positions, s.Count())
	require.Len(t, cols.IDs, s.Count())
	for row, id := range cols.IDs {
		got, ok := s.Row(id)
		require.True(t, ok, "row %d handle %v not live", row, id)
		require.Equal(t, row, got)
	}
}

// TestStore_AddEntity verifies columns are filled and the box follows the position
func TestStore_AddEntity(t *testing.T) {
	s := NewStore(8)
	id, err := s.AddEntity(mgl32.Vec3{1, 2, 3}, mgl32.Vec3{4, 0, 0}, 2, unitHalf)
	require.NoError(t, err)

	assert.Equal(t, 1, s.Count())
	assert.True(t, s.Alive(id))

	pos, _ := s.Position(id)
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, pos)
	vel, _ := s.Velocity(id)
	assert.Equal(t, mgl32.Vec3{4, 0, 0}, vel)
	inv, _ := s.InverseMass(id)
	assert.Equal(t, float32(0.5), inv)

	box, _ := s.Bounds(id)
	assert.Equal(t, mgl32.Vec3{0.5, 1.5, 2.5}, box.Min)
	assert.Equal(t, mgl32.Vec3{1.5, 2.5, 3.5}, box.Max)

	rot, _ := s.Rotation(id)
	assert.Equal(t, mgl32.QuatIdent(), rot)

	flags, _ := s.Flags(id)
	assert.True(t, flags.Simulated())
	assert.True(t, flags.HasGravity())
}

// TestStore_InverseMassInvariant verifies inverse mass is zero exactly when mass is not positive
func TestStore_InverseMassInvariant(t *testing.T) {
	s := NewStore(16)
	for _, m := range []float32{0.25, 1, 3, 1000} {
		_, err := s.AddEntity(mgl32.Vec3{}, mgl32.Vec3{}, m, unitHalf)
		require.NoError(t, err)
	}
	_, err := s.AddStatic(mgl32.Vec3{0, -2, 0}, mgl32.Vec3{4, 0.5, 4})
	require.NoError(t, err)
	_, err = s.NewBody(mgl32.Vec3{}, unitHalf).Kinematic().Mass(3).Build()
	require.NoError(t, err)

	cols := s.Columns()
	for row := range cols.Masses {
		assert.Equal(t, cols.Masses[row] <= 0, cols.InverseMasses[row] == 0, "row %d", row)
		if cols.Masses[row] > 0 {
			assert.InDelta(t, 1/cols.Masses[row], cols.InverseMasses[row], 1e-6)
		}
	}
}

// TestStore_RejectsDegenerateInput verifies bad bodies never reach the columns
func TestStore_RejectsDegenerateInput(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	tests := []struct {
		name string
		pos  mgl32.Vec3
		vel  mgl32.Vec3
		mass float32
		half mgl32.Vec3
		want error
	}{
		{"zero mass", mgl32.Vec3{}, mgl32.Vec3{}, 0, unitHalf, ErrInvalidMass},
		{"negative mass", mgl32.Vec3{}, mgl32.Vec3{}, -1, unitHalf, ErrInvalidMass},
		{"nan mass", mgl32.Vec3{}, mgl32.Vec3{}, nan, unitHalf, ErrInvalidMass},
		{"nan position", mgl32.Vec3{nan, 0, 0}, mgl32.Vec3{}, 1, unitHalf, ErrNonFinite},
		{"inf velocity", mgl32.Vec3{}, mgl32.Vec3{0, inf, 0}, 1, unitHalf, ErrNonFinite},
		{"negative extents", mgl32.Vec3{}, mgl32.Vec3{}, 1, mgl32.Vec3{-1, 1, 1}, ErrInvalidExtents},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(4)
			id, err := s.AddEntity(tt.pos, tt.vel, tt.mass, tt.half)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Equal(t, core.InvalidEntity, id)
			assert.Zero(t, s.Count())
		})
	}

	s := NewStore(4)
	_, err := s.NewBody(mgl32.Vec3{}, unitHalf).Restitution(1.5).Build()
	assert.True(t, errors.Is(err, ErrInvalidMaterial))
	_, err = s.NewBody(mgl32.Vec3{}, unitHalf).Friction(-0.1).Build()
	assert.True(t, errors.Is(err, ErrInvalidMaterial))
}

// TestStore_CapacityExceeded verifies the typed error carries the capacity
func TestStore_CapacityExceeded(t *testing.T) {
	s := NewStore(2)
	for i := 0; i < 2; i++ {
		_, err := s.AddEntity(mgl32.Vec3{float32(i), 0, 0}, mgl32.Vec3{}, 1, unitHalf)
		require.NoError(t, err)
	}

	_, err := s.AddEntity(mgl32.Vec3{}, mgl32.Vec3{}, 1, unitHalf)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCapacityExceeded))

	var capErr *CapacityError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, 2, capErr.Capacity)
	assert.Equal(t, 2, s.Count())
}

// TestStore_RemoveEntity verifies swap-remove keeps every column aligned
// and the moved body's handle still resolves to its own data
func TestStore_RemoveEntity(t *testing.T) {
	s := NewStore(8)
	ids := make([]core.EntityID, 5)
	for i := range ids {
		id, err := s.AddEntity(mgl32.Vec3{float32(i) * 10, 0, 0}, mgl32.Vec3{float32(i), 0, 0}, float32(i+1), unitHalf)
		require.NoError(t, err)
		ids[i] = id
	}

	require.NoError(t, s.RemoveEntity(ids[1]))
	assert.Equal(t, 4, s.Count())
	checkAligned(t, s)

	for i, id := range ids {
		if i == 1 {
			continue
		}
		pos, ok := s.Position(id)
		require.True(t, ok)
		assert.Equal(t, float32(i)*10, pos[0])
		vel, _ := s.Velocity(id)
		assert.Equal(t, float32(i), vel[0])
		mass, _ := s.Mass(id)
		assert.Equal(t, float32(i+1), mass)
		box, _ := s.Bounds(id)
		assert.Equal(t, pos, box.Center())
	}

	// The last body took the freed row
	row, _ := s.Row(ids[4])
	assert.Equal(t, 1, row)

	require.NoError(t, s.RemoveEntity(ids[4]))
	require.NoError(t, s.RemoveEntity(ids[0]))
	assert.Equal(t, 2, s.Count())
	checkAligned(t, s)
}

// TestStore_StaleHandle verifies a removed handle fails and a reused slot gets a new generation
func TestStore_StaleHandle(t *testing.T) {
	s := NewStore(4)
	a, err := s.AddEntity(mgl32.Vec3{}, mgl32.Vec3{}, 1, unitHalf)
	require.NoError(t, err)
	require.NoError(t, s.RemoveEntity(a))

	assert.False(t, s.Alive(a))
	err = s.RemoveEntity(a)
	assert.True(t, errors.Is(err, ErrStaleEntity))
	_, ok := s.Position(a)
	assert.False(t, ok)

	b, err := s.AddEntity(mgl32.Vec3{5, 0, 0}, mgl32.Vec3{}, 1, unitHalf)
	require.NoError(t, err)
	assert.Equal(t, a.Index, b.Index)
	assert.NotEqual(t, a.Generation, b.Generation)
	assert.False(t, s.Alive(a))
	assert.True(t, s.Alive(b))

	assert.False(t, s.Alive(core.InvalidEntity))
	assert.False(t, s.Alive(core.EntityID{}))
}

// TestStore_Clear verifies every handle is invalidated
func TestStore_Clear(t *testing.T) {
	s := NewStore(4)
	a, _ := s.AddEntity(mgl32.Vec3{}, mgl32.Vec3{}, 1, unitHalf)
	b, _ := s.AddStatic(mgl32.Vec3{0, -1, 0}, unitHalf)

	s.Clear()
	assert.Zero(t, s.Count())
	assert.False(t, s.Alive(a))
	assert.False(t, s.Alive(b))

	c, err := s.AddEntity(mgl32.Vec3{}, mgl32.Vec3{}, 1, unitHalf)
	require.NoError(t, err)
	assert.True(t, s.Alive(c))
	checkAligned(t, s)
}

// TestBodyBuilder verifies the fluent options land in the definition
func TestBodyBuilder(t *testing.T) {
	s := NewStore(4)
	b := s.NewBody(mgl32.Vec3{1, 1, 1}, unitHalf).
		Velocity(mgl32.Vec3{0, 3, 0}).
		Mass(4).
		Restitution(0.9).
		Friction(0.1).
		Filter(2, 1).
		NoGravity()

	def := b.Def()
	assert.Equal(t, float32(4), def.Mass)
	assert.Equal(t, uint32(2), def.Group)
	assert.Equal(t, uint32(1), def.Mask)
	assert.False(t, def.Flags.HasGravity())

	id, err := b.Build()
	require.NoError(t, err)
	assert.True(t, s.Alive(id))
	assert.Panics(t, func() { _, _ = b.Build() })

	static, err := s.NewBody(mgl32.Vec3{}, unitHalf).Mass(5).Static().Build()
	require.NoError(t, err)
	mass, _ := s.Mass(static)
	assert.Zero(t, mass)
	f, _ := s.Flags(static)
	assert.True(t, f.IsStatic())
	assert.False(t, f.Simulated())
}

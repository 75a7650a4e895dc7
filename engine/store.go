package engine

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/lixenwraith/voxphys/core"
	"github.com/lixenwraith/voxphys/parameter"
	"github.com/lixenwraith/voxphys/vmath"
)

const freeSlot = -1

// Store holds body state as parallel arrays indexed by dense row
// Rows are 0..Count()-1 in every column; handles resolve to rows through a slot table,
// so a swap-remove moves a row without invalidating the moved body's handle
//
// Concurrency: structural mutation (add/remove) is single-writer and must not overlap
// readers; Count and the column views are safe for concurrent readers between mutations
type Store struct {
	count    int
	capacity int

	positions         []mgl32.Vec3
	velocities        []mgl32.Vec3
	rotations         []mgl32.Quat
	angularVelocities []mgl32.Vec3
	masses            []float32
	inverseMasses     []float32
	restitutions      []float32
	frictions         []float32
	halfExtents       []mgl32.Vec3
	bounds            []vmath.AABB
	groups            []uint32
	masks             []uint32
	flags             []Flags
	idle              []float32
	grounded          []bool
	ids               []core.EntityID // row -> handle

	slotRows    []int32 // handle slot -> row, freeSlot when dead
	generations []uint32
	free        []uint32 // LIFO reuse keeps handle assignment deterministic
}

// Columns exposes the row slices to the simulation passes
// All slices have length Count(); writes go straight into the store
// Gameplay code mutates through physics.World, never through Columns
type Columns struct {
	Positions         []mgl32.Vec3
	Velocities        []mgl32.Vec3
	Rotations         []mgl32.Quat
	AngularVelocities []mgl32.Vec3
	Masses            []float32
	InverseMasses     []float32
	Restitutions      []float32
	Frictions         []float32
	HalfExtents       []mgl32.Vec3
	Bounds            []vmath.AABB
	Groups            []uint32
	Masks             []uint32
	Flags             []Flags
	Idle              []float32
	Grounded          []bool
	IDs               []core.EntityID
}

// NewStore pre-reserves every column so adds never reallocate
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = parameter.DefaultCapacity
	}
	return &Store{
		capacity:          capacity,
		positions:         make([]mgl32.Vec3, 0, capacity),
		velocities:        make([]mgl32.Vec3, 0, capacity),
		rotations:         make([]mgl32.Quat, 0, capacity),
		angularVelocities: make([]mgl32.Vec3, 0, capacity),
		masses:            make([]float32, 0, capacity),
		inverseMasses:     make([]float32, 0, capacity),
		restitutions:      make([]float32, 0, capacity),
		frictions:         make([]float32, 0, capacity),
		halfExtents:       make([]mgl32.Vec3, 0, capacity),
		bounds:            make([]vmath.AABB, 0, capacity),
		groups:            make([]uint32, 0, capacity),
		masks:             make([]uint32, 0, capacity),
		flags:             make([]Flags, 0, capacity),
		idle:              make([]float32, 0, capacity),
		grounded:          make([]bool, 0, capacity),
		ids:               make([]core.EntityID, 0, capacity),
		slotRows:          make([]int32, 0, capacity),
		generations:       make([]uint32, 0, capacity),
		free:              make([]uint32, 0, capacity),
	}
}

// AddEntity appends a dynamic body with default material, flags and filter
func (s *Store) AddEntity(position, velocity mgl32.Vec3, mass float32, halfExtents mgl32.Vec3) (core.EntityID, error) {
	def := DefaultBody(position, halfExtents)
	def.Velocity = velocity
	def.Mass = mass
	return s.Spawn(def)
}

// AddStatic appends an immovable body: zero mass, no gravity
func (s *Store) AddStatic(position, halfExtents mgl32.Vec3) (core.EntityID, error) {
	def := DefaultBody(position, halfExtents)
	def.Flags = FlagActive | FlagStatic
	def.Mass = 0
	return s.Spawn(def)
}

// Spawn validates def and appends it as a new row
func (s *Store) Spawn(def BodyDef) (core.EntityID, error) {
	if s.count >= s.capacity {
		return core.InvalidEntity, &CapacityError{Capacity: s.capacity}
	}
	if err := def.Validate(); err != nil {
		return core.InvalidEntity, err
	}

	mass := def.Mass
	if def.Flags.IsStatic() {
		mass = 0
	}
	var invMass float32
	if mass > 0 {
		invMass = 1 / mass
	}
	rot := def.Rotation
	if rot.Len() == 0 {
		rot = mgl32.QuatIdent()
	}

	id := s.allocSlot()
	row := s.count

	s.positions = append(s.positions, def.Position)
	s.velocities = append(s.velocities, def.Velocity)
	s.rotations = append(s.rotations, rot)
	s.angularVelocities = append(s.angularVelocities, def.AngularVelocity)
	s.masses = append(s.masses, mass)
	s.inverseMasses = append(s.inverseMasses, invMass)
	s.restitutions = append(s.restitutions, def.Restitution)
	s.frictions = append(s.frictions, def.Friction)
	s.halfExtents = append(s.halfExtents, def.HalfExtents)
	s.bounds = append(s.bounds, vmath.FromCenterHalfExtents(def.Position, def.HalfExtents))
	s.groups = append(s.groups, def.Group)
	s.masks = append(s.masks, def.Mask)
	s.flags = append(s.flags, def.Flags)
	s.idle = append(s.idle, 0)
	s.grounded = append(s.grounded, false)
	s.ids = append(s.ids, id)

	s.slotRows[id.Index] = int32(row)
	s.count++
	return id, nil
}

// RemoveEntity swap-removes the body's row across every column
// The former last row takes the freed row; its handle is re-pointed, the removed handle goes stale
func (s *Store) RemoveEntity(id core.EntityID) error {
	row, ok := s.Row(id)
	if !ok {
		return errors.Wrapf(ErrStaleEntity, "remove %v", id)
	}
	last := s.count - 1

	if row != last {
		moved := s.ids[last]
		s.slotRows[moved.Index] = int32(row)
	}

	s.positions = swapRemove(s.positions, row, last)
	s.velocities = swapRemove(s.velocities, row, last)
	s.rotations = swapRemove(s.rotations, row, last)
	s.angularVelocities = swapRemove(s.angularVelocities, row, last)
	s.masses = swapRemove(s.masses, row, last)
	s.inverseMasses = swapRemove(s.inverseMasses, row, last)
	s.restitutions = swapRemove(s.restitutions, row, last)
	s.frictions = swapRemove(s.frictions, row, last)
	s.halfExtents = swapRemove(s.halfExtents, row, last)
	s.bounds = swapRemove(s.bounds, row, last)
	s.groups = swapRemove(s.groups, row, last)
	s.masks = swapRemove(s.masks, row, last)
	s.flags = swapRemove(s.flags, row, last)
	s.idle = swapRemove(s.idle, row, last)
	s.grounded = swapRemove(s.grounded, row, last)
	s.ids = swapRemove(s.ids, row, last)

	s.freeSlotOf(id)
	s.count--
	return nil
}

// Clear drops every body and invalidates all outstanding handles
func (s *Store) Clear() {
	for _, id := range s.ids {
		s.freeSlotOf(id)
	}
	s.positions = s.positions[:0]
	s.velocities = s.velocities[:0]
	s.rotations = s.rotations[:0]
	s.angularVelocities = s.angularVelocities[:0]
	s.masses = s.masses[:0]
	s.inverseMasses = s.inverseMasses[:0]
	s.restitutions = s.restitutions[:0]
	s.frictions = s.frictions[:0]
	s.halfExtents = s.halfExtents[:0]
	s.bounds = s.bounds[:0]
	s.groups = s.groups[:0]
	s.masks = s.masks[:0]
	s.flags = s.flags[:0]
	s.idle = s.idle[:0]
	s.grounded = s.grounded[:0]
	s.ids = s.ids[:0]
	s.count = 0
}

// Count is the number of live bodies
func (s *Store) Count() int { return s.count }

func (s *Store) Capacity() int { return s.capacity }

// Row resolves a handle to its current dense row
func (s *Store) Row(id core.EntityID) (int, bool) {
	if !id.IsValid() || int(id.Index) >= len(s.slotRows) {
		return 0, false
	}
	if s.generations[id.Index] != id.Generation {
		return 0, false
	}
	row := s.slotRows[id.Index]
	if row == freeSlot {
		return 0, false
	}
	return int(row), true
}

// Alive reports whether the handle refers to a live body
func (s *Store) Alive(id core.EntityID) bool {
	_, ok := s.Row(id)
	return ok
}

// ID returns the handle of the body at row
func (s *Store) ID(row int) core.EntityID {
	if row < 0 || row >= s.count {
		return core.InvalidEntity
	}
	return s.ids[row]
}

// Columns returns views of every column truncated to Count()
func (s *Store) Columns() Columns {
	n := s.count
	return Columns{
		Positions:         s.positions[:n],
		Velocities:        s.velocities[:n],
		Rotations:         s.rotations[:n],
		AngularVelocities: s.angularVelocities[:n],
		Masses:            s.masses[:n],
		InverseMasses:     s.inverseMasses[:n],
		Restitutions:      s.restitutions[:n],
		Frictions:         s.frictions[:n],
		HalfExtents:       s.halfExtents[:n],
		Bounds:            s.bounds[:n],
		Groups:            s.groups[:n],
		Masks:             s.masks[:n],
		Flags:             s.flags[:n],
		Idle:              s.idle[:n],
		Grounded:          s.grounded[:n],
		IDs:               s.ids[:n],
	}
}

// UpdateBoundingBox recomputes a row's box from its position and half extents
func (s *Store) UpdateBoundingBox(row int) {
	s.bounds[row] = vmath.FromCenterHalfExtents(s.positions[row], s.halfExtents[row])
}

// --- Read accessors by handle ---

func (s *Store) Position(id core.EntityID) (mgl32.Vec3, bool) {
	row, ok := s.Row(id)
	if !ok {
		return mgl32.Vec3{}, false
	}
	return s.positions[row], true
}

func (s *Store) Velocity(id core.EntityID) (mgl32.Vec3, bool) {
	row, ok := s.Row(id)
	if !ok {
		return mgl32.Vec3{}, false
	}
	return s.velocities[row], true
}

func (s *Store) Rotation(id core.EntityID) (mgl32.Quat, bool) {
	row, ok := s.Row(id)
	if !ok {
		return mgl32.Quat{}, false
	}
	return s.rotations[row], true
}

func (s *Store) Mass(id core.EntityID) (float32, bool) {
	row, ok := s.Row(id)
	if !ok {
		return 0, false
	}
	return s.masses[row], true
}

func (s *Store) InverseMass(id core.EntityID) (float32, bool) {
	row, ok := s.Row(id)
	if !ok {
		return 0, false
	}
	return s.inverseMasses[row], true
}

func (s *Store) Bounds(id core.EntityID) (vmath.AABB, bool) {
	row, ok := s.Row(id)
	if !ok {
		return vmath.AABB{}, false
	}
	return s.bounds[row], true
}

func (s *Store) Flags(id core.EntityID) (Flags, bool) {
	row, ok := s.Row(id)
	if !ok {
		return 0, false
	}
	return s.flags[row], true
}

// Grounded reports whether the body landed on terrain during the last step
func (s *Store) Grounded(id core.EntityID) bool {
	row, ok := s.Row(id)
	return ok && s.grounded[row]
}

// --- Slot table ---

func (s *Store) allocSlot() core.EntityID {
	if n := len(s.free); n > 0 {
		slot := s.free[n-1]
		s.free = s.free[:n-1]
		return core.EntityID{Index: slot, Generation: s.generations[slot]}
	}
	slot := uint32(len(s.slotRows))
	s.slotRows = append(s.slotRows, freeSlot)
	// Generation 0 is never issued so the zero EntityID is never live
	s.generations = append(s.generations, 1)
	return core.EntityID{Index: slot, Generation: 1}
}

func (s *Store) freeSlotOf(id core.EntityID) {
	s.slotRows[id.Index] = freeSlot
	g := s.generations[id.Index] + 1
	if g == 0 {
		g = 1
	}
	s.generations[id.Index] = g
	s.free = append(s.free, id.Index)
}

// swapRemove moves col[last] into col[row] and truncates
func swapRemove[T any](col []T, row, last int) []T {
	if row != last {
		col[row] = col[last]
	}
	var zero T
	col[last] = zero
	return col[:last]
}

package engine

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/lixenwraith/voxphys/core"
	"github.com/lixenwraith/voxphys/parameter"
	"github.com/lixenwraith/voxphys/vmath"
)

// BodyDef is the full initial state of one row
type BodyDef struct {
	Position        mgl32.Vec3
	Velocity        mgl32.Vec3
	HalfExtents     mgl32.Vec3
	Rotation        mgl32.Quat // zero value is replaced by identity
	AngularVelocity mgl32.Vec3
	Mass            float32
	Restitution     float32
	Friction        float32
	Group           uint32
	Mask            uint32
	Flags           Flags
}

// DefaultBody returns a unit-mass dynamic body at rest with default material
func DefaultBody(position, halfExtents mgl32.Vec3) BodyDef {
	return BodyDef{
		Position:    position,
		HalfExtents: halfExtents,
		Rotation:    mgl32.QuatIdent(),
		Mass:        1,
		Restitution: parameter.DefaultRestitution,
		Friction:    parameter.DefaultFriction,
		Group:       parameter.DefaultCollisionGroup,
		Mask:        parameter.DefaultCollisionMask,
		Flags:       DefaultFlags,
	}
}

// Validate rejects input that would put NaN or nonsense into the columns
func (d BodyDef) Validate() error {
	if !vmath.V3Finite(d.Position) || !vmath.V3Finite(d.Velocity) ||
		!vmath.V3Finite(d.HalfExtents) || !vmath.V3Finite(d.AngularVelocity) {
		return errors.Wrap(ErrNonFinite, "body vectors")
	}
	if !vmath.IsFinite(d.Rotation.W) || !vmath.V3Finite(d.Rotation.V) {
		return errors.Wrap(ErrNonFinite, "body rotation")
	}
	if !vmath.V3NonNegative(d.HalfExtents) {
		return errors.Wrapf(ErrInvalidExtents, "half extents %v", d.HalfExtents)
	}
	if !vmath.IsFinite(d.Restitution) || !vmath.IsFinite(d.Friction) ||
		d.Restitution < 0 || d.Restitution > 1 || d.Friction < 0 {
		return errors.Wrapf(ErrInvalidMaterial, "restitution %v friction %v", d.Restitution, d.Friction)
	}
	if d.Flags.IsDynamic() && (!vmath.IsFinite(d.Mass) || d.Mass <= 0) {
		return errors.Wrapf(ErrInvalidMass, "mass %v", d.Mass)
	}
	if !vmath.IsFinite(d.Mass) || d.Mass < 0 {
		return errors.Wrapf(ErrInvalidMass, "mass %v", d.Mass)
	}
	return nil
}

// BodyBuilder provides a fluent interface over BodyDef
//
// Example usage:
//
//	id, err := store.NewBody(pos, half).
//	    Mass(2).
//	    Velocity(mgl32.Vec3{1, 0, 0}).
//	    Restitution(0.8).
//	    Build()
type BodyBuilder struct {
	spawn func(BodyDef) (core.EntityID, error)
	def   BodyDef
	built bool
}

// NewBody starts a builder whose Build appends to this store
func (s *Store) NewBody(position, halfExtents mgl32.Vec3) *BodyBuilder {
	return NewBodyBuilder(s.Spawn, position, halfExtents)
}

// NewBodyBuilder starts a builder committed through spawn
// Lets owners of a store (a world that also indexes the body) reuse the fluent API
func NewBodyBuilder(spawn func(BodyDef) (core.EntityID, error), position, halfExtents mgl32.Vec3) *BodyBuilder {
	return &BodyBuilder{spawn: spawn, def: DefaultBody(position, halfExtents)}
}

func (b *BodyBuilder) Velocity(v mgl32.Vec3) *BodyBuilder {
	b.def.Velocity = v
	return b
}

func (b *BodyBuilder) Mass(m float32) *BodyBuilder {
	b.def.Mass = m
	return b
}

func (b *BodyBuilder) Restitution(r float32) *BodyBuilder {
	b.def.Restitution = r
	return b
}

func (b *BodyBuilder) Friction(f float32) *BodyBuilder {
	b.def.Friction = f
	return b
}

func (b *BodyBuilder) Rotation(q mgl32.Quat) *BodyBuilder {
	b.def.Rotation = q
	return b
}

// Filter sets the collision group bits and the mask of groups this body collides with
func (b *BodyBuilder) Filter(group, mask uint32) *BodyBuilder {
	b.def.Group = group
	b.def.Mask = mask
	return b
}

// Static makes the body immovable; mass is forced to zero
func (b *BodyBuilder) Static() *BodyBuilder {
	b.def.Flags = (b.def.Flags | FlagStatic).With(FlagGravity, false)
	b.def.Mass = 0
	return b
}

// Kinematic makes the body follow its velocity, ignoring gravity and contacts
func (b *BodyBuilder) Kinematic() *BodyBuilder {
	b.def.Flags = (b.def.Flags | FlagKinematic).With(FlagGravity, false)
	return b
}

func (b *BodyBuilder) NoGravity() *BodyBuilder {
	b.def.Flags = b.def.Flags.With(FlagGravity, false)
	return b
}

// Def returns the definition built so far
func (b *BodyBuilder) Def() BodyDef {
	return b.def
}

// Build validates and commits the body
// Panics if called twice
func (b *BodyBuilder) Build() (core.EntityID, error) {
	if b.built {
		panic("body already built")
	}
	b.built = true
	return b.spawn(b.def)
}

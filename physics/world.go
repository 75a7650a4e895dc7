package physics

import (
	"log"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/lixenwraith/voxphys/core"
	"github.com/lixenwraith/voxphys/engine"
	"github.com/lixenwraith/voxphys/parameter"
	"github.com/lixenwraith/voxphys/status"
	"github.com/lixenwraith/voxphys/vmath"
)

var ErrInvalidWorld = errors.New("invalid world config")

// WorldConfig assembles a World
type WorldConfig struct {
	Capacity         int
	Gravity          float32
	TerminalVelocity float32
	LinearDamping    float32 // applied every step, 0 = none

	Hash       engine.HashConfig
	Solver     SolverConfig
	Integrator IntegratorConfig

	Terrain Terrain          // optional
	Logger  *log.Logger      // nil discards
	Metrics *status.Registry // nil keeps metrics private
}

func DefaultWorldConfig() WorldConfig {
	return WorldConfig{
		Capacity:         parameter.DefaultCapacity,
		Gravity:          parameter.Gravity,
		TerminalVelocity: parameter.TerminalVelocity,
		Hash:             engine.DefaultHashConfig(),
		Solver:           DefaultSolverConfig(),
		Integrator:       DefaultIntegratorConfig(),
	}
}

func (c WorldConfig) Validate() error {
	switch {
	case c.Capacity <= 0:
		return errors.Wrapf(ErrInvalidWorld, "capacity %d", c.Capacity)
	case !vmath.IsFinite(c.Gravity):
		return errors.Wrapf(ErrInvalidWorld, "gravity %v", c.Gravity)
	case !vmath.IsFinite(c.TerminalVelocity) || c.TerminalVelocity > 0:
		return errors.Wrapf(ErrInvalidWorld, "terminal velocity %v", c.TerminalVelocity)
	case !vmath.IsFinite(c.LinearDamping) || c.LinearDamping < 0 || c.LinearDamping > 1:
		return errors.Wrapf(ErrInvalidDamping, "%v", c.LinearDamping)
	}
	if err := c.Hash.Validate(); err != nil {
		return err
	}
	if err := c.Solver.Validate(); err != nil {
		return err
	}
	return c.Integrator.Validate()
}

// Transform is the render view of one active body
type Transform struct {
	ID          core.EntityID
	Position    mgl32.Vec3 // interpolated when the body was in the last snapshot
	Rotation    mgl32.Quat
	HalfExtents mgl32.Vec3
	Sleeping    bool
}

// World owns the store, broad phase, solver and clock for one simulation
// It is the only mutation surface for gameplay code
//
// Update and every mutator take the write lock; render and query reads take the read
// lock, so a reader never observes a half-applied step
type World struct {
	mu sync.RWMutex

	cfg        WorldConfig
	store      *engine.Store
	hash       *engine.SpatialHash
	solver     *Solver
	integrator *Integrator
	contacts   *CollisionData
	terrain    Terrain
	logger     *log.Logger
	metrics    worldMetrics

	grounded    int
	deactivated int
	scratch     []core.EntityID
}

func NewWorld(cfg WorldConfig) (*World, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := orDiscard(cfg.Logger)
	hash, err := engine.NewSpatialHash(cfg.Hash)
	if err != nil {
		return nil, err
	}
	solver, err := NewSolver(cfg.Solver, logger)
	if err != nil {
		return nil, err
	}
	integrator, err := NewIntegrator(cfg.Integrator, logger)
	if err != nil {
		return nil, err
	}
	return &World{
		cfg:        cfg,
		store:      engine.NewStore(cfg.Capacity),
		hash:       hash,
		solver:     solver,
		integrator: integrator,
		contacts:   NewCollisionData(cfg.Solver.MaxContacts),
		terrain:    cfg.Terrain,
		logger:     logger,
		metrics:    newWorldMetrics(cfg.Metrics),
	}, nil
}

// --- Clock ---

// Update advances the simulation by frameTime seconds of wall clock
// Returns the number of fixed steps run; ErrSlowStep is informational, the steps completed
func (w *World) Update(frameTime float32) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	steps, err := w.integrator.Update(w.store, frameTime, w.step)
	w.metrics.alpha.Set(float64(w.integrator.Alpha()))
	w.metrics.stepMax.Max(float64(w.integrator.LastStepDuration().Microseconds()))
	if steps > 0 {
		w.metrics.publishHash(w.hash.Stats())
	}
	if errors.Is(err, ErrSlowStep) {
		w.metrics.slow.Store(int64(w.integrator.SlowSteps()))
	}
	return steps, err
}

// step is the fixed-step pipeline: forces, motion, terrain, broad phase sync, contacts
func (w *World) step(store *engine.Store, dt float32) error {
	w.integrator.ApplyGravity(store, w.cfg.Gravity, w.cfg.TerminalVelocity, dt)
	if w.cfg.LinearDamping > 0 {
		if err := w.integrator.ApplyDamping(store, w.cfg.LinearDamping, dt); err != nil {
			return err
		}
	}
	w.integrator.IntegratePositions(store, dt)
	w.grounded = w.integrator.ResolveTerrain(w.terrain, store, dt)
	w.syncHash()

	stats := w.solver.Step(store, w.hash, w.contacts, dt)
	// Positional correction moved some boxes
	w.syncHash()

	w.metrics.publishStep(stats, store.Count(), w.grounded)
	return nil
}

// syncHash pushes moving bodies' boxes into the hash
// A body whose box is rejected leaves the simulation: it is deactivated, not removed
func (w *World) syncHash() {
	cols := w.store.Columns()
	for row, f := range cols.Flags {
		if !f.IsActive() || f.IsStatic() || f.IsSleeping() {
			continue
		}
		if err := w.hash.Update(cols.IDs[row], cols.Bounds[row]); err != nil {
			w.deactivate(cols, row, err)
		}
	}
}

func (w *World) deactivate(cols engine.Columns, row int, reason error) {
	id := cols.IDs[row]
	w.hash.Remove(id)
	cols.Flags[row] = cols.Flags[row].With(engine.FlagActive, false)
	cols.Velocities[row] = mgl32.Vec3{}
	w.deactivated++
	w.metrics.deactivated.Store(int64(w.deactivated))
	w.logger.Printf("world: deactivated %v at %v: %v", id, cols.Positions[row], reason)
}

// --- Gameplay surface ---

// AddEntity creates a dynamic body with default material
func (w *World) AddEntity(position, velocity mgl32.Vec3, mass float32, halfExtents mgl32.Vec3) (core.EntityID, error) {
	def := engine.DefaultBody(position, halfExtents)
	def.Velocity = velocity
	def.Mass = mass
	return w.Spawn(def)
}

// AddStatic creates an immovable body
func (w *World) AddStatic(position, halfExtents mgl32.Vec3) (core.EntityID, error) {
	def := engine.DefaultBody(position, halfExtents)
	def.Flags = engine.FlagActive | engine.FlagStatic
	def.Mass = 0
	return w.Spawn(def)
}

// Spawn adds def to the store and the hash
// A box the hash refuses (outside the world, too large) fails the whole add
func (w *World) Spawn(def engine.BodyDef) (core.EntityID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id, err := w.store.Spawn(def)
	if err != nil {
		return core.InvalidEntity, err
	}
	if !def.Flags.IsActive() {
		return id, nil
	}
	box, _ := w.store.Bounds(id)
	if err := w.hash.Insert(id, box); err != nil {
		_ = w.store.RemoveEntity(id)
		return core.InvalidEntity, err
	}
	return id, nil
}

// NewBody starts a fluent builder that spawns into this world
func (w *World) NewBody(position, halfExtents mgl32.Vec3) *engine.BodyBuilder {
	return engine.NewBodyBuilder(w.Spawn, position, halfExtents)
}

// RemoveEntity deletes id; bodies asleep against it are woken
func (w *World) RemoveEntity(id core.EntityID) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	box, ok := w.store.Bounds(id)
	if !ok {
		return errors.Wrapf(engine.ErrStaleEntity, "remove %v", id)
	}
	w.hash.Remove(id)
	if err := w.store.RemoveEntity(id); err != nil {
		return err
	}
	w.wakeRegion(box)
	return nil
}

// wakeRegion wakes sleeping bodies touching box
func (w *World) wakeRegion(box vmath.AABB) {
	skin := mgl32.Vec3{parameter.TerrainSkin, parameter.TerrainSkin, parameter.TerrainSkin}
	region := vmath.AABB{Min: box.Min.Sub(skin), Max: box.Max.Add(skin)}
	w.scratch = w.hash.QueryRegion(region, w.scratch[:0])
	cols := w.store.Columns()
	for _, other := range w.scratch {
		if row, ok := w.store.Row(other); ok && cols.Flags[row].IsSleeping() {
			Wake(cols, row)
		}
	}
}

func (w *World) SetVelocity(id core.EntityID, velocity mgl32.Vec3) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.integrator.SetVelocity(w.store, id, velocity)
}

func (w *World) ApplyForces(ids []core.EntityID, forces []mgl32.Vec3, dt float32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.integrator.ApplyForces(w.store, ids, forces, dt)
}

func (w *World) ApplyImpulses(impulses []Impulse) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.integrator.ApplyImpulses(w.store, impulses)
}

// ApplyDamping damps every dynamic body once, outside the per-step damping
func (w *World) ApplyDamping(linearDamping, dt float32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.integrator.ApplyDamping(w.store, linearDamping, dt)
}

// Teleport moves id to position with zero velocity
// A body deactivated for leaving the world is reactivated when position is back inside
func (w *World) Teleport(id core.EntityID, position mgl32.Vec3) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	row, ok := w.store.Row(id)
	if !ok {
		return errors.Wrapf(engine.ErrStaleEntity, "teleport %v", id)
	}
	cols := w.store.Columns()
	box := vmath.FromCenterHalfExtents(position, cols.HalfExtents[row])
	if err := w.hash.Update(id, box); err != nil {
		// The hash dropped it; restore the old entry if the body stays active
		if cols.Flags[row].IsActive() {
			_ = w.hash.Insert(id, cols.Bounds[row])
		}
		return err
	}
	if err := w.integrator.Teleport(w.store, id, position); err != nil {
		return err
	}
	cols.Flags[row] = cols.Flags[row].With(engine.FlagActive, true)
	return nil
}

// --- Read surface ---

// InterpolatedPosition is the render position of id between the last two steps
// False for stale handles and bodies added or moved since the last step
func (w *World) InterpolatedPosition(id core.EntityID) (mgl32.Vec3, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.integrator.InterpolatedPosition(w.store, id)
}

// Transforms appends the render view of every active body
func (w *World) Transforms(dst []Transform) []Transform {
	w.mu.RLock()
	defer w.mu.RUnlock()

	cols := w.store.Columns()
	for row, f := range cols.Flags {
		if !f.IsActive() {
			continue
		}
		id := cols.IDs[row]
		pos, ok := w.integrator.InterpolatedPosition(w.store, id)
		if !ok {
			pos = cols.Positions[row]
		}
		dst = append(dst, Transform{
			ID:          id,
			Position:    pos,
			Rotation:    cols.Rotations[row],
			HalfExtents: cols.HalfExtents[row],
			Sleeping:    f.IsSleeping(),
		})
	}
	return dst
}

// Contacts appends the contacts found by the last step
func (w *World) Contacts(dst []ContactPair) []ContactPair {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append(dst, w.contacts.Pairs()...)
}

// QueryRegion appends every body whose box overlaps box, sorted by handle
func (w *World) QueryRegion(box vmath.AABB, dst []core.EntityID) []core.EntityID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.hash.QueryRegion(box, dst)
}

func (w *World) Position(id core.EntityID) (mgl32.Vec3, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.store.Position(id)
}

func (w *World) Velocity(id core.EntityID) (mgl32.Vec3, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.store.Velocity(id)
}

func (w *World) Flags(id core.EntityID) (engine.Flags, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.store.Flags(id)
}

func (w *World) Grounded(id core.EntityID) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.store.Grounded(id)
}

func (w *World) Alive(id core.EntityID) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.store.Alive(id)
}

func (w *World) Count() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.store.Count()
}

// Stats returns the last solver step's figures
func (w *World) Stats() StepStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.solver.Stats()
}

// HashStats reports broad-phase bucket occupancy
func (w *World) HashStats() engine.HashStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.hash.Stats()
}

func (w *World) Alpha() float32 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.integrator.Alpha()
}

// Deactivated is the number of bodies taken out of simulation for leaving the world
func (w *World) Deactivated() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.deactivated
}

func (w *World) Config() WorldConfig { return w.cfg }

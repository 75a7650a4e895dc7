package physics

import (
	"log"
	"time"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/lixenwraith/voxphys/core"
	"github.com/lixenwraith/voxphys/engine"
	"github.com/lixenwraith/voxphys/parameter"
	"github.com/lixenwraith/voxphys/vmath"
)

// IntegratorConfig sets the fixed-step clock and the parallel pass width
type IntegratorConfig struct {
	FixedStep      float32
	MaxFrameTime   float32
	SlowStepBudget time.Duration // 0 disables slow-step reporting
	Workers        int
	BatchSize      int
}

func DefaultIntegratorConfig() IntegratorConfig {
	return IntegratorConfig{
		FixedStep:      parameter.FixedTimestep,
		MaxFrameTime:   parameter.MaxFrameTime,
		SlowStepBudget: parameter.SlowStepBudget,
		BatchSize:      parameter.SolverBatchSize,
	}
}

func (c IntegratorConfig) Validate() error {
	switch {
	case !vmath.IsFinite(c.FixedStep) || c.FixedStep <= 0:
		return errors.Wrapf(ErrInvalidIntegrator, "fixed step %v", c.FixedStep)
	case !vmath.IsFinite(c.MaxFrameTime) || c.MaxFrameTime < c.FixedStep:
		return errors.Wrapf(ErrInvalidIntegrator, "max frame time %v below step %v", c.MaxFrameTime, c.FixedStep)
	case c.SlowStepBudget < 0 || c.Workers < 0 || c.BatchSize <= 0:
		return errors.Wrap(ErrInvalidIntegrator, "budget or batch sizing")
	}
	return nil
}

// StepFunc advances the store by exactly dt
type StepFunc func(store *engine.Store, dt float32) error

// Impulse is an instantaneous velocity change request, scaled by inverse mass
type Impulse struct {
	ID      core.EntityID
	Impulse mgl32.Vec3
}

// Integrator runs a fixed-step accumulator over a variable frame clock
// and keeps the pre-step snapshot used for render interpolation
type Integrator struct {
	cfg     IntegratorConfig
	workers int
	logger  *log.Logger

	accumulator float32
	alpha       float32

	prevPositions  []mgl32.Vec3
	prevVelocities []mgl32.Vec3
	prevIDs        []core.EntityID
	prevRows       []int32 // handle slot -> snapshot row, checked against prevIDs

	steps     uint64
	slowSteps uint64
	lastStep  time.Duration
}

func NewIntegrator(cfg IntegratorConfig, logger *log.Logger) (*Integrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	workers := cfg.Workers
	if workers == 0 {
		workers = DefaultWorkers()
	}
	return &Integrator{cfg: cfg, workers: workers, logger: orDiscard(logger)}, nil
}

func (i *Integrator) Config() IntegratorConfig { return i.cfg }

// Alpha is the interpolation factor left by the last Update, in [0,1)
func (i *Integrator) Alpha() float32 { return i.alpha }

func (i *Integrator) Accumulator() float32 { return i.accumulator }

// Steps is the total number of fixed steps run
func (i *Integrator) Steps() uint64 { return i.steps }

func (i *Integrator) SlowSteps() uint64 { return i.slowSteps }

// LastStepDuration is the wall time of the most recent step
func (i *Integrator) LastStepDuration() time.Duration { return i.lastStep }

// Reset drops accumulated time and the interpolation snapshot
func (i *Integrator) Reset() {
	i.accumulator = 0
	i.alpha = 0
	i.prevPositions = i.prevPositions[:0]
	i.prevVelocities = i.prevVelocities[:0]
	i.prevIDs = i.prevIDs[:0]
}

// Update adds frameTime to the accumulator and runs step for each whole fixed step
// Returns the number of steps run; a step error stops the loop and is returned as is
// Slow steps do not interrupt the loop and are reported once it completes
func (i *Integrator) Update(store *engine.Store, frameTime float32, step StepFunc) (int, error) {
	if !vmath.IsFinite(frameTime) || frameTime < 0 {
		return 0, errors.Wrapf(ErrInvalidFrameTime, "%v", frameTime)
	}
	if frameTime > i.cfg.MaxFrameTime {
		frameTime = i.cfg.MaxFrameTime
	}
	i.accumulator += frameTime

	ran, slow := 0, 0
	var worst time.Duration
	for i.accumulator >= i.cfg.FixedStep {
		i.snapshot(store)

		start := time.Now()
		if err := step(store, i.cfg.FixedStep); err != nil {
			i.alpha = i.accumulator / i.cfg.FixedStep
			return ran, err
		}
		i.lastStep = time.Since(start)

		i.accumulator -= i.cfg.FixedStep
		i.steps++
		ran++
		if i.cfg.SlowStepBudget > 0 && i.lastStep > i.cfg.SlowStepBudget {
			slow++
			worst = max(worst, i.lastStep)
		}
	}
	i.alpha = i.accumulator / i.cfg.FixedStep

	if slow > 0 {
		i.slowSteps += uint64(slow)
		i.logger.Printf("integrator: %d of %d steps over budget %v, worst %v", slow, ran, i.cfg.SlowStepBudget, worst)
		return ran, errors.Wrapf(ErrSlowStep, "%d steps, worst %v", slow, worst)
	}
	return ran, nil
}

func (i *Integrator) snapshot(store *engine.Store) {
	cols := store.Columns()
	i.prevPositions = append(i.prevPositions[:0], cols.Positions...)
	i.prevVelocities = append(i.prevVelocities[:0], cols.Velocities...)
	i.prevIDs = append(i.prevIDs[:0], cols.IDs...)
	for row, id := range cols.IDs {
		if int(id.Index) >= len(i.prevRows) {
			i.prevRows = append(i.prevRows, make([]int32, int(id.Index)+1-len(i.prevRows))...)
		}
		i.prevRows[id.Index] = int32(row)
	}
}

// snapshotRow finds id's row in the snapshot
// Slots left over from older snapshots fail the prevIDs check
func (i *Integrator) snapshotRow(id core.EntityID) (int, bool) {
	if !id.IsValid() || int(id.Index) >= len(i.prevRows) {
		return 0, false
	}
	row := int(i.prevRows[id.Index])
	if row >= len(i.prevIDs) || i.prevIDs[row] != id {
		return 0, false
	}
	return row, true
}

// InterpolatedPosition blends the pre-step snapshot toward the current position by Alpha
// False when id is stale or was absent when the snapshot was taken
func (i *Integrator) InterpolatedPosition(store *engine.Store, id core.EntityID) (mgl32.Vec3, bool) {
	prev, ok := i.snapshotRow(id)
	if !ok {
		return mgl32.Vec3{}, false
	}
	row, ok := store.Row(id)
	if !ok {
		return mgl32.Vec3{}, false
	}
	return vmath.V3Lerp(i.prevPositions[prev], store.Columns().Positions[row], i.alpha), true
}

// PreviousVelocity is the velocity id had before the most recent step
func (i *Integrator) PreviousVelocity(store *engine.Store, id core.EntityID) (mgl32.Vec3, bool) {
	if !store.Alive(id) {
		return mgl32.Vec3{}, false
	}
	row, ok := i.snapshotRow(id)
	if !ok {
		return mgl32.Vec3{}, false
	}
	return i.prevVelocities[row], true
}

// --- Gameplay mutation ---

// ApplyForces adds force·invMass·dt to each dynamic body
// Input is checked in full before any body changes
func (i *Integrator) ApplyForces(store *engine.Store, ids []core.EntityID, forces []mgl32.Vec3, dt float32) error {
	if len(ids) != len(forces) {
		return errors.Wrapf(ErrLengthMismatch, "%d ids, %d forces", len(ids), len(forces))
	}
	if !vmath.IsFinite(dt) || dt < 0 {
		return errors.Wrapf(engine.ErrNonFinite, "dt %v", dt)
	}
	if err := checkTargets(store, ids, forces); err != nil {
		return err
	}

	cols := store.Columns()
	for k, id := range ids {
		row, _ := store.Row(id)
		if !cols.Flags[row].IsDynamic() {
			continue
		}
		f := forces[k]
		if f == (mgl32.Vec3{}) {
			continue
		}
		cols.Velocities[row] = cols.Velocities[row].Add(f.Mul(cols.InverseMasses[row] * dt))
		Wake(cols, row)
	}
	return nil
}

// ApplyImpulses adds impulse·invMass per entry, in slice order
// Entries naming the same body accumulate
func (i *Integrator) ApplyImpulses(store *engine.Store, impulses []Impulse) error {
	for _, imp := range impulses {
		if _, ok := store.Row(imp.ID); !ok {
			return errors.Wrapf(engine.ErrStaleEntity, "impulse %v", imp.ID)
		}
		if !vmath.V3Finite(imp.Impulse) {
			return errors.Wrapf(engine.ErrNonFinite, "impulse on %v", imp.ID)
		}
	}

	cols := store.Columns()
	for _, imp := range impulses {
		row, _ := store.Row(imp.ID)
		if !cols.Flags[row].IsDynamic() || imp.Impulse == (mgl32.Vec3{}) {
			continue
		}
		cols.Velocities[row] = cols.Velocities[row].Add(imp.Impulse.Mul(cols.InverseMasses[row]))
		Wake(cols, row)
	}
	return nil
}

// ApplyDamping scales every dynamic velocity by (1-d)^dt
func (i *Integrator) ApplyDamping(store *engine.Store, linearDamping, dt float32) error {
	if !vmath.IsFinite(linearDamping) || linearDamping < 0 || linearDamping > 1 {
		return errors.Wrapf(ErrInvalidDamping, "%v", linearDamping)
	}
	if !vmath.IsFinite(dt) || dt < 0 {
		return errors.Wrapf(engine.ErrNonFinite, "dt %v", dt)
	}
	if linearDamping == 0 || dt == 0 {
		return nil
	}
	factor := math32.Pow(1-linearDamping, dt)
	cols := store.Columns()
	forEachBatch(len(cols.Velocities), i.cfg.BatchSize, i.workers, func(_, lo, hi int) {
		for row := lo; row < hi; row++ {
			if cols.Flags[row].IsDynamic() {
				cols.Velocities[row] = cols.Velocities[row].Mul(factor)
			}
		}
	})
	return nil
}

// Teleport places id at position with zero velocity
// The snapshot is moved too so the jump is not interpolated
func (i *Integrator) Teleport(store *engine.Store, id core.EntityID, position mgl32.Vec3) error {
	if !vmath.V3Finite(position) {
		return errors.Wrapf(engine.ErrNonFinite, "teleport %v", id)
	}
	row, ok := store.Row(id)
	if !ok {
		return errors.Wrapf(engine.ErrStaleEntity, "teleport %v", id)
	}
	cols := store.Columns()
	cols.Positions[row] = position
	cols.Velocities[row] = mgl32.Vec3{}
	cols.Grounded[row] = false
	store.UpdateBoundingBox(row)
	Wake(cols, row)
	if r, ok := i.snapshotRow(id); ok {
		i.prevPositions[r] = position
		i.prevVelocities[r] = mgl32.Vec3{}
	}
	return nil
}

// SetVelocity overrides id's velocity and wakes it
func (i *Integrator) SetVelocity(store *engine.Store, id core.EntityID, velocity mgl32.Vec3) error {
	if !vmath.V3Finite(velocity) {
		return errors.Wrapf(engine.ErrNonFinite, "velocity %v", id)
	}
	row, ok := store.Row(id)
	if !ok {
		return errors.Wrapf(engine.ErrStaleEntity, "set velocity %v", id)
	}
	cols := store.Columns()
	cols.Velocities[row] = velocity
	Wake(cols, row)
	return nil
}

func checkTargets(store *engine.Store, ids []core.EntityID, values []mgl32.Vec3) error {
	for k, id := range ids {
		if _, ok := store.Row(id); !ok {
			return errors.Wrapf(engine.ErrStaleEntity, "entry %d: %v", k, id)
		}
		if !vmath.V3Finite(values[k]) {
			return errors.Wrapf(engine.ErrNonFinite, "entry %d: %v", k, id)
		}
	}
	return nil
}

// --- Step passes ---

// ApplyGravity accelerates awake dynamic bodies on Y and clamps to terminal velocity
func (i *Integrator) ApplyGravity(store *engine.Store, gravity, terminal, dt float32) {
	cols := store.Columns()
	dv := gravity * dt
	forEachBatch(len(cols.Velocities), i.cfg.BatchSize, i.workers, func(_, lo, hi int) {
		for row := lo; row < hi; row++ {
			f := cols.Flags[row]
			if !f.Simulated() || !f.HasGravity() {
				continue
			}
			v := cols.Velocities[row][vmath.AxisY] + dv
			if v < terminal {
				v = terminal
			}
			cols.Velocities[row][vmath.AxisY] = v
		}
	})
}

// IntegratePositions moves every awake non-static body by velocity·dt and refreshes its box
// Rotation follows angular velocity when one is set
func (i *Integrator) IntegratePositions(store *engine.Store, dt float32) {
	cols := store.Columns()
	forEachBatch(len(cols.Positions), i.cfg.BatchSize, i.workers, func(_, lo, hi int) {
		for row := lo; row < hi; row++ {
			f := cols.Flags[row]
			if !f.IsActive() || f.IsStatic() || f.IsSleeping() {
				continue
			}
			cols.Positions[row] = cols.Positions[row].Add(cols.Velocities[row].Mul(dt))
			cols.Bounds[row] = vmath.FromCenterHalfExtents(cols.Positions[row], cols.HalfExtents[row])
			if w := cols.AngularVelocities[row]; w != (mgl32.Vec3{}) {
				q := cols.Rotations[row]
				spin := mgl32.Quat{V: w}.Mul(q).Scale(0.5 * dt)
				cols.Rotations[row] = q.Add(spin).Normalize()
			}
		}
	})
}

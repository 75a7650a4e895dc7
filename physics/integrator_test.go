package physics

import (
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lixenwraith/voxphys/core"
	"github.com/lixenwraith/voxphys/engine"
)

func newTestIntegrator(t *testing.T, mutate func(*IntegratorConfig)) *Integrator {
	t.Helper()
	cfg := DefaultIntegratorConfig()
	cfg.Workers = 1
	if mutate != nil {
		mutate(&cfg)
	}
	i, err := NewIntegrator(cfg, nil)
	require.NoError(t, err)
	return i
}

// coarseStep uses binary-exact timing so step counts do not depend on rounding
func coarseStep(c *IntegratorConfig) {
	c.FixedStep = 0.125
	c.MaxFrameTime = 0.5
}

func noopStep(*engine.Store, float32) error { return nil }

// TestIntegrator_ConfigValidation verifies bad clocks are refused
func TestIntegrator_ConfigValidation(t *testing.T) {
	for name, mutate := range map[string]func(*IntegratorConfig){
		"zero step":     func(c *IntegratorConfig) { c.FixedStep = 0 },
		"nan step":      func(c *IntegratorConfig) { c.FixedStep = float32(math.NaN()) },
		"clamp < step":  func(c *IntegratorConfig) { c.MaxFrameTime = c.FixedStep / 2 },
		"no batch size": func(c *IntegratorConfig) { c.BatchSize = 0 },
	} {
		cfg := DefaultIntegratorConfig()
		mutate(&cfg)
		_, err := NewIntegrator(cfg, nil)
		assert.True(t, errors.Is(err, ErrInvalidIntegrator), name)
	}
}

// TestIntegrator_Interpolation verifies alpha 0 renders the pre-step position
// and alpha near 1 renders the post-step position
func TestIntegrator_Interpolation(t *testing.T) {
	in := newTestIntegrator(t, nil)
	store := engine.NewStore(4)
	def := engine.DefaultBody(mgl32.Vec3{}, unitHalf)
	def.Velocity = mgl32.Vec3{6, 0, 0}
	id, err := store.Spawn(def)
	require.NoError(t, err)

	integrate := func(s *engine.Store, dt float32) error {
		in.IntegratePositions(s, dt)
		return nil
	}

	step := in.Config().FixedStep
	n, err := in.Update(store, step, integrate)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Zero(t, in.Alpha())

	pos, ok := in.InterpolatedPosition(store, id)
	require.True(t, ok)
	assert.Equal(t, mgl32.Vec3{}, pos)

	n, err = in.Update(store, 0.999*step, integrate)
	require.NoError(t, err)
	require.Zero(t, n)
	assert.InDelta(t, 0.999, in.Alpha(), 1e-4)

	current, _ := store.Position(id)
	pos, ok = in.InterpolatedPosition(store, id)
	require.True(t, ok)
	assert.InDelta(t, current[0], pos[0], 1e-3)
	assert.InDelta(t, 0.1, current[0], 1e-5)

	prev, ok := in.PreviousVelocity(store, id)
	require.True(t, ok)
	assert.Equal(t, mgl32.Vec3{6, 0, 0}, prev)
}

// TestIntegrator_InterpolationUnknownHandle verifies bodies missing from the snapshot report false
func TestIntegrator_InterpolationUnknownHandle(t *testing.T) {
	in := newTestIntegrator(t, nil)
	store := engine.NewStore(4)
	_, err := in.Update(store, in.Config().FixedStep, noopStep)
	require.NoError(t, err)

	late, err := store.Spawn(engine.DefaultBody(mgl32.Vec3{}, unitHalf))
	require.NoError(t, err)
	_, ok := in.InterpolatedPosition(store, late)
	assert.False(t, ok)
	_, ok = in.InterpolatedPosition(store, core.InvalidEntity)
	assert.False(t, ok)
}

// TestIntegrator_InterpolationAfterSwapRemove verifies a body moved to another row by a
// removal still interpolates from its own snapshot entry
func TestIntegrator_InterpolationAfterSwapRemove(t *testing.T) {
	in := newTestIntegrator(t, nil)
	store := engine.NewStore(4)

	ids := make([]core.EntityID, 3)
	for k := range ids {
		def := engine.DefaultBody(mgl32.Vec3{float32(k) * 10, 0, 0}, unitHalf)
		def.Velocity = mgl32.Vec3{0, 6, 0}
		id, err := store.Spawn(def)
		require.NoError(t, err)
		ids[k] = id
	}
	integrate := func(s *engine.Store, dt float32) error {
		in.IntegratePositions(s, dt)
		return nil
	}

	step := in.Config().FixedStep
	_, err := in.Update(store, 1.5*step, integrate)
	require.NoError(t, err)
	require.InDelta(t, 0.5, in.Alpha(), 1e-4)

	// The last row moves into the removed body's row
	require.NoError(t, store.RemoveEntity(ids[0]))
	row, ok := store.Row(ids[2])
	require.True(t, ok)
	require.Equal(t, 0, row)

	pos, ok := in.InterpolatedPosition(store, ids[2])
	require.True(t, ok)
	assert.InDelta(t, 20, pos[0], 1e-5)
	assert.InDelta(t, 0.05, pos[1], 1e-4)

	pos, ok = in.InterpolatedPosition(store, ids[1])
	require.True(t, ok)
	assert.InDelta(t, 10, pos[0], 1e-5)

	_, ok = in.InterpolatedPosition(store, ids[0])
	assert.False(t, ok)
	_, ok = in.PreviousVelocity(store, ids[0])
	assert.False(t, ok)

	// A new body reusing the freed slot was not in the snapshot
	fresh, err := store.Spawn(engine.DefaultBody(mgl32.Vec3{}, unitHalf))
	require.NoError(t, err)
	require.Equal(t, ids[0].Index, fresh.Index)
	_, ok = in.InterpolatedPosition(store, fresh)
	assert.False(t, ok)
}

// TestIntegrator_FrameClamp verifies a long frame runs at most MaxFrameTime worth of steps
func TestIntegrator_FrameClamp(t *testing.T) {
	in := newTestIntegrator(t, coarseStep)
	store := engine.NewStore(1)

	n, err := in.Update(store, 10, noopStep)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Zero(t, in.Accumulator())
	assert.Equal(t, uint64(4), in.Steps())

	n, err = in.Update(store, 0.0625, noopStep)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, float32(0.5), in.Alpha())

	in.Reset()
	assert.Zero(t, in.Accumulator())
	assert.Zero(t, in.Alpha())
}

// TestIntegrator_InvalidFrameTime verifies non-finite and negative frames are refused untouched
func TestIntegrator_InvalidFrameTime(t *testing.T) {
	in := newTestIntegrator(t, coarseStep)
	store := engine.NewStore(1)

	for _, ft := range []float32{-0.1, float32(math.NaN()), float32(math.Inf(1))} {
		n, err := in.Update(store, ft, noopStep)
		assert.True(t, errors.Is(err, ErrInvalidFrameTime), "frame %v", ft)
		assert.Zero(t, n)
	}
	assert.Zero(t, in.Accumulator())
}

// TestIntegrator_StepError verifies a failing step stops the loop and surfaces its error
func TestIntegrator_StepError(t *testing.T) {
	in := newTestIntegrator(t, coarseStep)
	store := engine.NewStore(1)
	boom := errors.New("boom")

	calls := 0
	n, err := in.Update(store, 0.5, func(*engine.Store, float32) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	assert.Equal(t, boom, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, calls)
}

// TestIntegrator_SlowStep verifies over-budget steps complete and are reported once
func TestIntegrator_SlowStep(t *testing.T) {
	in := newTestIntegrator(t, func(c *IntegratorConfig) {
		coarseStep(c)
		c.SlowStepBudget = time.Nanosecond
	})
	store := engine.NewStore(1)

	n, err := in.Update(store, 0.25, func(*engine.Store, float32) error {
		time.Sleep(time.Millisecond)
		return nil
	})
	assert.True(t, errors.Is(err, ErrSlowStep))
	assert.Equal(t, 2, n)
	assert.Equal(t, uint64(2), in.SlowSteps())
	assert.GreaterOrEqual(t, in.LastStepDuration(), time.Millisecond)
}

// TestIntegrator_GravityTerminalClamp verifies fall speed never passes terminal velocity
func TestIntegrator_GravityTerminalClamp(t *testing.T) {
	in := newTestIntegrator(t, nil)
	store := engine.NewStore(4)
	def := engine.DefaultBody(mgl32.Vec3{0, 200, 0}, unitHalf)
	def.Velocity = mgl32.Vec3{0, -490, 0}
	id, err := store.Spawn(def)
	require.NoError(t, err)
	floating, err := store.NewBody(mgl32.Vec3{5, 200, 0}, unitHalf).NoGravity().Build()
	require.NoError(t, err)
	static, err := store.AddStatic(mgl32.Vec3{10, 200, 0}, unitHalf)
	require.NoError(t, err)

	dt := float32(1.0 / 60)
	for k := 0; k < 20; k++ {
		in.ApplyGravity(store, -98.1, -500, dt)
		in.IntegratePositions(store, dt)
	}

	v, _ := store.Velocity(id)
	assert.Equal(t, float32(-500), v[1])
	box, _ := store.Bounds(id)
	pos, _ := store.Position(id)
	assert.Equal(t, pos, box.Center())

	v, _ = store.Velocity(floating)
	assert.Equal(t, mgl32.Vec3{}, v)
	p, _ := store.Position(static)
	assert.Equal(t, mgl32.Vec3{10, 200, 0}, p)
}

// TestIntegrator_ApplyDamping verifies the (1-d)^dt factor and the zero no-op
func TestIntegrator_ApplyDamping(t *testing.T) {
	in := newTestIntegrator(t, nil)
	store := engine.NewStore(4)
	id, err := store.AddEntity(mgl32.Vec3{}, mgl32.Vec3{4, -2, 8}, 1, unitHalf)
	require.NoError(t, err)

	require.NoError(t, in.ApplyDamping(store, 0, 1))
	v, _ := store.Velocity(id)
	assert.Equal(t, mgl32.Vec3{4, -2, 8}, v)

	require.NoError(t, in.ApplyDamping(store, 0.5, 1))
	v, _ = store.Velocity(id)
	assert.InDelta(t, 2, v[0], 1e-5)
	assert.InDelta(t, -1, v[1], 1e-5)
	assert.InDelta(t, 4, v[2], 1e-5)

	for _, d := range []float32{-0.1, 1.5, float32(math.NaN())} {
		err := in.ApplyDamping(store, d, 1)
		assert.True(t, errors.Is(err, ErrInvalidDamping), "damping %v", d)
	}
}

// TestIntegrator_ApplyForces verifies validation runs before any body changes
func TestIntegrator_ApplyForces(t *testing.T) {
	in := newTestIntegrator(t, nil)
	store := engine.NewStore(4)
	a, _ := store.AddEntity(mgl32.Vec3{}, mgl32.Vec3{}, 2, unitHalf)
	b, _ := store.AddEntity(mgl32.Vec3{3, 0, 0}, mgl32.Vec3{}, 1, unitHalf)
	wall, _ := store.AddStatic(mgl32.Vec3{6, 0, 0}, unitHalf)

	err := in.ApplyForces(store, []core.EntityID{a, b}, []mgl32.Vec3{{1, 0, 0}}, 1)
	assert.True(t, errors.Is(err, ErrLengthMismatch))

	stale := core.EntityID{Index: 3, Generation: 7}
	err = in.ApplyForces(store, []core.EntityID{a, stale}, []mgl32.Vec3{{10, 0, 0}, {1, 0, 0}}, 1)
	assert.True(t, errors.Is(err, engine.ErrStaleEntity))
	v, _ := store.Velocity(a)
	assert.Equal(t, mgl32.Vec3{}, v, "partial application")

	inf := float32(math.Inf(1))
	err = in.ApplyForces(store, []core.EntityID{a}, []mgl32.Vec3{{inf, 0, 0}}, 1)
	assert.True(t, errors.Is(err, engine.ErrNonFinite))

	require.NoError(t, in.ApplyForces(store, []core.EntityID{a, b, wall}, []mgl32.Vec3{{4, 0, 0}, {0, 4, 0}, {9, 9, 9}}, 0.5))
	v, _ = store.Velocity(a)
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, v)
	v, _ = store.Velocity(b)
	assert.Equal(t, mgl32.Vec3{0, 2, 0}, v)
	v, _ = store.Velocity(wall)
	assert.Equal(t, mgl32.Vec3{}, v)
}

// TestIntegrator_ApplyImpulses verifies impulses scale by inverse mass, accumulate and wake
func TestIntegrator_ApplyImpulses(t *testing.T) {
	in := newTestIntegrator(t, nil)
	store := engine.NewStore(4)
	id, _ := store.AddEntity(mgl32.Vec3{}, mgl32.Vec3{}, 2, unitHalf)
	row, _ := store.Row(id)
	cols := store.Columns()
	cols.Flags[row] |= engine.FlagSleeping

	require.NoError(t, in.ApplyImpulses(store, []Impulse{
		{ID: id, Impulse: mgl32.Vec3{2, 0, 0}},
		{ID: id, Impulse: mgl32.Vec3{2, 0, 0}},
	}))
	v, _ := store.Velocity(id)
	assert.Equal(t, mgl32.Vec3{2, 0, 0}, v)
	f, _ := store.Flags(id)
	assert.False(t, f.IsSleeping())

	err := in.ApplyImpulses(store, []Impulse{{ID: core.InvalidEntity, Impulse: mgl32.Vec3{1, 0, 0}}})
	assert.True(t, errors.Is(err, engine.ErrStaleEntity))
}

// TestIntegrator_Teleport verifies the body lands exactly and is not interpolated across the jump
func TestIntegrator_Teleport(t *testing.T) {
	in := newTestIntegrator(t, nil)
	store := engine.NewStore(4)
	id, _ := store.AddEntity(mgl32.Vec3{}, mgl32.Vec3{3, 3, 3}, 1, unitHalf)

	integrate := func(s *engine.Store, dt float32) error {
		in.IntegratePositions(s, dt)
		return nil
	}
	_, err := in.Update(store, 1.5*in.Config().FixedStep, integrate)
	require.NoError(t, err)

	target := mgl32.Vec3{10, 20, 30}
	require.NoError(t, in.Teleport(store, id, target))

	pos, _ := store.Position(id)
	assert.Equal(t, target, pos)
	v, _ := store.Velocity(id)
	assert.Equal(t, mgl32.Vec3{}, v)
	box, _ := store.Bounds(id)
	assert.Equal(t, target, box.Center())
	assert.False(t, store.Grounded(id))

	interp, ok := in.InterpolatedPosition(store, id)
	require.True(t, ok)
	assert.Equal(t, target, interp)

	nan := float32(math.NaN())
	assert.True(t, errors.Is(in.Teleport(store, id, mgl32.Vec3{nan, 0, 0}), engine.ErrNonFinite))
	assert.True(t, errors.Is(in.Teleport(store, core.InvalidEntity, target), engine.ErrStaleEntity))
}

// TestIntegrator_ParallelPassesMatchSerial verifies batch width does not change integration
func TestIntegrator_ParallelPassesMatchSerial(t *testing.T) {
	run := func(workers int) []mgl32.Vec3 {
		in := newTestIntegrator(t, func(c *IntegratorConfig) {
			c.Workers = workers
			c.BatchSize = 3
		})
		store := engine.NewStore(64)
		for k := 0; k < 50; k++ {
			_, err := store.AddEntity(mgl32.Vec3{float32(k), 50, 0}, mgl32.Vec3{float32(k % 7), 0, float32(k % 3)}, 1, unitHalf)
			require.NoError(t, err)
		}
		for k := 0; k < 30; k++ {
			in.ApplyGravity(store, -98.1, -500, 1.0/60)
			require.NoError(t, in.ApplyDamping(store, 0.1, 1.0/60))
			in.IntegratePositions(store, 1.0/60)
		}
		return append([]mgl32.Vec3(nil), store.Columns().Positions...)
	}
	assert.Equal(t, run(1), run(6))
}

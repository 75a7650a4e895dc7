package physics

import (
	"cmp"
	"log"
	"slices"
	"time"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/lixenwraith/voxphys/core"
	"github.com/lixenwraith/voxphys/engine"
	"github.com/lixenwraith/voxphys/parameter"
	"github.com/lixenwraith/voxphys/vmath"
)

var ErrInvalidSolver = errors.New("invalid solver config")

// SolverConfig tunes contact detection and resolution
type SolverConfig struct {
	Workers            int     // fork-join width, 0 = GOMAXPROCS
	BatchSize          int     // rows or pairs per work item
	Iterations         int     // velocity passes per step
	PositionIterations int     // correction passes per step, penetration re-measured each pass
	PositionCorrection float32 // fraction of remaining penetration removed per pass
	PenetrationSlop    float32
	BounceThreshold    float32 // approach speed below which restitution is ignored
	RestitutionRule    CombineRule
	FrictionRule       CombineRule
	MaxContacts        int
	SleepVelocity      float32 // <= 0 disables sleeping
	SleepDelay         float32
}

func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		BatchSize:          parameter.SolverBatchSize,
		Iterations:         parameter.SolverIterations,
		PositionIterations: parameter.PositionIterations,
		PositionCorrection: parameter.PositionCorrection,
		PenetrationSlop:    parameter.PenetrationSlop,
		BounceThreshold:    parameter.BounceThreshold,
		RestitutionRule:    CombineMin,
		FrictionRule:       CombineAverage,
		MaxContacts:        parameter.MaxContacts,
		SleepVelocity:      parameter.SleepVelocity,
		SleepDelay:         parameter.SleepDelay,
	}
}

func (c SolverConfig) Validate() error {
	switch {
	case c.Workers < 0:
		return errors.Wrapf(ErrInvalidSolver, "workers %d", c.Workers)
	case c.BatchSize <= 0:
		return errors.Wrapf(ErrInvalidSolver, "batch size %d", c.BatchSize)
	case c.Iterations <= 0:
		return errors.Wrapf(ErrInvalidSolver, "iterations %d", c.Iterations)
	case c.PositionIterations <= 0:
		return errors.Wrapf(ErrInvalidSolver, "position iterations %d", c.PositionIterations)
	case c.MaxContacts <= 0:
		return errors.Wrapf(ErrInvalidSolver, "max contacts %d", c.MaxContacts)
	case c.PositionCorrection < 0 || c.PositionCorrection > 1:
		return errors.Wrapf(ErrInvalidSolver, "position correction %v", c.PositionCorrection)
	case c.PenetrationSlop < 0 || c.BounceThreshold < 0 || c.SleepDelay < 0:
		return errors.Wrap(ErrInvalidSolver, "negative threshold")
	}
	return nil
}

// StepStats describes the most recent solver step
type StepStats struct {
	Candidates int // broad-phase pairs
	Contacts   int // contacts kept
	Dropped    int // contacts refused by the bounded buffer
	Woken      int
	Sleeping   int
	Broad      time.Duration
	Narrow     time.Duration
	Resolve    time.Duration
}

// candidate is a broad-phase pair by row, always a < b
type candidate struct {
	a, b int
}

func compareCandidates(x, y candidate) int {
	if c := cmp.Compare(x.a, y.a); c != 0 {
		return c
	}
	return cmp.Compare(x.b, y.b)
}

// batchScratch is owned by exactly one work item per phase
type batchScratch struct {
	ids        []core.EntityID
	candidates []candidate
	contacts   []ContactPair
}

// Solver finds and resolves body-body contacts
// Detection fans out over batches; merging and resolution run on the calling goroutine
// so results do not depend on the worker count
type Solver struct {
	cfg     SolverConfig
	workers int
	logger  *log.Logger

	scratch    []batchScratch
	candidates []candidate
	stats      StepStats
}

func NewSolver(cfg SolverConfig, logger *log.Logger) (*Solver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	workers := cfg.Workers
	if workers == 0 {
		workers = DefaultWorkers()
	}
	return &Solver{cfg: cfg, workers: workers, logger: orDiscard(logger)}, nil
}

func (s *Solver) Config() SolverConfig { return s.cfg }

// Stats returns the figures from the last Step
func (s *Solver) Stats() StepStats { return s.stats }

// Step runs broad phase, narrow phase, resolution and the sleep pass
// The hash must hold the current bounds of every active body; data is reset first
func (s *Solver) Step(store *engine.Store, hash *engine.SpatialHash, data *CollisionData, dt float32) StepStats {
	s.stats = StepStats{}
	data.Reset()
	cols := store.Columns()

	t0 := time.Now()
	s.broadPhase(store, hash, cols)
	t1 := time.Now()
	s.narrowPhase(cols, data)
	t2 := time.Now()
	s.resolve(cols, data.Pairs())
	s.updateSleep(cols, dt)
	t3 := time.Now()

	s.stats.Candidates = len(s.candidates)
	s.stats.Contacts = data.Len()
	s.stats.Dropped = data.Dropped()
	s.stats.Broad = t1.Sub(t0)
	s.stats.Narrow = t2.Sub(t1)
	s.stats.Resolve = t3.Sub(t2)

	if s.stats.Dropped > 0 {
		s.logger.Printf("solver: contact buffer full, dropped %d of %d", s.stats.Dropped, s.stats.Dropped+s.stats.Contacts)
	}
	return s.stats
}

// --- Detection ---

// isSource marks rows that query the hash for partners
// Sleeping and static bodies are found by others but never search
func isSource(f engine.Flags) bool {
	return f.IsActive() && !f.IsSleeping() && !f.IsStatic()
}

func filtersAccept(cols engine.Columns, a, b int) bool {
	return cols.Groups[a]&cols.Masks[b] != 0 && cols.Groups[b]&cols.Masks[a] != 0
}

func (s *Solver) ensureScratch(batches int) {
	if len(s.scratch) < batches {
		s.scratch = append(s.scratch, make([]batchScratch, batches-len(s.scratch))...)
	}
}

func (s *Solver) broadPhase(store *engine.Store, hash *engine.SpatialHash, cols engine.Columns) {
	n := len(cols.IDs)
	batches := batchCount(n, s.cfg.BatchSize)
	s.ensureScratch(batches)

	forEachBatch(n, s.cfg.BatchSize, s.workers, func(b, lo, hi int) {
		sc := &s.scratch[b]
		sc.candidates = sc.candidates[:0]
		for a := lo; a < hi; a++ {
			fa := cols.Flags[a]
			if !isSource(fa) {
				continue
			}
			sc.ids = hash.PotentialCollisions(cols.IDs[a], sc.ids[:0])
			for _, other := range sc.ids {
				row, ok := store.Row(other)
				if !ok || row == a {
					continue
				}
				fb := cols.Flags[row]
				if !fb.IsActive() {
					continue
				}
				// A pair of two sources is emitted once, by the lower row
				if isSource(fb) && row < a {
					continue
				}
				if !filtersAccept(cols, a, row) {
					continue
				}
				sc.candidates = append(sc.candidates, candidate{a: min(a, row), b: max(a, row)})
			}
		}
	})

	s.candidates = s.candidates[:0]
	for b := 0; b < batches; b++ {
		s.candidates = append(s.candidates, s.scratch[b].candidates...)
	}
	slices.SortFunc(s.candidates, compareCandidates)
}

func (s *Solver) narrowPhase(cols engine.Columns, data *CollisionData) {
	n := len(s.candidates)
	batches := batchCount(n, s.cfg.BatchSize)
	s.ensureScratch(batches)

	forEachBatch(n, s.cfg.BatchSize, s.workers, func(b, lo, hi int) {
		sc := &s.scratch[b]
		sc.contacts = sc.contacts[:0]
		for _, c := range s.candidates[lo:hi] {
			point, normal, depth, ok := boxContact(cols.Bounds[c.a], cols.Bounds[c.b])
			if !ok {
				continue
			}
			sc.contacts = append(sc.contacts, ContactPair{
				A: cols.IDs[c.a], B: cols.IDs[c.b],
				RowA: c.a, RowB: c.b,
				Point: point, Normal: normal, Penetration: depth,
			})
		}
	})

	// Batches cover sorted candidates in order, so concatenation keeps (RowA, RowB) order
	for b := 0; b < batches; b++ {
		for _, c := range s.scratch[b].contacts {
			data.Add(c)
		}
	}
}

// --- Resolution ---

// mobility returns the inverse mass the solver may use for row
// A sleeping body hit hard enough is woken; otherwise it is held in place this step
// A body standing on terrain is immovable downward, so stacks load the ground instead of sinking into it
func (s *Solver) mobility(cols engine.Columns, row int, approach float32, down bool) float32 {
	f := cols.Flags[row]
	if !f.IsDynamic() || (down && cols.Grounded[row]) {
		return 0
	}
	if f.IsSleeping() {
		if approach <= s.cfg.SleepVelocity {
			return 0
		}
		cols.Flags[row] = f.With(engine.FlagSleeping, false)
		cols.Idle[row] = 0
		s.stats.Woken++
	}
	return cols.InverseMasses[row]
}

func (s *Solver) resolve(cols engine.Columns, contacts []ContactPair) {
	for iter := 0; iter < s.cfg.Iterations; iter++ {
		for i := range contacts {
			s.applyContactImpulse(cols, &contacts[i])
		}
	}
	// After the velocity passes a resting body is still, so gravity alone wakes nothing
	for i := range contacts {
		s.wakeDisturbed(cols, &contacts[i])
	}
	for iter := 0; iter < s.cfg.PositionIterations; iter++ {
		for i := range contacts {
			s.correctPosition(cols, &contacts[i])
		}
	}
}

// wakeDisturbed wakes a sleeper whose awake partner slides across it or pulls away
// Pressing straight into a sleeper is left to mobility
func (s *Solver) wakeDisturbed(cols engine.Columns, c *ContactPair) {
	a, b := c.RowA, c.RowB
	sleeper := a
	switch sa, sb := cols.Flags[a].IsSleeping(), cols.Flags[b].IsSleeping(); {
	case sa == sb:
		return
	case sb:
		sleeper = b
	}
	rv := cols.Velocities[b].Sub(cols.Velocities[a])
	vn := rv.Dot(c.Normal)
	slide := rv.Sub(c.Normal.Mul(vn)).Len()
	if vn <= s.cfg.SleepVelocity && slide <= s.cfg.SleepVelocity {
		return
	}
	Wake(cols, sleeper)
	s.stats.Woken++
}

func (s *Solver) applyContactImpulse(cols engine.Columns, c *ContactPair) {
	a, b := c.RowA, c.RowB
	n := c.Normal
	vn := cols.Velocities[b].Sub(cols.Velocities[a]).Dot(n)
	if vn >= 0 {
		return
	}

	// A is pushed along -n, B along +n
	invA := s.mobility(cols, a, -vn, n[vmath.AxisY] > 0)
	invB := s.mobility(cols, b, -vn, n[vmath.AxisY] < 0)
	invSum := invA + invB
	if invSum == 0 {
		return
	}

	e := s.cfg.RestitutionRule.Combine(cols.Restitutions[a], cols.Restitutions[b])
	if -vn < s.cfg.BounceThreshold {
		e = 0
	}
	jn := -(1 + e) * vn / invSum
	impulse := n.Mul(jn)
	cols.Velocities[a] = cols.Velocities[a].Sub(impulse.Mul(invA))
	cols.Velocities[b] = cols.Velocities[b].Add(impulse.Mul(invB))

	// Coulomb friction against the tangential relative velocity
	rv := cols.Velocities[b].Sub(cols.Velocities[a])
	tangent := rv.Sub(n.Mul(rv.Dot(n)))
	vt := tangent.Len()
	if vt <= 1e-6 {
		return
	}
	t := tangent.Mul(1 / vt)
	mu := s.cfg.FrictionRule.Combine(cols.Frictions[a], cols.Frictions[b])
	jt := math32.Min(vt/invSum, mu*jn)
	friction := t.Mul(-jt)
	cols.Velocities[a] = cols.Velocities[a].Sub(friction.Mul(invA))
	cols.Velocities[b] = cols.Velocities[b].Add(friction.Mul(invB))
}

// correctPosition removes a fraction of what is left of the contact's penetration
func (s *Solver) correctPosition(cols engine.Columns, c *ContactPair) {
	a, b := c.RowA, c.RowB
	depth := penetrationAlong(cols.Bounds[a], cols.Bounds[b], c.Normal) - s.cfg.PenetrationSlop
	if depth <= 0 {
		return
	}
	invA := awakeInverseMass(cols, a, c.Normal[vmath.AxisY] > 0)
	invB := awakeInverseMass(cols, b, c.Normal[vmath.AxisY] < 0)
	invSum := invA + invB
	if invSum == 0 {
		return
	}
	corr := c.Normal.Mul(depth / invSum * s.cfg.PositionCorrection)
	if invA > 0 {
		cols.Positions[a] = cols.Positions[a].Sub(corr.Mul(invA))
		cols.Bounds[a] = cols.Bounds[a].Translate(corr.Mul(-invA))
	}
	if invB > 0 {
		cols.Positions[b] = cols.Positions[b].Add(corr.Mul(invB))
		cols.Bounds[b] = cols.Bounds[b].Translate(corr.Mul(invB))
	}
}

func awakeInverseMass(cols engine.Columns, row int, down bool) float32 {
	f := cols.Flags[row]
	if !f.IsDynamic() || f.IsSleeping() || (down && cols.Grounded[row]) {
		return 0
	}
	return cols.InverseMasses[row]
}

// --- Sleep ---

func (s *Solver) updateSleep(cols engine.Columns, dt float32) {
	if s.cfg.SleepVelocity <= 0 {
		for row, f := range cols.Flags {
			if f.IsSleeping() {
				cols.Flags[row] = f.With(engine.FlagSleeping, false)
			}
		}
		return
	}
	threshold := s.cfg.SleepVelocity * s.cfg.SleepVelocity
	for row, f := range cols.Flags {
		if !f.IsActive() || !f.IsDynamic() {
			continue
		}
		if f.IsSleeping() {
			s.stats.Sleeping++
			continue
		}
		if cols.Velocities[row].LenSqr() >= threshold {
			cols.Idle[row] = 0
			continue
		}
		cols.Idle[row] += dt
		if cols.Idle[row] >= s.cfg.SleepDelay {
			cols.Flags[row] = f | engine.FlagSleeping
			cols.Velocities[row] = mgl32.Vec3{}
			s.stats.Sleeping++
		}
	}
}

// Wake clears the sleeping flag and idle timer of row
func Wake(cols engine.Columns, row int) {
	cols.Flags[row] = cols.Flags[row].With(engine.FlagSleeping, false)
	cols.Idle[row] = 0
}

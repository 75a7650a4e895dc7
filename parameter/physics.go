package parameter

import "time"

// World units are voxels (1 voxel = 1 decimetre); velocities are voxels/second

// Integration
const (
	// Gravity is the downward acceleration on Y (voxels/s²), 9.81 m/s² scaled to voxels
	Gravity float32 = -98.1

	// TerminalVelocity is the floor for falling Y velocity (voxels/s), 50 m/s scaled
	TerminalVelocity float32 = -500.0

	// FixedTimestep is the simulation step in seconds (60 Hz)
	FixedTimestep float32 = 1.0 / 60.0

	// MaxFrameTime caps a single frame's contribution to the accumulator
	// Prevents catch-up runaway after a stall
	MaxFrameTime float32 = 0.25

	// SlowStepBudget is the wall time above which a single step is reported
	SlowStepBudget = 8 * time.Millisecond
)

// Body defaults
const (
	DefaultRestitution float32 = 0.3
	DefaultFriction    float32 = 0.5

	// DefaultCollisionGroup and DefaultCollisionMask collide everything with everything
	DefaultCollisionGroup uint32 = 1
	DefaultCollisionMask  uint32 = ^uint32(0)

	// DefaultCapacity is the pre-reserved body count for a world
	DefaultCapacity = 65536
)

// Spatial hash
const (
	// DefaultCellSize is the broad-phase bucket edge in voxels
	DefaultCellSize float32 = 4.0

	DefaultExpectedEntitiesPerCell = 8

	// DefaultMaxCellsPerEntity rejects boxes that would flood the hash
	DefaultMaxCellsPerEntity = 64
)

// DefaultWorldMin and DefaultWorldMax bound valid hash insertions
var (
	DefaultWorldMin = [3]float32{-1000, -100, -1000}
	DefaultWorldMax = [3]float32{1000, 300, 1000}
)

// Solver
const (
	// SolverIterations is the number of velocity passes over the contact list.
	// Fewer passes leave a three-box stack above the sleep threshold.
	SolverIterations = 8

	// PositionIterations is the number of correction passes over the contact list
	PositionIterations = 8

	// PositionCorrection is the fraction of remaining penetration removed per pass
	PositionCorrection float32 = 0.2

	// PenetrationSlop is the penetration left uncorrected to avoid jitter
	PenetrationSlop float32 = 0.01

	// MaxContacts bounds the per-tick contact buffer
	MaxContacts = 16384

	// SleepVelocity is the speed below which a body accumulates idle time
	SleepVelocity float32 = 0.1

	// SleepDelay is the idle time after which a body is put to sleep (seconds)
	SleepDelay float32 = 0.5

	// BounceThreshold is the approach speed below which contacts are inelastic
	// Above one tick of gravity at 60 Hz so resting bodies settle instead of hopping
	BounceThreshold float32 = 2.0

	// SolverBatchSize is the number of rows or pairs per parallel work item
	SolverBatchSize = 64
)

// Terrain
const (
	// TerrainSkin is the gap left between a body and a blocking voxel face
	TerrainSkin float32 = 0.001
)

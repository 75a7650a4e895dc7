package physics

import (
	"sync/atomic"

	"github.com/chewxy/math32"

	"github.com/lixenwraith/voxphys/engine"
	"github.com/lixenwraith/voxphys/parameter"
	"github.com/lixenwraith/voxphys/vmath"
)

// Terrain answers block solidity for the unit voxel whose minimum corner is (x, y, z)
// Implementations must be safe for concurrent reads during a step
type Terrain interface {
	Solid(x, y, z int) bool
}

// TerrainFunc adapts a plain function to Terrain
type TerrainFunc func(x, y, z int) bool

func (f TerrainFunc) Solid(x, y, z int) bool { return f(x, y, z) }

// VoxelSet is a sparse set of solid voxels
// Not safe for writes concurrent with a step
type VoxelSet struct {
	cells map[[3]int]struct{}
}

func NewVoxelSet() *VoxelSet {
	return &VoxelSet{cells: make(map[[3]int]struct{})}
}

func (v *VoxelSet) Solid(x, y, z int) bool {
	_, ok := v.cells[[3]int{x, y, z}]
	return ok
}

func (v *VoxelSet) Set(x, y, z int, solid bool) {
	if solid {
		v.cells[[3]int{x, y, z}] = struct{}{}
	} else {
		delete(v.cells, [3]int{x, y, z})
	}
}

// FillBox marks every voxel from min to max inclusive as solid
func (v *VoxelSet) FillBox(min, max [3]int) {
	for z := min[2]; z <= max[2]; z++ {
		for y := min[1]; y <= max[1]; y++ {
			for x := min[0]; x <= max[0]; x++ {
				v.cells[[3]int{x, y, z}] = struct{}{}
			}
		}
	}
}

func (v *VoxelSet) Len() int { return len(v.cells) }

// ResolveTerrain replays this step's motion of every awake dynamic body one axis at a
// time (X, Y, Z) against solid voxels, stopping at the first blocking face with a small
// skin and zeroing that velocity component so bodies slide along walls
// Bodies already overlapping a voxel are not pushed out on that axis
// Returns the number of bodies standing on terrain
func (i *Integrator) ResolveTerrain(terrain Terrain, store *engine.Store, dt float32) int {
	if terrain == nil {
		return 0
	}
	cols := store.Columns()
	var grounded atomic.Int64
	forEachBatch(len(cols.Positions), i.cfg.BatchSize, i.workers, func(_, lo, hi int) {
		var n int64
		for row := lo; row < hi; row++ {
			if !cols.Flags[row].Simulated() {
				continue
			}
			if sweepTerrain(terrain, cols, row, dt) {
				n++
			}
		}
		grounded.Add(n)
	})
	return int(grounded.Load())
}

// sweepTerrain re-runs one row's move against terrain, reporting whether it landed
func sweepTerrain(terrain Terrain, cols engine.Columns, row int, dt float32) bool {
	half := cols.HalfExtents[row]
	vel := cols.Velocities[row]
	target := cols.Positions[row]
	pos := target.Sub(vel.Mul(dt))
	landed := false

	for axis := vmath.AxisX; axis <= vmath.AxisZ; axis++ {
		d := target[axis] - pos[axis]
		if d == 0 {
			continue
		}
		box := vmath.FromCenterHalfExtents(pos, half)
		limit, blocked := blockingFace(terrain, box, axis, d)
		if !blocked {
			pos[axis] = target[axis]
			continue
		}
		var next float32
		if d > 0 {
			next = limit - parameter.TerrainSkin - half[axis]
			next = math32.Max(pos[axis], math32.Min(next, target[axis]))
		} else {
			next = limit + parameter.TerrainSkin + half[axis]
			next = math32.Min(pos[axis], math32.Max(next, target[axis]))
			if axis == vmath.AxisY {
				landed = true
			}
		}
		pos[axis] = next
		vel[axis] = 0
	}

	// A body resting on a floor moves zero distance on Y, so test the layer just below it
	if !landed && vel[vmath.AxisY] <= 0 {
		box := vmath.FromCenterHalfExtents(pos, half)
		_, landed = blockingFace(terrain, box, vmath.AxisY, -2*parameter.TerrainSkin)
	}

	cols.Positions[row] = pos
	cols.Velocities[row] = vel
	cols.Bounds[row] = vmath.FromCenterHalfExtents(pos, half)
	cols.Grounded[row] = landed
	return landed
}

// blockingFace finds the nearest solid voxel face that box meets when moved by d on axis
// Returns the face coordinate on that axis
func blockingFace(terrain Terrain, box vmath.AABB, axis int, d float32) (float32, bool) {
	var lo, hi [3]int
	for a := 0; a < 3; a++ {
		lo[a], hi[a] = voxelSpan(box.Min[a], box.Max[a])
	}

	// Only voxels ahead of the leading face count, so existing overlaps never block
	if d > 0 {
		lo[axis] = int(math32.Ceil(box.Max[axis] - 1e-4))
		_, hi[axis] = voxelSpan(box.Min[axis], box.Max[axis]+d)
		for v := lo[axis]; v <= hi[axis]; v++ {
			if layerSolid(terrain, lo, hi, axis, v) {
				return float32(v), true
			}
		}
		return 0, false
	}

	hi[axis] = int(math32.Floor(box.Min[axis]+1e-4)) - 1
	lo[axis], _ = voxelSpan(box.Min[axis]+d, box.Max[axis])
	for v := hi[axis]; v >= lo[axis]; v-- {
		if layerSolid(terrain, lo, hi, axis, v) {
			return float32(v + 1), true
		}
	}
	return 0, false
}

// voxelSpan is the inclusive voxel range overlapped by the open interval (min, max)
func voxelSpan(min, max float32) (int, int) {
	return int(math32.Floor(min)), int(math32.Ceil(max)) - 1
}

// layerSolid scans the slice of the span at coordinate v on axis
func layerSolid(terrain Terrain, lo, hi [3]int, axis, v int) bool {
	var p [3]int
	p[axis] = v
	u, w := (axis+1)%3, (axis+2)%3
	for p[u] = lo[u]; p[u] <= hi[u]; p[u]++ {
		for p[w] = lo[w]; p[w] <= hi[w]; p[w]++ {
			if terrain.Solid(p[0], p[1], p[2]) {
				return true
			}
		}
	}
	return false
}

// Grounded reports whether a box rests on terrain
func Grounded(terrain Terrain, box vmath.AABB) bool {
	if terrain == nil {
		return false
	}
	_, ok := blockingFace(terrain, box, vmath.AxisY, -2*parameter.TerrainSkin)
	return ok
}

var (
	_ Terrain = (*VoxelSet)(nil)
	_ Terrain = TerrainFunc(nil)
)

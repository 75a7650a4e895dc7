package engine

import (
	"math"
	"slices"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/lixenwraith/voxphys/core"
	"github.com/lixenwraith/voxphys/parameter"
	"github.com/lixenwraith/voxphys/vmath"
)

// HashConfig sizes the broad-phase grid
type HashConfig struct {
	CellSize                float32
	WorldMin                mgl32.Vec3
	WorldMax                mgl32.Vec3
	ExpectedEntitiesPerCell int // bucket pre-allocation hint
	MaxCellsPerEntity       int // inserts spanning more cells are rejected
}

func DefaultHashConfig() HashConfig {
	return HashConfig{
		CellSize:                parameter.DefaultCellSize,
		WorldMin:                parameter.DefaultWorldMin,
		WorldMax:                parameter.DefaultWorldMax,
		ExpectedEntitiesPerCell: parameter.DefaultExpectedEntitiesPerCell,
		MaxCellsPerEntity:       parameter.DefaultMaxCellsPerEntity,
	}
}

func (c HashConfig) Validate() error {
	if !vmath.IsFinite(c.CellSize) || c.CellSize <= 0 {
		return errors.Wrapf(ErrInvalidHash, "cell size %v", c.CellSize)
	}
	if !vmath.V3Finite(c.WorldMin) || !vmath.V3Finite(c.WorldMax) {
		return errors.Wrap(ErrInvalidHash, "non-finite world bounds")
	}
	for axis := 0; axis < 3; axis++ {
		if c.WorldMin[axis] >= c.WorldMax[axis] {
			return errors.Wrapf(ErrInvalidHash, "world min %v not below max %v", c.WorldMin, c.WorldMax)
		}
	}
	if c.ExpectedEntitiesPerCell < 0 || c.MaxCellsPerEntity <= 0 {
		return errors.Wrap(ErrInvalidHash, "cell capacity hints")
	}
	// Cell coordinates are int32
	inv := 1 / c.CellSize
	for axis := 0; axis < 3; axis++ {
		lo := math32.Floor(c.WorldMin[axis] * inv)
		hi := math32.Floor(c.WorldMax[axis] * inv)
		if lo < math.MinInt32 || hi >= math.MaxInt32 {
			return errors.Wrapf(ErrInvalidHash, "cell size %v too small for world bounds on axis %d", c.CellSize, axis)
		}
	}
	return nil
}

// HashStats summarizes bucket occupancy
type HashStats struct {
	Entities    int // indexed entities
	Cells       int // non-empty cells
	Memberships int // entity-cell links, an entity spanning k cells counts k times
	MaxPerCell  int
	AvgPerCell  float32
}

type cellKey struct {
	x, y, z int32
}

// cellRange is an inclusive block of cells
type cellRange struct {
	min, max cellKey
}

func (r cellRange) contains(k cellKey) bool {
	return k.x >= r.min.x && k.x <= r.max.x &&
		k.y >= r.min.y && k.y <= r.max.y &&
		k.z >= r.min.z && k.z <= r.max.z
}

func (r cellRange) count() int64 {
	return int64(r.max.x-r.min.x+1) * int64(r.max.y-r.min.y+1) * int64(r.max.z-r.min.z+1)
}

// each visits every cell in the range in x-fastest order
func (r cellRange) each(fn func(k cellKey)) {
	for z := r.min.z; z <= r.max.z; z++ {
		for y := r.min.y; y <= r.max.y; y++ {
			for x := r.min.x; x <= r.max.x; x++ {
				fn(cellKey{x, y, z})
			}
		}
	}
}

type bucket struct {
	ids []core.EntityID
}

func (b *bucket) add(id core.EntityID) {
	b.ids = append(b.ids, id)
}

// remove is a swap-remove within the bucket, order inside a bucket is not meaningful
func (b *bucket) remove(id core.EntityID) {
	for i, e := range b.ids {
		if e == id {
			last := len(b.ids) - 1
			b.ids[i] = b.ids[last]
			b.ids = b.ids[:last]
			return
		}
	}
}

// hashEntry is what the hash remembers about one handle slot
type hashEntry struct {
	id      core.EntityID
	box     vmath.AABB
	cells   cellRange
	present bool
}

// SpatialHash is a uniform-grid broad phase keyed by integer cell coordinates
// An entity is listed in every cell its box overlaps, and in no other
// The hash keeps its own copy of each box so region queries are exact
//
// Queries are read-only and may run concurrently; Insert/Update/Remove/Clear are
// single-writer and must not overlap queries
type SpatialHash struct {
	cfg     HashConfig
	invCell float32
	bounds  vmath.AABB

	cells   map[cellKey]*bucket
	entries []hashEntry // indexed by EntityID.Index
	pool    []*bucket
	live    int
}

func NewSpatialHash(cfg HashConfig) (*SpatialHash, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SpatialHash{
		cfg:     cfg,
		invCell: 1 / cfg.CellSize,
		bounds:  vmath.AABB{Min: cfg.WorldMin, Max: cfg.WorldMax},
		cells:   make(map[cellKey]*bucket),
	}, nil
}

func (h *SpatialHash) Config() HashConfig { return h.cfg }

// Len is the number of entities in the hash
func (h *SpatialHash) Len() int { return h.live }

// CellCount is the number of non-empty cells
func (h *SpatialHash) CellCount() int { return len(h.cells) }

// Stats walks every non-empty bucket
func (h *SpatialHash) Stats() HashStats {
	st := HashStats{Entities: h.live, Cells: len(h.cells)}
	for _, b := range h.cells {
		n := len(b.ids)
		st.Memberships += n
		st.MaxPerCell = max(st.MaxPerCell, n)
	}
	if st.Cells > 0 {
		st.AvgPerCell = float32(st.Memberships) / float32(st.Cells)
	}
	return st
}

// Contains reports whether this exact handle is indexed
func (h *SpatialHash) Contains(id core.EntityID) bool {
	e := h.entry(id)
	return e != nil
}

// Bounds returns the box recorded for id
func (h *SpatialHash) Bounds(id core.EntityID) (vmath.AABB, bool) {
	e := h.entry(id)
	if e == nil {
		return vmath.AABB{}, false
	}
	return e.box, true
}

// Insert indexes id under every cell box overlaps
// An already-indexed id is moved as by Update
func (h *SpatialHash) Insert(id core.EntityID, box vmath.AABB) error {
	if !id.IsValid() {
		return errors.Wrap(ErrStaleEntity, "hash insert")
	}
	rng, err := h.admit(box)
	if err != nil {
		return err
	}

	h.grow(id.Index)
	e := &h.entries[id.Index]
	if e.present {
		if e.id == id {
			h.move(e, box, rng)
			return nil
		}
		// Slot reused by a newer generation without the old one being removed
		h.unlink(e)
	}

	*e = hashEntry{id: id, box: box, cells: rng, present: true}
	rng.each(func(k cellKey) { h.bucketAt(k).add(id) })
	h.live++
	return nil
}

// Update moves id to box, leaving cells no longer overlapped and joining new ones
// A rejected box removes id from the hash and returns the reason
func (h *SpatialHash) Update(id core.EntityID, box vmath.AABB) error {
	e := h.entry(id)
	if e == nil {
		return h.Insert(id, box)
	}
	rng, err := h.admit(box)
	if err != nil {
		h.unlink(e)
		return err
	}
	h.move(e, box, rng)
	return nil
}

// Remove drops id from every bucket; unknown ids are ignored
func (h *SpatialHash) Remove(id core.EntityID) {
	if e := h.entry(id); e != nil {
		h.unlink(e)
	}
}

// Clear empties the hash, keeping bucket storage for reuse
func (h *SpatialHash) Clear() {
	for k, b := range h.cells {
		b.ids = b.ids[:0]
		h.pool = append(h.pool, b)
		delete(h.cells, k)
	}
	for i := range h.entries {
		h.entries[i] = hashEntry{}
	}
	h.live = 0
}

// QueryRegion appends every entity whose recorded box overlaps box
// Output is de-duplicated and sorted by handle
func (h *SpatialHash) QueryRegion(box vmath.AABB, dst []core.EntityID) []core.EntityID {
	if !box.IsFinite() || !box.Overlaps(h.bounds) {
		return dst
	}
	clipped, _ := box.Intersection(h.bounds)
	rng := h.rangeOf(clipped)
	start := len(dst)

	collect := func(b *bucket) {
		for _, id := range b.ids {
			if h.entries[id.Index].box.Overlaps(box) {
				dst = append(dst, id)
			}
		}
	}

	// Walk whichever is smaller: the query's cells or the occupied cells
	if rng.count() <= int64(len(h.cells)) {
		rng.each(func(k cellKey) {
			if b, ok := h.cells[k]; ok {
				collect(b)
			}
		})
	} else {
		for k, b := range h.cells {
			if rng.contains(k) {
				collect(b)
			}
		}
	}
	return sortUnique(dst, start)
}

// PotentialCollisions appends everything sharing a cell with id, excluding id
// Conservative: a true overlap is never missed, distant cell-mates may be included
func (h *SpatialHash) PotentialCollisions(id core.EntityID, dst []core.EntityID) []core.EntityID {
	e := h.entry(id)
	if e == nil {
		return dst
	}
	start := len(dst)
	e.cells.each(func(k cellKey) {
		b, ok := h.cells[k]
		if !ok {
			return
		}
		for _, other := range b.ids {
			if other != id {
				dst = append(dst, other)
			}
		}
	})
	return sortUnique(dst, start)
}

// --- Internals ---

func (h *SpatialHash) entry(id core.EntityID) *hashEntry {
	if !id.IsValid() || int(id.Index) >= len(h.entries) {
		return nil
	}
	e := &h.entries[id.Index]
	if !e.present || e.id != id {
		return nil
	}
	return e
}

func (h *SpatialHash) grow(index uint32) {
	if int(index) < len(h.entries) {
		return
	}
	h.entries = append(h.entries, make([]hashEntry, int(index)+1-len(h.entries))...)
}

// admit validates box and returns its cell range
func (h *SpatialHash) admit(box vmath.AABB) (cellRange, error) {
	if !box.IsFinite() {
		return cellRange{}, errors.Wrap(ErrNonFinite, "hash box")
	}
	if !h.bounds.Contains(box) {
		return cellRange{}, errors.Wrapf(ErrOutOfBounds, "box %v..%v", box.Min, box.Max)
	}
	rng := h.rangeOf(box)
	if n := rng.count(); n > int64(h.cfg.MaxCellsPerEntity) {
		return cellRange{}, errors.Wrapf(ErrAABBTooLarge, "%d cells", n)
	}
	return rng, nil
}

func (h *SpatialHash) rangeOf(box vmath.AABB) cellRange {
	return cellRange{min: h.cellOf(box.Min), max: h.cellOf(box.Max)}
}

func (h *SpatialHash) cellOf(p mgl32.Vec3) cellKey {
	return cellKey{
		x: int32(math32.Floor(p[0] * h.invCell)),
		y: int32(math32.Floor(p[1] * h.invCell)),
		z: int32(math32.Floor(p[2] * h.invCell)),
	}
}

func (h *SpatialHash) move(e *hashEntry, box vmath.AABB, rng cellRange) {
	old := e.cells
	e.box = box
	if old == rng {
		return
	}
	old.each(func(k cellKey) {
		if !rng.contains(k) {
			h.leave(k, e.id)
		}
	})
	rng.each(func(k cellKey) {
		if !old.contains(k) {
			h.bucketAt(k).add(e.id)
		}
	})
	e.cells = rng
}

func (h *SpatialHash) unlink(e *hashEntry) {
	e.cells.each(func(k cellKey) { h.leave(k, e.id) })
	*e = hashEntry{}
	h.live--
}

func (h *SpatialHash) bucketAt(k cellKey) *bucket {
	if b, ok := h.cells[k]; ok {
		return b
	}
	var b *bucket
	if n := len(h.pool); n > 0 {
		b = h.pool[n-1]
		h.pool = h.pool[:n-1]
	} else {
		b = &bucket{ids: make([]core.EntityID, 0, h.cfg.ExpectedEntitiesPerCell)}
	}
	h.cells[k] = b
	return b
}

// leave removes id from the bucket at k, recycling the bucket when it empties
func (h *SpatialHash) leave(k cellKey, id core.EntityID) {
	b, ok := h.cells[k]
	if !ok {
		return
	}
	b.remove(id)
	if len(b.ids) == 0 {
		delete(h.cells, k)
		h.pool = append(h.pool, b)
	}
}

// sortUnique sorts and compacts dst[start:]
func sortUnique(dst []core.EntityID, start int) []core.EntityID {
	tail := dst[start:]
	if len(tail) < 2 {
		return dst
	}
	slices.SortFunc(tail, core.EntityID.Compare)
	tail = slices.Compact(tail)
	return dst[:start+len(tail)]
}

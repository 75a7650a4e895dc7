package core

import (
	"fmt"
	"math"
)

// InvalidIndex marks a handle that never referred to a live slot
const InvalidIndex = math.MaxUint32

// EntityID is a generation-checked handle to a physics body
// Index addresses a slot in the store's handle table, not a dense row, so it survives
// swap-removes of other bodies; Generation is bumped each time the slot is freed
type EntityID struct {
	Index      uint32
	Generation uint32
}

// InvalidEntity is the sentinel returned alongside errors
var InvalidEntity = EntityID{Index: InvalidIndex}

// IsValid reports whether the handle could address a slot at all
// Liveness is a store question, see engine.Store.Alive
func (e EntityID) IsValid() bool {
	return e.Index != InvalidIndex
}

// Less orders handles by slot then generation, used for deterministic query output
func (e EntityID) Less(o EntityID) bool {
	if e.Index != o.Index {
		return e.Index < o.Index
	}
	return e.Generation < o.Generation
}

// Compare is the three-way form of Less for slices.SortFunc
func (e EntityID) Compare(o EntityID) int {
	switch {
	case e.Less(o):
		return -1
	case o.Less(e):
		return 1
	default:
		return 0
	}
}

func (e EntityID) String() string {
	if !e.IsValid() {
		return "entity(invalid)"
	}
	return fmt.Sprintf("entity(%d:%d)", e.Index, e.Generation)
}

package engine

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrCapacityExceeded = errors.New("entity capacity exceeded")
	ErrStaleEntity      = errors.New("stale or unknown entity handle")
	ErrNonFinite        = errors.New("non-finite value")
	ErrInvalidMass      = errors.New("dynamic body mass must be positive and finite")
	ErrInvalidExtents   = errors.New("half extents must be non-negative")
	ErrInvalidMaterial  = errors.New("restitution must be in [0,1] and friction non-negative")
	ErrOutOfBounds      = errors.New("bounding box outside spatial hash world bounds")
	ErrAABBTooLarge     = errors.New("bounding box spans too many hash cells")
	ErrInvalidHash      = errors.New("invalid spatial hash config")
)

// CapacityError reports the configured capacity that an add would have exceeded
type CapacityError struct {
	Capacity int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%v: capacity %d", ErrCapacityExceeded, e.Capacity)
}

func (e *CapacityError) Unwrap() error { return ErrCapacityExceeded }

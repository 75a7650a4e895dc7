package physics

import "github.com/pkg/errors"

var (
	ErrInvalidFrameTime  = errors.New("frame time must be finite and non-negative")
	ErrSlowStep          = errors.New("simulation step exceeded its time budget")
	ErrLengthMismatch    = errors.New("entity and value slices differ in length")
	ErrInvalidDamping    = errors.New("linear damping must be in [0,1]")
	ErrInvalidIntegrator = errors.New("invalid integrator config")
)

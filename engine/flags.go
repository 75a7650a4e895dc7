package engine

// Flags is the per-body status bitset
type Flags uint32

const (
	FlagActive Flags = 1 << iota
	FlagStatic
	FlagKinematic
	FlagGravity
	FlagSleeping
)

// DefaultFlags is the set given to a new dynamic body
const DefaultFlags = FlagActive | FlagGravity

func (f Flags) Has(flag Flags) bool { return f&flag != 0 }

// With returns f with flag set or cleared
func (f Flags) With(flag Flags, on bool) Flags {
	if on {
		return f | flag
	}
	return f &^ flag
}

func (f Flags) IsActive() bool    { return f.Has(FlagActive) }
func (f Flags) IsStatic() bool    { return f.Has(FlagStatic) }
func (f Flags) IsKinematic() bool { return f.Has(FlagKinematic) }
func (f Flags) HasGravity() bool  { return f.Has(FlagGravity) }
func (f Flags) IsSleeping() bool  { return f.Has(FlagSleeping) }

// IsDynamic is true for bodies moved by forces and contacts
func (f Flags) IsDynamic() bool {
	return !f.IsStatic() && !f.IsKinematic()
}

// Simulated is true for active, awake, dynamic bodies: the set gravity and integration touch
func (f Flags) Simulated() bool {
	return f.IsActive() && f.IsDynamic() && !f.IsSleeping()
}

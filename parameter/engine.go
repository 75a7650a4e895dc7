package parameter

import "time"

// Sandbox loop timing
const (
	// FrameUpdateInterval is the rendering frame interval (~60 FPS)
	FrameUpdateInterval = 16 * time.Millisecond

	// StatsLogInterval is how often CLIs log tick statistics
	StatsLogInterval = 2 * time.Second
)

// Logging
const (
	LogDir      = "logs"
	LogFileName = "voxphys.log"
	LogDirMode  = 0755
	LogFileMode = 0644

	// MaxLogSize is the size past which an existing log is rotated on startup
	MaxLogSize = 10 << 20
)

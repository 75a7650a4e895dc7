// Package config loads the YAML run configuration and converts it into the
// engine and physics configs
package config

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/lixenwraith/voxphys/engine"
	"github.com/lixenwraith/voxphys/parameter"
	"github.com/lixenwraith/voxphys/physics"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Hash       HashSection       `yaml:"hash"`
	Solver     SolverSection     `yaml:"solver"`
	Integrator IntegratorSection `yaml:"integrator"`
	World      WorldSection      `yaml:"world"`
	Log        LogSection        `yaml:"log"`
}

type HashSection struct {
	CellSize                float32    `yaml:"cell_size"`
	WorldMin                [3]float32 `yaml:"world_min,flow"`
	WorldMax                [3]float32 `yaml:"world_max,flow"`
	ExpectedEntitiesPerCell int        `yaml:"expected_entities_per_cell"`
	MaxCellsPerEntity       int        `yaml:"max_cells_per_entity"`
}

type SolverSection struct {
	Workers            int     `yaml:"workers"`
	BatchSize          int     `yaml:"batch_size"`
	Iterations         int     `yaml:"iterations"`
	PositionIterations int     `yaml:"position_iterations"`
	PositionCorrection float32 `yaml:"position_correction"`
	PenetrationSlop    float32 `yaml:"penetration_slop"`
	BounceThreshold    float32 `yaml:"bounce_threshold"`
	RestitutionRule    string  `yaml:"restitution_rule"`
	FrictionRule       string  `yaml:"friction_rule"`
	MaxContacts        int     `yaml:"max_contacts"`
	SleepVelocity      float32 `yaml:"sleep_velocity"`
	SleepDelay         float32 `yaml:"sleep_delay"`
}

type IntegratorSection struct {
	FixedStep      float32       `yaml:"fixed_step"`
	MaxFrameTime   float32       `yaml:"max_frame_time"`
	SlowStepBudget time.Duration `yaml:"slow_step_budget"`
}

type WorldSection struct {
	Capacity         int     `yaml:"capacity"`
	Gravity          float32 `yaml:"gravity"`
	TerminalVelocity float32 `yaml:"terminal_velocity"`
	LinearDamping    float32 `yaml:"linear_damping"`
}

type LogSection struct {
	Debug bool   `yaml:"debug"`
	File  string `yaml:"file"`
}

// Default mirrors the parameter package
func Default() Config {
	return Config{
		Hash: HashSection{
			CellSize:                parameter.DefaultCellSize,
			WorldMin:                parameter.DefaultWorldMin,
			WorldMax:                parameter.DefaultWorldMax,
			ExpectedEntitiesPerCell: parameter.DefaultExpectedEntitiesPerCell,
			MaxCellsPerEntity:       parameter.DefaultMaxCellsPerEntity,
		},
		Solver: SolverSection{
			BatchSize:          parameter.SolverBatchSize,
			Iterations:         parameter.SolverIterations,
			PositionIterations: parameter.PositionIterations,
			PositionCorrection: parameter.PositionCorrection,
			PenetrationSlop:    parameter.PenetrationSlop,
			BounceThreshold:    parameter.BounceThreshold,
			RestitutionRule:    physics.CombineMin.String(),
			FrictionRule:       physics.CombineAverage.String(),
			MaxContacts:        parameter.MaxContacts,
			SleepVelocity:      parameter.SleepVelocity,
			SleepDelay:         parameter.SleepDelay,
		},
		Integrator: IntegratorSection{
			FixedStep:      parameter.FixedTimestep,
			MaxFrameTime:   parameter.MaxFrameTime,
			SlowStepBudget: parameter.SlowStepBudget,
		},
		World: WorldSection{
			Capacity:         parameter.DefaultCapacity,
			Gravity:          parameter.Gravity,
			TerminalVelocity: parameter.TerminalVelocity,
		},
		Log: LogSection{
			File: parameter.LogFileName,
		},
	}
}

// Load reads path over the defaults
// An empty path returns the defaults
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults; unknown keys are errors
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Wrap(ErrInvalidConfig, err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Marshal renders cfg as YAML
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// Validate checks every section by building the configs it feeds
func (c Config) Validate() error {
	wc, err := c.WorldConfig()
	if err != nil {
		return err
	}
	if err := wc.Validate(); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	return nil
}

func (c Config) HashConfig() engine.HashConfig {
	return engine.HashConfig{
		CellSize:                c.Hash.CellSize,
		WorldMin:                c.Hash.WorldMin,
		WorldMax:                c.Hash.WorldMax,
		ExpectedEntitiesPerCell: c.Hash.ExpectedEntitiesPerCell,
		MaxCellsPerEntity:       c.Hash.MaxCellsPerEntity,
	}
}

func (c Config) SolverConfig() (physics.SolverConfig, error) {
	restitution, err := physics.ParseCombineRule(c.Solver.RestitutionRule)
	if err != nil {
		return physics.SolverConfig{}, errors.Wrap(ErrInvalidConfig, err.Error())
	}
	friction, err := physics.ParseCombineRule(c.Solver.FrictionRule)
	if err != nil {
		return physics.SolverConfig{}, errors.Wrap(ErrInvalidConfig, err.Error())
	}
	return physics.SolverConfig{
		Workers:            c.Solver.Workers,
		BatchSize:          c.Solver.BatchSize,
		Iterations:         c.Solver.Iterations,
		PositionIterations: c.Solver.PositionIterations,
		PositionCorrection: c.Solver.PositionCorrection,
		PenetrationSlop:    c.Solver.PenetrationSlop,
		BounceThreshold:    c.Solver.BounceThreshold,
		RestitutionRule:    restitution,
		FrictionRule:       friction,
		MaxContacts:        c.Solver.MaxContacts,
		SleepVelocity:      c.Solver.SleepVelocity,
		SleepDelay:         c.Solver.SleepDelay,
	}, nil
}

// IntegratorConfig shares the solver's worker and batch sizing
func (c Config) IntegratorConfig() physics.IntegratorConfig {
	return physics.IntegratorConfig{
		FixedStep:      c.Integrator.FixedStep,
		MaxFrameTime:   c.Integrator.MaxFrameTime,
		SlowStepBudget: c.Integrator.SlowStepBudget,
		Workers:        c.Solver.Workers,
		BatchSize:      c.Solver.BatchSize,
	}
}

// WorldConfig assembles the physics world config; terrain, logger and metrics are left
// for the caller
func (c Config) WorldConfig() (physics.WorldConfig, error) {
	solver, err := c.SolverConfig()
	if err != nil {
		return physics.WorldConfig{}, err
	}
	return physics.WorldConfig{
		Capacity:         c.World.Capacity,
		Gravity:          c.World.Gravity,
		TerminalVelocity: c.World.TerminalVelocity,
		LinearDamping:    c.World.LinearDamping,
		Hash:             c.HashConfig(),
		Solver:           solver,
		Integrator:       c.IntegratorConfig(),
	}, nil
}

package physics

import (
	"sync/atomic"

	"github.com/lixenwraith/voxphys/engine"
	"github.com/lixenwraith/voxphys/status"
)

// Metric keys published by World
const (
	MetricTicks           = "physics.ticks"
	MetricEntities        = "physics.entities"
	MetricPairs           = "physics.pairs"
	MetricContacts        = "physics.contacts"
	MetricContactsDropped = "physics.contacts_dropped"
	MetricSleeping        = "physics.sleeping"
	MetricGrounded        = "physics.grounded"
	MetricDeactivated     = "physics.deactivated"
	MetricSlowSteps       = "physics.slow_steps"
	MetricBroadMicros     = "physics.broad_us"
	MetricNarrowMicros    = "physics.narrow_us"
	MetricResolveMicros   = "physics.resolve_us"
	MetricStepMicrosMax   = "physics.step_us_max"
	MetricAlpha           = "physics.alpha"
	MetricHashCells       = "physics.hash_cells"
	MetricHashMaxPerCell  = "physics.hash_max_per_cell"
	MetricHashAvgPerCell  = "physics.hash_avg_per_cell"
)

// worldMetrics caches registry pointers so ticks never touch the registry lock
type worldMetrics struct {
	ticks, entities, pairs, contacts, dropped *atomic.Int64
	sleeping, grounded, deactivated, slow     *atomic.Int64
	hashCells, hashMax                        *atomic.Int64

	broad, narrow, resolve, stepMax, alpha, hashAvg *status.AtomicFloat
}

func newWorldMetrics(reg *status.Registry) worldMetrics {
	if reg == nil {
		reg = status.NewRegistry()
	}
	return worldMetrics{
		ticks:       reg.Int(MetricTicks),
		entities:    reg.Int(MetricEntities),
		pairs:       reg.Int(MetricPairs),
		contacts:    reg.Int(MetricContacts),
		dropped:     reg.Int(MetricContactsDropped),
		sleeping:    reg.Int(MetricSleeping),
		grounded:    reg.Int(MetricGrounded),
		deactivated: reg.Int(MetricDeactivated),
		slow:        reg.Int(MetricSlowSteps),
		broad:       reg.Float(MetricBroadMicros),
		narrow:      reg.Float(MetricNarrowMicros),
		resolve:     reg.Float(MetricResolveMicros),
		stepMax:     reg.Float(MetricStepMicrosMax),
		alpha:       reg.Float(MetricAlpha),
		hashCells:   reg.Int(MetricHashCells),
		hashMax:     reg.Int(MetricHashMaxPerCell),
		hashAvg:     reg.Float(MetricHashAvgPerCell),
	}
}

func (m *worldMetrics) publishStep(stats StepStats, entities, grounded int) {
	m.ticks.Add(1)
	m.entities.Store(int64(entities))
	m.pairs.Store(int64(stats.Candidates))
	m.contacts.Store(int64(stats.Contacts))
	m.dropped.Add(int64(stats.Dropped))
	m.sleeping.Store(int64(stats.Sleeping))
	m.grounded.Store(int64(grounded))
	m.broad.Set(float64(stats.Broad.Microseconds()))
	m.narrow.Set(float64(stats.Narrow.Microseconds()))
	m.resolve.Set(float64(stats.Resolve.Microseconds()))
}

func (m *worldMetrics) publishHash(st engine.HashStats) {
	m.hashCells.Store(int64(st.Cells))
	m.hashMax.Store(int64(st.MaxPerCell))
	m.hashAvg.Set(float64(st.AvgPerCell))
}

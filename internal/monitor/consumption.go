package monitor

import (
	"math/rand"
	"sync"
	"time"
)

// ConsumptionSource supplies the units consumed on a given day. The default
// implementation is a simulator; a real consumption feed can be swapped in
// without touching the evaluator.
type ConsumptionSource interface {
	UnitsForDay(day time.Time) int
}

// weekend throughput runs at roughly 70% of the weekday rate
const weekendFactor = 0.7

// Simulator emulates daily hospital consumption: a base average, reduced on
// weekends, with random variation and occasional demand spikes.
type Simulator struct {
	average          int
	variation        float64
	spikeProbability float64
	spikeMultiplier  float64

	mu  sync.Mutex
	rng *rand.Rand
}

type SimulatorConfig struct {
	Average          int
	Variation        float64 // fraction, e.g. 0.15 for ±15%
	SpikeProbability float64
	SpikeMultiplier  float64
	Seed             int64 // 0 seeds from the clock
}

func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	return &Simulator{
		average:          cfg.Average,
		variation:        cfg.Variation,
		spikeProbability: cfg.SpikeProbability,
		spikeMultiplier:  cfg.SpikeMultiplier,
		rng:              rand.New(rand.NewSource(cfg.Seed)),
	}
}

func (s *Simulator) UnitsForDay(day time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := float64(s.average)
	if IsWeekend(day) {
		base *= weekendFactor
	}

	variation := (s.rng.Float64()*2 - 1) * s.variation
	consumption := base * (1 + variation)

	if s.rng.Float64() < s.spikeProbability {
		consumption *= s.spikeMultiplier
	}

	if consumption < 1 {
		return 1
	}
	return int(consumption)
}

// FixedSource always reports the same daily consumption; stands in for a
// real feed in tests.
type FixedSource int

func (f FixedSource) UnitsForDay(time.Time) int { return int(f) }

func IsWeekend(day time.Time) bool {
	wd := day.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

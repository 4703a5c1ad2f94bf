package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var (
	// 2025-01-06 is a Monday, 2025-01-04 a Saturday
	monday   = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	saturday = time.Date(2025, 1, 4, 0, 0, 0, 0, time.UTC)
)

func TestIsWeekend(t *testing.T) {
	assert.False(t, IsWeekend(monday))
	assert.True(t, IsWeekend(saturday))
	assert.True(t, IsWeekend(saturday.AddDate(0, 0, 1))) // Sunday
	assert.False(t, IsWeekend(monday.AddDate(0, 0, 4)))  // Friday
}

func TestSimulatorWeekdayBounds(t *testing.T) {
	s := NewSimulator(SimulatorConfig{
		Average:          68,
		Variation:        0.15,
		SpikeProbability: 0, // deterministic bounds
		SpikeMultiplier:  1.5,
		Seed:             1,
	})

	for i := 0; i < 500; i++ {
		units := s.UnitsForDay(monday)
		assert.GreaterOrEqual(t, units, 57, "below -15%% of weekday average")
		assert.LessOrEqual(t, units, 79, "above +15%% of weekday average")
	}
}

func TestSimulatorWeekendReduction(t *testing.T) {
	s := NewSimulator(SimulatorConfig{
		Average:          68,
		Variation:        0.15,
		SpikeProbability: 0,
		Seed:             1,
	})

	// weekend base is 47.6; with ±15% the range is roughly [40, 55]
	for i := 0; i < 500; i++ {
		units := s.UnitsForDay(saturday)
		assert.GreaterOrEqual(t, units, 40)
		assert.LessOrEqual(t, units, 55)
	}
}

func TestSimulatorSpikeAlwaysFires(t *testing.T) {
	s := NewSimulator(SimulatorConfig{
		Average:          68,
		Variation:        0,
		SpikeProbability: 1,
		SpikeMultiplier:  1.5,
		Seed:             1,
	})

	assert.Equal(t, 102, s.UnitsForDay(monday))
}

func TestSimulatorFloorsAtOneUnit(t *testing.T) {
	s := NewSimulator(SimulatorConfig{Average: 0, Variation: 0, Seed: 1})

	assert.Equal(t, 1, s.UnitsForDay(monday))
}

func TestSimulatorSeedIsReproducible(t *testing.T) {
	a := NewSimulator(SimulatorConfig{Average: 68, Variation: 0.15, SpikeProbability: 0.05, SpikeMultiplier: 1.5, Seed: 7})
	b := NewSimulator(SimulatorConfig{Average: 68, Variation: 0.15, SpikeProbability: 0.05, SpikeMultiplier: 1.5, Seed: 7})

	for i := 0; i < 50; i++ {
		day := monday.AddDate(0, 0, i)
		assert.Equal(t, a.UnitsForDay(day), b.UnitsForDay(day))
	}
}

func TestFixedSource(t *testing.T) {
	assert.Equal(t, 68, FixedSource(68).UnitsForDay(monday))
	assert.Equal(t, 68, FixedSource(68).UnitsForDay(saturday))
}

// Package metrics derives comparative latency statistics per communication
// path from the event log.
package metrics

import (
	"context"
	"math"
	"sort"

	"github.com/hospital-e/supply-service/internal/models"
	"github.com/hospital-e/supply-service/internal/store"
)

// PathStats summarizes the logged latencies of one architecture. The
// pointer fields are nil when no latencies have been recorded, so an empty
// path reports a defined "no data" result rather than an error.
type PathStats struct {
	Count int      `json:"count"`
	AvgMS *float64 `json:"avgLatencyMs,omitempty"`
	MinMS *int64   `json:"minLatencyMs,omitempty"`
	MaxMS *int64   `json:"maxLatencyMs,omitempty"`
	P95MS *float64 `json:"p95LatencyMs,omitempty"`
}

// Report compares the paths; both architectures are always present.
type Report map[models.Architecture]PathStats

type Aggregator struct {
	store store.Store
}

func NewAggregator(st store.Store) *Aggregator {
	return &Aggregator{store: st}
}

// Report aggregates over the full retained history at call time. Callers
// needing a moving window must pre-filter by timestamp before aggregating.
func (a *Aggregator) Report(ctx context.Context) (Report, error) {
	latencies, err := a.store.LatenciesByArchitecture(ctx)
	if err != nil {
		return nil, err
	}
	report := Report{
		models.ArchSOA:        Compute(latencies[models.ArchSOA]),
		models.ArchServerless: Compute(latencies[models.ArchServerless]),
	}
	for arch, lat := range latencies {
		if _, ok := report[arch]; !ok {
			report[arch] = Compute(lat)
		}
	}
	return report, nil
}

// Compute returns count/mean/min/max/p95 for a latency sample.
func Compute(latencies []int64) PathStats {
	n := len(latencies)
	if n == 0 {
		return PathStats{}
	}

	sorted := make([]int64, n)
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum int64
	for _, v := range sorted {
		sum += v
	}
	avg := float64(sum) / float64(n)
	minV := sorted[0]
	maxV := sorted[n-1]
	p95 := percentile(sorted, 0.95)

	return PathStats{
		Count: n,
		AvgMS: &avg,
		MinMS: &minV,
		MaxMS: &maxV,
		P95MS: &p95,
	}
}

// percentile interpolates linearly between closest ranks, matching
// PERCENTILE_CONT semantics. The input must be sorted ascending.
func percentile(sorted []int64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return float64(sorted[0])
	}
	rank := p * float64(n-1)
	lower := int(math.Floor(rank))
	frac := rank - float64(lower)
	if lower+1 >= n {
		return float64(sorted[n-1])
	}
	return float64(sorted[lower]) + frac*float64(sorted[lower+1]-sorted[lower])
}

package cdnsift

import (
	"math"
	"sort"

	"github.com/cdnsift/cdnsift/data"
)

// Baseline holds the population percentiles the scorer compares individual
// sources against. The cutoffs are derived from the current run, not fixed
// constants.
type Baseline struct {
	Requests PercentileSet `json:"requests"`
	Bytes    PercentileSet `json:"bytes"`
}

// PercentileSet is one metric's percentile cutoffs.
type PercentileSet struct {
	P75 float64 `json:"p75"`
	P90 float64 `json:"p90"`
	P99 float64 `json:"p99"`
}

// percentile computes the p-th percentile of values using linear
// interpolation between closest ranks: with the values sorted ascending,
// rank = p/100 * (n-1), interpolated between the neighboring elements.
// This is the interpolation numpy uses by default; it is fixed so scores
// are reproducible bit for bit for the same population. An empty input
// yields 0.
func percentile(values []float64, p float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return values[0]
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}

	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// computeBaseline derives the percentile cutoffs for request counts and
// byte totals across all sources in a snapshot.
func computeBaseline(sources map[string]*data.SourceStats) Baseline {
	requests := make([]float64, 0, len(sources))
	bytes := make([]float64, 0, len(sources))
	for _, s := range sources {
		requests = append(requests, float64(s.Requests))
		bytes = append(bytes, float64(s.Bytes))
	}

	return Baseline{
		Requests: PercentileSet{
			P75: percentile(requests, 75),
			P90: percentile(requests, 90),
			P99: percentile(requests, 99),
		},
		Bytes: PercentileSet{
			P75: percentile(bytes, 75),
			P90: percentile(bytes, 90),
			P99: percentile(bytes, 99),
		},
	}
}

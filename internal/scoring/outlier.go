package scoring

import (
	"math"
	"sort"
)

// outlierFactor is the number of MADs an observation may sit from the median.
const outlierFactor = 2.0

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// mad returns the median absolute deviation around m.
func mad(values []float64, m float64) float64 {
	if len(values) == 0 {
		return 0
	}
	dev := make([]float64, len(values))
	for i, v := range values {
		dev[i] = math.Abs(v - m)
	}
	return median(dev)
}

type spread struct {
	median float64
	mad    float64
}

func newSpread(values []float64) spread {
	m := median(values)
	return spread{median: m, mad: mad(values, m)}
}

// outlier reports whether v lies further than outlierFactor MADs from the
// median. A zero MAD means the cohort has no spread and nothing is flagged.
func (s spread) outlier(v float64) bool {
	if s.mad == 0 {
		return false
	}
	return math.Abs(v-s.median) > outlierFactor*s.mad
}

package scoring

import "procurecore/pkg/domain"

// SubScores are the per-dimension scores of one offer, each in [0,100].
type SubScores struct {
	Price   float64
	Time    float64
	Quality float64
	Custom  map[string]float64
}

// Strategy combines sub-scores into a single weighted score. Weights passed to
// Combine are already normalized to sum to 1.
type Strategy interface {
	Name() string
	Combine(sub SubScores, weights domain.ScoringWeights) float64
}

// WeightedSum is the default strategy: Σ score·weight.
type WeightedSum struct{}

// Name implements Strategy.
func (WeightedSum) Name() string { return "weighted_sum" }

// Combine implements Strategy.
func (WeightedSum) Combine(sub SubScores, w domain.ScoringWeights) float64 {
	total := sub.Price*w.Price + sub.Time*w.Time + sub.Quality*w.Quality
	for _, key := range w.CustomKeys() {
		total += sub.Custom[key] * w.Custom[key]
	}
	return total
}

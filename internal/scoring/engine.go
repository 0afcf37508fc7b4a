// Package scoring computes per-offer sub-scores, weighted composites, outlier
// flags and the ranked comparison of an RDO's offers.
package scoring

import (
	"math"

	"procurecore/pkg/domain"
)

// Warning codes attached to offers or to the whole cohort.
const (
	WarnSingleOffer    = "single_offer_cohort"
	WarnInvalidPrice   = "invalid_total_price"
	WarnInvalidTime    = "invalid_total_time"
	WarnMissingQuality = "missing_quality_score"
	WarnNoValidPrice   = "no_valid_price_in_cohort"
	WarnNoValidTime    = "no_valid_time_in_cohort"
)

// Engine scores a cohort of offers.
type Engine struct {
	strategy Strategy
}

// Option customizes an Engine.
type Option func(*Engine)

// WithStrategy replaces the default weighted-sum strategy.
func WithStrategy(s Strategy) Option {
	return func(e *Engine) {
		if s != nil {
			e.strategy = s
		}
	}
}

// NewEngine constructs an engine using WeightedSum unless overridden.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{strategy: WeightedSum{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Strategy returns the active strategy.
func (e *Engine) Strategy() Strategy { return e.strategy }

// Input is one scoring pass over an RDO's offers.
type Input struct {
	Offers  []domain.Offer
	Weights domain.ScoringWeights
	Schema  domain.MetadataSchema
	// PreChecks keyed by vendor. When present, the overall score replaces the
	// offer's self-declared quality score.
	PreChecks map[string]domain.PreCheckResult
}

// Output carries scored offers and cohort-level findings.
type Output struct {
	Scored   []domain.Offer
	Excluded []domain.Offer
	Outliers []domain.OutlierAnalysis
	Warnings []string
}

// Score computes sub-scores and weighted scores for every eligible offer.
// Ineligible offers are returned in Excluded untouched.
func (e *Engine) Score(in Input) (Output, error) {
	if err := in.Weights.Validate(in.Schema); err != nil {
		return Output{}, err
	}
	weights := in.Weights.Normalized()

	var out Output
	cohort := make([]domain.Offer, 0, len(in.Offers))
	for _, offer := range in.Offers {
		if offer.Eligible() {
			cohort = append(cohort, offer)
		} else {
			out.Excluded = append(out.Excluded, offer)
		}
	}
	if len(cohort) == 0 {
		return out, nil
	}

	minPrice, priceOK := minPositive(cohort, priceOf)
	minTime, timeOK := minPositive(cohort, timeOf)
	if !priceOK {
		out.Warnings = append(out.Warnings, WarnNoValidPrice)
	}
	if !timeOK {
		out.Warnings = append(out.Warnings, WarnNoValidTime)
	}
	single := len(cohort) == 1
	if single {
		out.Warnings = append(out.Warnings, WarnSingleOffer)
	}

	var priceSpread, timeSpread spread
	if !single {
		priceSpread = newSpread(collect(cohort, priceOf))
		timeSpread = newSpread(collect(cohort, timeOf))
	}

	for _, offer := range cohort {
		scoring := domain.OfferScoring{}
		sub := SubScores{}

		sub.Price = relativeScore(priceOf(offer), minPrice)
		if priceOf(offer) <= 0 {
			scoring.ManualReview = true
			scoring.Warnings = append(scoring.Warnings, WarnInvalidPrice)
		}
		sub.Time = relativeScore(timeOf(offer), minTime)
		if timeOf(offer) <= 0 {
			scoring.ManualReview = true
			scoring.Warnings = append(scoring.Warnings, WarnInvalidTime)
		}

		if pc, ok := in.PreChecks[offer.VendorID]; ok {
			sub.Quality = clip(pc.OverallScore)
			offer.PreCheckStatus = pc.Status
		} else if offer.QualityScore != nil {
			sub.Quality = clip(*offer.QualityScore)
		} else {
			scoring.Warnings = append(scoring.Warnings, WarnMissingQuality)
		}

		if keys := weights.CustomKeys(); len(keys) > 0 {
			sub.Custom = make(map[string]float64, len(keys))
			for _, key := range keys {
				v, ok := offer.AdditionalInfo.Number(key)
				if !ok {
					scoring.Warnings = append(scoring.Warnings, "missing_custom_"+key)
				}
				sub.Custom[key] = clip(v)
			}
		}

		if single {
			scoring.Warnings = append(scoring.Warnings, WarnSingleOffer)
		} else {
			if priceSpread.outlier(priceOf(offer)) {
				scoring.IsOutlier = true
				scoring.OutlierReasons = append(scoring.OutlierReasons, "price")
				out.Outliers = append(out.Outliers, analysis(offer, "price", priceOf(offer), priceSpread))
			}
			if timeSpread.outlier(timeOf(offer)) {
				scoring.IsOutlier = true
				scoring.OutlierReasons = append(scoring.OutlierReasons, "time")
				out.Outliers = append(out.Outliers, analysis(offer, "time", timeOf(offer), timeSpread))
			}
		}

		scoring.PriceScore = round2(sub.Price)
		scoring.TimeScore = round2(sub.Time)
		scoring.QualityScore = round2(sub.Quality)
		if sub.Custom != nil {
			scoring.CustomScores = make(map[string]float64, len(sub.Custom))
			for k, v := range sub.Custom {
				scoring.CustomScores[k] = round2(v)
			}
		}
		scoring.TotalScore = round2(mean(sub))
		scoring.WeightedScore = round2(clip(e.strategy.Combine(sub, weights)))

		offer.Scoring = &scoring
		out.Scored = append(out.Scored, offer)
	}
	return out, nil
}

func priceOf(o domain.Offer) float64 { return o.TotalPrice.InexactFloat64() }
func timeOf(o domain.Offer) float64  { return float64(o.TotalTime) }

func minPositive(offers []domain.Offer, value func(domain.Offer) float64) (float64, bool) {
	best := math.Inf(1)
	for _, o := range offers {
		if v := value(o); v > 0 && v < best {
			best = v
		}
	}
	if math.IsInf(best, 1) {
		return 0, false
	}
	return best, true
}

func collect(offers []domain.Offer, value func(domain.Offer) float64) []float64 {
	out := make([]float64, len(offers))
	for i, o := range offers {
		out[i] = value(o)
	}
	return out
}

// relativeScore is 100 × best/value, or 0 when either side is not positive.
func relativeScore(value, best float64) float64 {
	if value <= 0 || best <= 0 {
		return 0
	}
	return clip(100 * best / value)
}

func mean(sub SubScores) float64 {
	sum := sub.Price + sub.Time + sub.Quality
	n := 3.0
	for _, v := range sub.Custom {
		sum += v
		n++
	}
	return sum / n
}

func analysis(o domain.Offer, dim string, v float64, s spread) domain.OutlierAnalysis {
	return domain.OutlierAnalysis{
		OfferID:   o.ID,
		VendorID:  o.VendorID,
		Dimension: dim,
		Value:     v,
		Median:    s.median,
		MAD:       s.mad,
		Deviation: round2(math.Abs(v-s.median) / s.mad),
	}
}

func clip(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

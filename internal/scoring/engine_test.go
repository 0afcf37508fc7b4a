package scoring

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"procurecore/pkg/domain"
)

var defaultWeights = domain.ScoringWeights{Price: 0.5, Time: 0.3, Quality: 0.2}

func floatPtr(v float64) *float64 { return &v }

func offer(id, vendor string, price int64, days int, quality float64) domain.Offer {
	return domain.Offer{
		Base:         domain.Base{ID: id},
		RDOID:        "rdo-1",
		VendorID:     vendor,
		Status:       domain.OfferStatusSubmitted,
		TotalPrice:   decimal.NewFromInt(price),
		TotalTime:    days,
		QualityScore: floatPtr(quality),
		SubmittedAt:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func byID(offers []domain.Offer) map[string]domain.Offer {
	out := make(map[string]domain.Offer, len(offers))
	for _, o := range offers {
		out[o.ID] = o
	}
	return out
}

func TestScoreVendorScenario(t *testing.T) {
	a := offer("a", "vendor-a", 430, 175, 90)
	b := offer("b", "vendor-b", 460, 190, 95)
	b.Lines = []domain.OfferLine{{RDOLineID: "l5", Excluded: true}}

	out, err := NewEngine().Score(Input{Offers: []domain.Offer{a, b}, Weights: defaultWeights})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	scored := byID(out.Scored)
	sa, sb := scored["a"].Scoring, scored["b"].Scoring
	if sa.WeightedScore <= sb.WeightedScore {
		t.Fatalf("expected A to outscore B, got %.2f vs %.2f", sa.WeightedScore, sb.WeightedScore)
	}
	if sa.WeightedScore != 98 {
		t.Fatalf("expected A weighted 98, got %.2f", sa.WeightedScore)
	}
	if sb.PriceScore != 93.48 || sb.TimeScore != 92.11 {
		t.Fatalf("unexpected B sub-scores: price %.2f time %.2f", sb.PriceScore, sb.TimeScore)
	}

	cmp := BuildComparison("rdo-1", out, time.Now().UTC())
	if cmp.Ranked[0].OfferID != "a" || cmp.Ranked[0].Ranking.Rank != 1 {
		t.Fatalf("expected A ranked first, got %+v", cmp.Ranked[0])
	}
	if cmp.Ranked[0].Ranking.Tier != domain.TierStrong {
		t.Fatalf("expected strong tier, got %s", cmp.Ranked[0].Ranking.Tier)
	}
	if cmp.Ranked[1].Ranking.QualityRank != 1 {
		t.Fatalf("expected B to lead on quality, got rank %d", cmp.Ranked[1].Ranking.QualityRank)
	}
}

func TestWeightedScoreStaysWithinBounds(t *testing.T) {
	weightSets := []domain.ScoringWeights{
		{Price: 1},
		{Time: 1},
		{Quality: 1},
		{Price: 0.5, Time: 0.3, Quality: 0.2},
		{Price: 0.2, Time: 0.2, Quality: 0.6, Custom: map[string]float64{"warranty": 0.7}},
	}
	schema := domain.MetadataSchema{"warranty": {Kind: domain.FieldNumber}}
	cohorts := [][]domain.Offer{
		{offer("x", "v1", 1, 1, 150)},
		{offer("x", "v1", 100, 10, 50), offer("y", "v2", 100000, 900, -20)},
		{offer("x", "v1", 0, 0, 100), offer("y", "v2", 250, 30, 80), offer("z", "v3", 251, 31, 0)},
	}
	for _, w := range weightSets {
		for _, cohort := range cohorts {
			for i := range cohort {
				cohort[i].AdditionalInfo = domain.Metadata{"warranty": float64(40 * i)}
			}
			out, err := NewEngine().Score(Input{Offers: cohort, Weights: w, Schema: schema})
			if err != nil {
				t.Fatalf("score: %v", err)
			}
			for _, o := range out.Scored {
				if ws := o.Scoring.WeightedScore; ws < 0 || ws > 100 {
					t.Fatalf("weighted score %.2f out of range for weights %+v", ws, w)
				}
			}
		}
	}
}

func TestSingleOfferCohortIsNeverOutlier(t *testing.T) {
	out, err := NewEngine().Score(Input{Offers: []domain.Offer{offer("solo", "v1", 999999, 5000, 10)}, Weights: defaultWeights})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	solo := out.Scored[0].Scoring
	if solo.IsOutlier {
		t.Fatalf("single offer must not be flagged")
	}
	if solo.PriceScore != 100 || solo.TimeScore != 100 {
		t.Fatalf("single offer should score against itself, got %+v", solo)
	}
	if len(out.Warnings) == 0 || out.Warnings[0] != WarnSingleOffer {
		t.Fatalf("expected single cohort warning, got %v", out.Warnings)
	}
}

func TestOutlierFlaggedButStillScored(t *testing.T) {
	cohort := []domain.Offer{
		offer("o1", "v1", 100, 10, 80),
		offer("o2", "v2", 101, 10, 80),
		offer("o3", "v3", 102, 10, 80),
		offer("o4", "v4", 103, 10, 80),
		offer("o5", "v5", 500, 10, 80),
	}
	out, err := NewEngine().Score(Input{Offers: cohort, Weights: defaultWeights})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	scored := byID(out.Scored)
	if len(scored) != 5 {
		t.Fatalf("outlier must not be excluded, got %d scored", len(scored))
	}
	if !scored["o5"].Scoring.IsOutlier {
		t.Fatalf("expected o5 flagged as price outlier")
	}
	if scored["o1"].Scoring.IsOutlier {
		t.Fatalf("o1 sits within 2 MAD and must not be flagged")
	}
	if len(out.Outliers) != 1 || out.Outliers[0].Dimension != "price" {
		t.Fatalf("expected one price outlier analysis, got %+v", out.Outliers)
	}
}

func TestInvalidPriceYieldsZeroAndManualReview(t *testing.T) {
	cohort := []domain.Offer{offer("bad", "v1", 0, 10, 80), offer("good", "v2", 200, 10, 80)}
	out, err := NewEngine().Score(Input{Offers: cohort, Weights: defaultWeights})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	scored := byID(out.Scored)
	if scored["bad"].Scoring.PriceScore != 0 || !scored["bad"].Scoring.ManualReview {
		t.Fatalf("expected zero price score with manual review, got %+v", scored["bad"].Scoring)
	}
	if scored["good"].Scoring.PriceScore != 100 {
		t.Fatalf("valid offer should be the cohort minimum, got %.2f", scored["good"].Scoring.PriceScore)
	}
}

func TestIneligibleOffersAreNotScored(t *testing.T) {
	withdrawn := offer("w", "v1", 100, 10, 80)
	withdrawn.Status = domain.OfferStatusWithdrawn
	excluded := offer("e", "v2", 100, 10, 80)
	excluded.Excluded = true
	out, err := NewEngine().Score(Input{Offers: []domain.Offer{withdrawn, excluded, offer("ok", "v3", 120, 12, 70)}, Weights: defaultWeights})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if len(out.Scored) != 1 || out.Scored[0].ID != "ok" {
		t.Fatalf("expected only the submitted offer scored, got %+v", out.Scored)
	}
	cmp := BuildComparison("rdo-1", out, time.Now().UTC())
	if len(cmp.ExcludedOfferIDs) != 1 || cmp.ExcludedOfferIDs[0] != "e" {
		t.Fatalf("expected PM exclusion listed, got %v", cmp.ExcludedOfferIDs)
	}
	if cmp.Statistics.OfferCount != 1 {
		t.Fatalf("statistics must ignore excluded offers, got %d", cmp.Statistics.OfferCount)
	}
}

func TestWeightValidation(t *testing.T) {
	_, err := NewEngine().Score(Input{Weights: domain.ScoringWeights{Price: 0.5, Time: 0.3, Quality: 0.1}})
	var verr domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error for weights not summing to 1, got %v", err)
	}
	_, err = NewEngine().Score(Input{Weights: domain.ScoringWeights{Price: 0.5, Time: 0.3, Quality: 0.2, Custom: map[string]float64{"esg": 0.1}}})
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error for undeclared custom dimension, got %v", err)
	}
}

func TestCustomDimensionRenormalizes(t *testing.T) {
	schema := domain.MetadataSchema{"esg": {Kind: domain.FieldNumber}}
	w := domain.ScoringWeights{Price: 0.5, Time: 0.3, Quality: 0.2, Custom: map[string]float64{"esg": 1}}
	o := offer("only", "v1", 100, 10, 0)
	o.AdditionalInfo = domain.Metadata{"esg": 0.0}
	out, err := NewEngine().Score(Input{Offers: []domain.Offer{o}, Weights: w, Schema: schema})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	// price and time score 100 and keep 0.4 of the renormalized weight.
	if got := out.Scored[0].Scoring.WeightedScore; got != 40 {
		t.Fatalf("expected renormalized weighted score 40, got %.2f", got)
	}
}

type constantStrategy struct{ value float64 }

func (constantStrategy) Name() string                                       { return "constant" }
func (c constantStrategy) Combine(SubScores, domain.ScoringWeights) float64 { return c.value }

func TestInjectedStrategy(t *testing.T) {
	e := NewEngine(WithStrategy(constantStrategy{value: 42}))
	out, err := e.Score(Input{Offers: []domain.Offer{offer("a", "v1", 1, 1, 1), offer("b", "v2", 2, 2, 2)}, Weights: defaultWeights})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	for _, o := range out.Scored {
		if o.Scoring.WeightedScore != 42 {
			t.Fatalf("expected strategy output, got %.2f", o.Scoring.WeightedScore)
		}
	}
	if e.Strategy().Name() != "constant" {
		t.Fatalf("unexpected strategy %s", e.Strategy().Name())
	}
}

func TestPreCheckOverridesQuality(t *testing.T) {
	o := offer("a", "v1", 100, 10, 20)
	out, err := NewEngine().Score(Input{
		Offers:    []domain.Offer{o},
		Weights:   domain.ScoringWeights{Quality: 1},
		PreChecks: map[string]domain.PreCheckResult{"v1": {OverallScore: 75, Status: domain.PreCheckWarning}},
	})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if got := out.Scored[0]; got.Scoring.QualityScore != 75 || got.PreCheckStatus != domain.PreCheckWarning {
		t.Fatalf("expected pre-check quality and status, got %+v / %s", got.Scoring, got.PreCheckStatus)
	}
}

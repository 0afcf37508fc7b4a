package scoring

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"procurecore/pkg/domain"
)

// Tier thresholds on the weighted score.
const (
	StrongThreshold     = 85.0
	GoodThreshold       = 70.0
	AcceptableThreshold = 50.0
)

// TierFor maps a weighted score to its recommendation tier.
func TierFor(score float64) domain.Tier {
	switch {
	case score >= StrongThreshold:
		return domain.TierStrong
	case score >= GoodThreshold:
		return domain.TierGood
	case score >= AcceptableThreshold:
		return domain.TierAcceptable
	default:
		return domain.TierWeak
	}
}

// tieBreak orders offers by lower price, lower time, earlier submission, then ID.
func tieBreak(a, b domain.Offer) bool {
	if c := a.TotalPrice.Cmp(b.TotalPrice); c != 0 {
		return c < 0
	}
	if a.TotalTime != b.TotalTime {
		return a.TotalTime < b.TotalTime
	}
	if !a.SubmittedAt.Equal(b.SubmittedAt) {
		return a.SubmittedAt.Before(b.SubmittedAt)
	}
	return a.ID < b.ID
}

func weighted(o domain.Offer) float64 {
	if o.Scoring == nil {
		return 0
	}
	return o.Scoring.WeightedScore
}

func quality(o domain.Offer) float64 {
	if o.Scoring == nil {
		return 0
	}
	return o.Scoring.QualityScore
}

// Less is the overall ranking order: weighted score descending, then tieBreak.
func Less(a, b domain.Offer) bool {
	if wa, wb := weighted(a), weighted(b); wa != wb {
		return wa > wb
	}
	return tieBreak(a, b)
}

// Rank sorts scored offers into a total order and assigns overall and
// per-dimension ranks plus tiers. The input slice is not modified.
func Rank(scored []domain.Offer) []domain.Offer {
	ranked := append([]domain.Offer(nil), scored...)
	sort.SliceStable(ranked, func(i, j int) bool { return Less(ranked[i], ranked[j]) })

	priceRank := positions(ranked, func(a, b domain.Offer) bool {
		if c := a.TotalPrice.Cmp(b.TotalPrice); c != 0 {
			return c < 0
		}
		return Less(a, b)
	})
	timeRank := positions(ranked, func(a, b domain.Offer) bool {
		if a.TotalTime != b.TotalTime {
			return a.TotalTime < b.TotalTime
		}
		return Less(a, b)
	})
	qualityRank := positions(ranked, func(a, b domain.Offer) bool {
		if qa, qb := quality(a), quality(b); qa != qb {
			return qa > qb
		}
		return Less(a, b)
	})

	for i := range ranked {
		id := ranked[i].ID
		ranked[i].Ranking = &domain.OfferRanking{
			Rank:        i + 1,
			PriceRank:   priceRank[id],
			TimeRank:    timeRank[id],
			QualityRank: qualityRank[id],
			Tier:        TierFor(weighted(ranked[i])),
		}
	}
	return ranked
}

func positions(offers []domain.Offer, less func(a, b domain.Offer) bool) map[string]int {
	ordered := append([]domain.Offer(nil), offers...)
	sort.SliceStable(ordered, func(i, j int) bool { return less(ordered[i], ordered[j]) })
	out := make(map[string]int, len(ordered))
	for i, o := range ordered {
		out[o.ID] = i + 1
	}
	return out
}

// BuildComparison ranks the scoring output and aggregates statistics across
// the non-excluded cohort.
func BuildComparison(rdoID string, out Output, now time.Time) domain.Comparison {
	ranked := Rank(out.Scored)
	cmp := domain.Comparison{
		RDOID:      rdoID,
		Ranked:     make([]domain.RankedOffer, 0, len(ranked)),
		Outliers:   append([]domain.OutlierAnalysis(nil), out.Outliers...),
		Warnings:   append([]string(nil), out.Warnings...),
		ComputedAt: now,
	}
	for _, o := range ranked {
		cmp.Ranked = append(cmp.Ranked, domain.RankedOffer{
			OfferID:     o.ID,
			VendorID:    o.VendorID,
			TotalPrice:  o.TotalPrice,
			TotalTime:   o.TotalTime,
			SubmittedAt: o.SubmittedAt,
			Scoring:     *o.Scoring,
			Ranking:     *o.Ranking,
		})
	}
	for _, o := range out.Excluded {
		if o.Status == domain.OfferStatusSubmitted && o.Excluded {
			cmp.ExcludedOfferIDs = append(cmp.ExcludedOfferIDs, o.ID)
		}
	}
	sort.Strings(cmp.ExcludedOfferIDs)
	cmp.Statistics = statistics(ranked)
	return cmp
}

func statistics(offers []domain.Offer) domain.ComparisonStats {
	stats := domain.ComparisonStats{OfferCount: len(offers)}
	if len(offers) == 0 {
		return stats
	}
	sumPrice := decimal.Zero
	sumTime := 0
	sumWeighted := 0.0
	// Minimums only consider positive values, as the scoring baselines do.
	havePrice, haveTime := false, false
	for i, o := range offers {
		w := weighted(o)
		if i == 0 {
			stats.MaxPrice, stats.MaxTime = o.TotalPrice, o.TotalTime
			stats.MinWeighted, stats.MaxWeighted = w, w
		}
		if o.TotalPrice.IsPositive() && (!havePrice || o.TotalPrice.LessThan(stats.MinPrice)) {
			stats.MinPrice, havePrice = o.TotalPrice, true
		}
		if o.TotalPrice.GreaterThan(stats.MaxPrice) {
			stats.MaxPrice = o.TotalPrice
		}
		if o.TotalTime > 0 && (!haveTime || o.TotalTime < stats.MinTime) {
			stats.MinTime, haveTime = o.TotalTime, true
		}
		if o.TotalTime > stats.MaxTime {
			stats.MaxTime = o.TotalTime
		}
		if w < stats.MinWeighted {
			stats.MinWeighted = w
		}
		if w > stats.MaxWeighted {
			stats.MaxWeighted = w
		}
		sumPrice = sumPrice.Add(o.TotalPrice)
		sumTime += o.TotalTime
		sumWeighted += w
		if o.Scoring != nil && o.Scoring.ManualReview {
			stats.ManualReviews++
		}
	}
	n := len(offers)
	stats.AvgPrice = domain.Money(sumPrice.Div(decimal.NewFromInt(int64(n))))
	stats.AvgTime = round2(float64(sumTime) / float64(n))
	stats.AvgWeighted = round2(sumWeighted / float64(n))

	ps := newSpread(collect(offers, priceOf))
	ts := newSpread(collect(offers, timeOf))
	stats.PriceMedian, stats.PriceMAD = round2(ps.median), round2(ps.mad)
	stats.TimeMedian, stats.TimeMAD = round2(ts.median), round2(ts.mad)
	if stats.MinPrice.IsPositive() {
		spread := stats.MaxPrice.Sub(stats.MinPrice).Div(stats.MinPrice).InexactFloat64() * 100
		stats.SpreadPricePct = round2(spread)
	}
	return stats
}

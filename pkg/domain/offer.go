package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OfferStatus enumerates the states of an offer revision.
type OfferStatus string

// Offer statuses. Only submitted offers are eligible for scoring.
const (
	OfferStatusSubmitted  OfferStatus = "submitted"
	OfferStatusSuperseded OfferStatus = "superseded"
	OfferStatusWithdrawn  OfferStatus = "withdrawn"
)

// OfferLine is a vendor's priced response to one RDO line.
type OfferLine struct {
	RDOLineID    string          `json:"rdo_line_id"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Quantity     decimal.Decimal `json:"quantity"`
	DeliveryDays int             `json:"delivery_days,omitempty"`
	Excluded     bool            `json:"excluded,omitempty"`
	Notes        string          `json:"notes,omitempty"`
}

// Value returns unit price times quantity, rounded to money precision.
func (l OfferLine) Value() decimal.Decimal {
	return Money(l.UnitPrice.Mul(l.Quantity))
}

// Offer is one revision of a vendor's response to an RDO.
type Offer struct {
	Base
	RDOID           string          `json:"rdo_id"`
	VendorID        string          `json:"vendor_id"`
	Revision        int             `json:"revision"`
	SupersedesID    string          `json:"supersedes_id,omitempty"`
	Status          OfferStatus     `json:"status"`
	Lines           []OfferLine     `json:"lines"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	TotalTime       int             `json:"total_time"`
	QualityScore    *float64        `json:"quality_score,omitempty"`
	AdditionalInfo  Metadata        `json:"additional_info,omitempty"`
	SubmittedAt     time.Time       `json:"submitted_at"`
	Locked          bool            `json:"locked"`
	Excluded        bool            `json:"excluded,omitempty"`
	ExclusionReason string          `json:"exclusion_reason,omitempty"`
	PreCheckStatus  PreCheckStatus  `json:"precheck_status,omitempty"`
	Scoring         *OfferScoring   `json:"scoring,omitempty"`
	Ranking         *OfferRanking   `json:"ranking,omitempty"`
}

// Line returns the offer line answering the given RDO line.
func (o Offer) Line(rdoLineID string) (OfferLine, bool) {
	for _, line := range o.Lines {
		if line.RDOLineID == rdoLineID {
			return line, true
		}
	}
	return OfferLine{}, false
}

// ComputeTotals derives TotalPrice from non-excluded lines and, when TotalTime
// is unset, the longest line delivery time.
func (o *Offer) ComputeTotals() {
	total := decimal.Zero
	maxDays := 0
	for _, line := range o.Lines {
		if line.Excluded {
			continue
		}
		total = total.Add(line.Value())
		if line.DeliveryDays > maxDays {
			maxDays = line.DeliveryDays
		}
	}
	o.TotalPrice = Money(total)
	if o.TotalTime == 0 {
		o.TotalTime = maxDays
	}
}

// Eligible reports whether the offer participates in scoring.
func (o Offer) Eligible() bool {
	return o.Status == OfferStatusSubmitted && !o.Excluded
}

// OfferScoring holds the sub-scores computed for an offer within its cohort.
type OfferScoring struct {
	PriceScore     float64            `json:"price_score"`
	TimeScore      float64            `json:"time_score"`
	QualityScore   float64            `json:"quality_score"`
	CustomScores   map[string]float64 `json:"custom_scores,omitempty"`
	TotalScore     float64            `json:"total_score"`
	WeightedScore  float64            `json:"weighted_score"`
	IsOutlier      bool               `json:"is_outlier"`
	OutlierReasons []string           `json:"outlier_reasons,omitempty"`
	ManualReview   bool               `json:"manual_review,omitempty"`
	Warnings       []string           `json:"warnings,omitempty"`
}

// Tier is a recommendation band derived from the weighted score.
type Tier string

// Recommendation tiers.
const (
	TierStrong     Tier = "strong"
	TierGood       Tier = "good"
	TierAcceptable Tier = "acceptable"
	TierWeak       Tier = "weak"
)

// OfferRanking places an offer within its comparison.
type OfferRanking struct {
	Rank        int  `json:"rank"`
	PriceRank   int  `json:"price_rank"`
	TimeRank    int  `json:"time_rank"`
	QualityRank int  `json:"quality_rank"`
	Tier        Tier `json:"tier"`
}

// RankedOffer is a comparison row.
type RankedOffer struct {
	OfferID     string          `json:"offer_id"`
	VendorID    string          `json:"vendor_id"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	TotalTime   int             `json:"total_time"`
	SubmittedAt time.Time       `json:"submitted_at"`
	Scoring     OfferScoring    `json:"scoring"`
	Ranking     OfferRanking    `json:"ranking"`
}

// ComparisonStats aggregates values across non-excluded offers.
type ComparisonStats struct {
	OfferCount     int             `json:"offer_count"`
	MinPrice       decimal.Decimal `json:"min_price"`
	MaxPrice       decimal.Decimal `json:"max_price"`
	AvgPrice       decimal.Decimal `json:"avg_price"`
	MinTime        int             `json:"min_time"`
	MaxTime        int             `json:"max_time"`
	AvgTime        float64         `json:"avg_time"`
	MinWeighted    float64         `json:"min_weighted"`
	MaxWeighted    float64         `json:"max_weighted"`
	AvgWeighted    float64         `json:"avg_weighted"`
	PriceMedian    float64         `json:"price_median"`
	PriceMAD       float64         `json:"price_mad"`
	TimeMedian     float64         `json:"time_median"`
	TimeMAD        float64         `json:"time_mad"`
	SpreadPricePct float64         `json:"spread_price_pct"`
	ManualReviews  int             `json:"manual_reviews"`
}

// OutlierAnalysis explains why an offer was flagged.
type OutlierAnalysis struct {
	OfferID   string  `json:"offer_id"`
	VendorID  string  `json:"vendor_id"`
	Dimension string  `json:"dimension"`
	Value     float64 `json:"value"`
	Median    float64 `json:"median"`
	MAD       float64 `json:"mad"`
	Deviation float64 `json:"deviation"`
}

// Comparison is the ranked evaluation of an RDO's offers.
type Comparison struct {
	Base
	RDOID            string            `json:"rdo_id"`
	Ranked           []RankedOffer     `json:"ranked"`
	ExcludedOfferIDs []string          `json:"excluded_offer_ids,omitempty"`
	Statistics       ComparisonStats   `json:"statistics"`
	Outliers         []OutlierAnalysis `json:"outliers,omitempty"`
	Warnings         []string          `json:"warnings,omitempty"`
	ComputedAt       time.Time         `json:"computed_at"`
}

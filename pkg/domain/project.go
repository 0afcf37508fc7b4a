package domain

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Timing carries the cash-flow assumptions fed to the financial model.
// PeriodWeights split revenue and cost across periods; they are normalized by
// the model, so {1} means a single-period project.
type Timing struct {
	DiscountRate  float64   `json:"discount_rate" yaml:"discount_rate"`
	PeriodWeights []float64 `json:"period_weights" yaml:"period_weights"`
}

// IsZero reports whether no timing assumptions were supplied.
func (t Timing) IsZero() bool {
	return t.DiscountRate == 0 && len(t.PeriodWeights) == 0
}

// Clone returns a copy that does not share PeriodWeights.
func (t Timing) Clone() Timing {
	t.PeriodWeights = append([]float64(nil), t.PeriodWeights...)
	return t
}

// Validate checks that the assumptions can be fed to a cash-flow model.
func (t Timing) Validate() error {
	if math.IsNaN(t.DiscountRate) || math.IsInf(t.DiscountRate, 0) || t.DiscountRate <= -1 {
		return ValidationError{Field: "timing.discount_rate", Message: "must be a finite number greater than -1"}
	}
	sum := 0.0
	for _, w := range t.PeriodWeights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return ValidationError{Field: "timing.period_weights", Message: "weights must be finite and non-negative"}
		}
		sum += w
	}
	if len(t.PeriodWeights) > 0 && sum == 0 {
		return ValidationError{Field: "timing.period_weights", Message: "weights must not all be zero"}
	}
	return nil
}

// Metrics is the output of the financial model. Margin and ROI are percentages.
type Metrics struct {
	Margin float64         `json:"margin"`
	ROI    float64         `json:"roi"`
	NPV    decimal.Decimal `json:"npv"`
	IRR    *float64        `json:"irr,omitempty"`
}

// Project owns the authoritative business plan that sync results are committed to.
type Project struct {
	Base
	Name        string                     `json:"name"`
	Revenue     decimal.Decimal            `json:"revenue"`
	CostBuckets map[string]decimal.Decimal `json:"cost_buckets"`
	Timing      Timing                     `json:"timing"`
	Metrics     Metrics                    `json:"metrics"`
	LastSync    *time.Time                 `json:"last_sync,omitempty"`
}

// TotalCost sums every cost bucket.
func (p Project) TotalCost() decimal.Decimal {
	total := decimal.Zero
	for _, key := range p.BucketNames() {
		total = total.Add(p.CostBuckets[key])
	}
	return total
}

// BucketNames returns cost bucket names in stable order.
func (p Project) BucketNames() []string {
	keys := make([]string, 0, len(p.CostBuckets))
	for k := range p.CostBuckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LineSnapshot is the last consumption applied to the plan for a contract line.
type LineSnapshot struct {
	LastConsumed decimal.Decimal `json:"last_consumed"`
	AppliedDelta decimal.Decimal `json:"applied_delta"`
}

// SyncSnapshot is the cumulative sync state of a project; its ID is the project ID.
type SyncSnapshot struct {
	Base
	ProjectID string                  `json:"project_id"`
	Lines     map[string]LineSnapshot `json:"lines"`
}

// Impact classifies the margin movement of a sync.
type Impact string

// Impact levels by absolute margin delta in percentage points.
const (
	ImpactLow    Impact = "LOW"
	ImpactMedium Impact = "MEDIUM"
	ImpactHigh   Impact = "HIGH"
)

// LineDelta is the contribution of one changed contract line to a sync.
type LineDelta struct {
	ContractLineID   string          `json:"contract_line_id"`
	BundleID         string          `json:"bundle_id"`
	CostBucket       string          `json:"cost_bucket"`
	ContractedValue  decimal.Decimal `json:"contracted_value"`
	PreviousConsumed decimal.Decimal `json:"previous_consumed"`
	ConsumedToDate   decimal.Decimal `json:"consumed_to_date"`
	LineDelta        decimal.Decimal `json:"line_delta"`
	Increment        decimal.Decimal `json:"increment"`
}

// SyncResult is a deterministic preview of the plan after applying SAL-driven
// cost deltas. Committed results are stored with their ID.
type SyncResult struct {
	ID                string                     `json:"id"`
	ProjectID         string                     `json:"project_id"`
	PlanVersion       int64                      `json:"plan_version"`
	Lines             []LineDelta                `json:"lines"`
	CostDelta         decimal.Decimal            `json:"cost_delta"`
	Buckets           map[string]decimal.Decimal `json:"buckets"`
	PreviousTotalCost decimal.Decimal            `json:"previous_total_cost"`
	NewTotalCost      decimal.Decimal            `json:"new_total_cost"`
	Before            Metrics                    `json:"before"`
	After             Metrics                    `json:"after"`
	MarginDelta       float64                    `json:"margin_delta"`
	NPVDelta          decimal.Decimal            `json:"npv_delta"`
	Impact            Impact                     `json:"impact"`
	Recommendations   []string                   `json:"recommendations,omitempty"`
	AsOf              time.Time                  `json:"as_of"`
	CommittedAt       *time.Time                 `json:"committed_at,omitempty"`
}

// Empty reports whether the preview found nothing to apply.
func (r SyncResult) Empty() bool {
	return len(r.Lines) == 0
}

// CommittedDiff is returned by an explicit sync commit.
type CommittedDiff struct {
	Result          SyncResult                 `json:"result"`
	PreviousBuckets map[string]decimal.Decimal `json:"previous_buckets"`
	NewBuckets      map[string]decimal.Decimal `json:"new_buckets"`
	PlanVersion     int64                      `json:"plan_version"`
	ArtifactKey     string                     `json:"artifact_key,omitempty"`
}

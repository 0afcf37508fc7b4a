package domain

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// RDOStatus enumerates the request-for-offer lifecycle.
type RDOStatus string

// RDO statuses. Transitions are monotonic: draft -> open -> evaluating -> awarded|cancelled.
const (
	RDOStatusDraft      RDOStatus = "draft"
	RDOStatusOpen       RDOStatus = "open"
	RDOStatusEvaluating RDOStatus = "evaluating"
	RDOStatusAwarded    RDOStatus = "awarded"
	RDOStatusCancelled  RDOStatus = "cancelled"
)

var rdoTransitions = map[RDOStatus][]RDOStatus{
	RDOStatusDraft:      {RDOStatusOpen, RDOStatusCancelled},
	RDOStatusOpen:       {RDOStatusEvaluating, RDOStatusCancelled},
	RDOStatusEvaluating: {RDOStatusAwarded, RDOStatusCancelled},
}

// CanTransition reports whether moving from s to next is a legal lifecycle step.
// Staying in the same state is always allowed.
func (s RDOStatus) CanTransition(next RDOStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range rdoTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status accepts no further transitions.
func (s RDOStatus) Terminal() bool {
	return s == RDOStatusAwarded || s == RDOStatusCancelled
}

// Valid reports whether s is a known status.
func (s RDOStatus) Valid() bool {
	switch s {
	case RDOStatusDraft, RDOStatusOpen, RDOStatusEvaluating, RDOStatusAwarded, RDOStatusCancelled:
		return true
	}
	return false
}

// DefaultCostBucket receives line costs that do not name a bucket.
const DefaultCostBucket = "procurement"

// RDOLine is a single requested item.
type RDOLine struct {
	ID             string            `json:"id"`
	Description    string            `json:"description"`
	Quantity       decimal.Decimal   `json:"quantity"`
	Unit           string            `json:"unit"`
	Specifications map[string]string `json:"specifications,omitempty"`
	CostBucket     string            `json:"cost_bucket,omitempty"`
}

// AwardMetadata records the outcome of the award pass.
type AwardMetadata struct {
	AwardedAt    time.Time `json:"awarded_at"`
	BundleIDs    []string  `json:"bundle_ids"`
	CoverageGaps []string  `json:"coverage_gaps,omitempty"`
}

// RDO is a request-for-offer issued for a project.
type RDO struct {
	Base
	ProjectID      string         `json:"project_id"`
	Title          string         `json:"title"`
	Lines          []RDOLine      `json:"lines"`
	InvitedVendors []string       `json:"invited_vendors"`
	Weights        ScoringWeights `json:"weights"`
	Status         RDOStatus      `json:"status"`
	MetadataSchema MetadataSchema `json:"metadata_schema,omitempty"`
	Award          *AwardMetadata `json:"award,omitempty"`
	CancelReason   string         `json:"cancel_reason,omitempty"`
}

// Line returns the RDO line with the given id.
func (r RDO) Line(id string) (RDOLine, bool) {
	for _, line := range r.Lines {
		if line.ID == id {
			return line, true
		}
	}
	return RDOLine{}, false
}

// IsInvited reports whether vendorID was invited to bid.
func (r RDO) IsInvited(vendorID string) bool {
	for _, v := range r.InvitedVendors {
		if v == vendorID {
			return true
		}
	}
	return false
}

// weightTolerance bounds float drift when checking that weights sum to 1.
const weightTolerance = 1e-6

// ScoringWeights configures how sub-scores combine. Price, Time and Quality
// must sum to 1; custom dimensions are added on top and the whole set is
// renormalized.
type ScoringWeights struct {
	Price   float64            `json:"price" yaml:"price"`
	Time    float64            `json:"time" yaml:"time"`
	Quality float64            `json:"quality" yaml:"quality"`
	Custom  map[string]float64 `json:"custom,omitempty" yaml:"custom,omitempty"`
}

// Validate checks weights against the schema declaring custom dimensions.
func (w ScoringWeights) Validate(schema MetadataSchema) error {
	for name, v := range map[string]float64{"price": w.Price, "time": w.Time, "quality": w.Quality} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return ValidationError{Field: "weights." + name, Message: "must be a finite non-negative number"}
		}
	}
	base := w.Price + w.Time + w.Quality
	if math.Abs(base-1) > weightTolerance {
		return ValidationError{Field: "weights", Message: fmt.Sprintf("price+time+quality must sum to 1, got %.6f", base)}
	}
	for _, key := range w.customKeys() {
		v := w.Custom[key]
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return ValidationError{Field: "weights.custom." + key, Message: "must be a finite non-negative number"}
		}
		spec, ok := schema[key]
		if !ok || spec.Kind != FieldNumber {
			return ValidationError{Field: "weights.custom." + key, Message: "custom dimension must be a declared number field"}
		}
	}
	return nil
}

// Normalized returns weights rescaled so that every component sums to 1.
func (w ScoringWeights) Normalized() ScoringWeights {
	total := w.Price + w.Time + w.Quality
	for _, v := range w.Custom {
		total += v
	}
	if total == 0 {
		return w
	}
	out := ScoringWeights{Price: w.Price / total, Time: w.Time / total, Quality: w.Quality / total}
	if len(w.Custom) > 0 {
		out.Custom = make(map[string]float64, len(w.Custom))
		for k, v := range w.Custom {
			out.Custom[k] = v / total
		}
	}
	return out
}

// CustomKeys returns custom dimension names in stable order.
func (w ScoringWeights) CustomKeys() []string { return w.customKeys() }

func (w ScoringWeights) customKeys() []string {
	keys := make([]string, 0, len(w.Custom))
	for k := range w.Custom {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Package bpsync previews and applies SAL-driven cost deltas to a project's
// business plan.
package bpsync

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"procurecore/pkg/domain"
)

// Impact thresholds in margin percentage points.
const (
	MediumImpactThreshold = 1.0
	HighImpactThreshold   = 5.0
)

// LineState is the current consumption of one awarded contract line.
type LineState struct {
	Line        domain.ContractLine
	BundleID    string
	Consumed    decimal.Decimal
	LastUpdated time.Time
}

// Input gathers everything a preview reads.
type Input struct {
	Project  domain.Project
	Snapshot domain.SyncSnapshot
	Lines    []LineState
}

// Engine computes sync previews.
type Engine struct {
	model FinancialModel
}

// NewEngine returns an engine backed by model, or DCFModel when nil.
func NewEngine(model FinancialModel) *Engine {
	if model == nil {
		model = DCFModel{}
	}
	return &Engine{model: model}
}

// Metrics evaluates the project's current plan.
func (e *Engine) Metrics(project domain.Project) (domain.Metrics, error) {
	return e.model.ComputeMetrics(project.Revenue, project.TotalCost(), project.Timing)
}

// Preview computes the SyncResult for in without mutating anything. Equal
// inputs always produce an equal result, including its ID.
func (e *Engine) Preview(in Input) (domain.SyncResult, error) {
	if in.Project.ID == "" {
		return domain.SyncResult{}, domain.ValidationError{Field: "project_id", Message: "required"}
	}
	lines := append([]LineState(nil), in.Lines...)
	sort.Slice(lines, func(i, j int) bool { return lines[i].Line.ID < lines[j].Line.ID })

	res := domain.SyncResult{
		ProjectID:         in.Project.ID,
		PlanVersion:       in.Project.Version,
		CostDelta:         decimal.Zero,
		Buckets:           make(map[string]decimal.Decimal, len(in.Project.CostBuckets)),
		PreviousTotalCost: in.Project.TotalCost(),
	}
	for k, v := range in.Project.CostBuckets {
		res.Buckets[k] = v
	}
	for _, ls := range lines {
		if ls.LastUpdated.After(res.AsOf) {
			res.AsOf = ls.LastUpdated
		}
		snap := in.Snapshot.Lines[ls.Line.ID]
		if ls.Consumed.Equal(snap.LastConsumed) {
			continue
		}
		bucket := ls.Line.CostBucket
		if bucket == "" {
			bucket = domain.DefaultCostBucket
		}
		lineDelta := ls.Consumed.Sub(ls.Line.ContractedValue)
		increment := lineDelta.Sub(snap.AppliedDelta)
		res.Lines = append(res.Lines, domain.LineDelta{
			ContractLineID:   ls.Line.ID,
			BundleID:         ls.BundleID,
			CostBucket:       bucket,
			ContractedValue:  ls.Line.ContractedValue,
			PreviousConsumed: snap.LastConsumed,
			ConsumedToDate:   ls.Consumed,
			LineDelta:        lineDelta,
			Increment:        increment,
		})
		res.CostDelta = res.CostDelta.Add(increment)
		res.Buckets[bucket] = res.Buckets[bucket].Add(increment)
	}
	res.NewTotalCost = res.PreviousTotalCost.Add(res.CostDelta)

	before, err := e.model.ComputeMetrics(in.Project.Revenue, res.PreviousTotalCost, in.Project.Timing)
	if err != nil {
		return domain.SyncResult{}, fmt.Errorf("compute baseline metrics: %w", err)
	}
	after, err := e.model.ComputeMetrics(in.Project.Revenue, res.NewTotalCost, in.Project.Timing)
	if err != nil {
		return domain.SyncResult{}, fmt.Errorf("compute updated metrics: %w", err)
	}
	res.Before = before
	res.After = after
	res.MarginDelta = math.Round((after.Margin-before.Margin)*100) / 100
	res.NPVDelta = after.NPV.Sub(before.NPV)
	res.Impact = Classify(res.MarginDelta)
	res.Recommendations = recommend(res)
	res.ID = digest(in, res)
	return res, nil
}

// Classify maps an absolute margin movement to an impact level.
func Classify(marginDelta float64) domain.Impact {
	d := math.Abs(marginDelta)
	switch {
	case d < MediumImpactThreshold:
		return domain.ImpactLow
	case d <= HighImpactThreshold:
		return domain.ImpactMedium
	default:
		return domain.ImpactHigh
	}
}

// Apply folds a previewed result into the project and snapshot. Callers must
// hold the project's guard and have re-validated the result ID.
func Apply(res domain.SyncResult, project domain.Project, snapshot domain.SyncSnapshot, now time.Time) (domain.Project, domain.SyncSnapshot, domain.CommittedDiff) {
	diff := domain.CommittedDiff{
		PreviousBuckets: cloneBuckets(project.CostBuckets),
		NewBuckets:      cloneBuckets(res.Buckets),
	}
	committedAt := now.UTC()
	project.CostBuckets = cloneBuckets(res.Buckets)
	project.Metrics = res.After
	project.LastSync = &committedAt

	lines := make(map[string]domain.LineSnapshot, len(snapshot.Lines)+len(res.Lines))
	for k, v := range snapshot.Lines {
		lines[k] = v
	}
	for _, ld := range res.Lines {
		lines[ld.ContractLineID] = domain.LineSnapshot{LastConsumed: ld.ConsumedToDate, AppliedDelta: ld.LineDelta}
	}
	snapshot.ID = project.ID
	snapshot.ProjectID = project.ID
	snapshot.Lines = lines

	res.CommittedAt = &committedAt
	diff.Result = res
	return project, snapshot, diff
}

func recommend(res domain.SyncResult) []string {
	var out []string
	for _, ld := range res.Lines {
		if ld.LineDelta.IsPositive() {
			out = append(out, fmt.Sprintf("contract line %s is %s over budget: review the variation with the vendor", ld.ContractLineID, ld.LineDelta.StringFixed(domain.MoneyPlaces)))
		}
	}
	switch res.Impact {
	case domain.ImpactHigh:
		out = append(out, fmt.Sprintf("margin moves by %.2f points: re-approve the business plan before committing", res.MarginDelta))
	case domain.ImpactMedium:
		out = append(out, "margin movement is material: monitor remaining procurement closely")
	}
	if res.After.NPV.IsNegative() && !res.Before.NPV.IsNegative() {
		out = append(out, "NPV turns negative after this sync")
	}
	return out
}

func digest(in Input, res domain.SyncResult) string {
	h := sha256.New()
	fmt.Fprintf(h, "project=%s|version=%d|revenue=%s|rate=%v|weights=%v\n",
		in.Project.ID, in.Project.Version, in.Project.Revenue.String(), in.Project.Timing.DiscountRate, in.Project.Timing.PeriodWeights)
	for _, name := range in.Project.BucketNames() {
		fmt.Fprintf(h, "bucket=%s:%s\n", name, in.Project.CostBuckets[name].String())
	}
	for _, ld := range res.Lines {
		fmt.Fprintf(h, "line=%s:%s:%s:%s\n", ld.ContractLineID, ld.ConsumedToDate.String(), ld.PreviousConsumed.String(), ld.Increment.String())
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

func cloneBuckets(in map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

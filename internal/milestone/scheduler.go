// Package milestone derives cent-accurate payment schedules from bundle totals
// and drives the sequential milestone state machine.
package milestone

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"procurecore/pkg/domain"
)

var (
	hundred          = decimal.NewFromInt(100)
	percentTolerance = decimal.RequireFromString("0.01")
)

// ValidateTemplates checks names and that percentages sum to 100 within ±0.01.
func ValidateTemplates(templates []domain.MilestoneTemplate) error {
	if len(templates) == 0 {
		return domain.ValidationError{Field: "milestones", Message: "at least one milestone template is required"}
	}
	sum := decimal.Zero
	for i, tpl := range templates {
		if strings.TrimSpace(tpl.Name) == "" {
			return domain.ValidationError{Field: fmt.Sprintf("milestones[%d].name", i), Message: "required"}
		}
		if !tpl.Percentage.IsPositive() {
			return domain.ValidationError{Field: fmt.Sprintf("milestones[%d].percentage", i), Message: "must be positive"}
		}
		sum = sum.Add(tpl.Percentage)
	}
	if sum.Sub(hundred).Abs().GreaterThan(percentTolerance) {
		return domain.ValidationError{Field: "milestones", Message: fmt.Sprintf("percentages must sum to 100, got %s", sum.String())}
	}
	return nil
}

// Schedule splits total across the templates. Every milestone but the last is
// rounded to the cent; the last absorbs the remainder so the amounts sum to
// total exactly.
func Schedule(total decimal.Decimal, templates []domain.MilestoneTemplate, now time.Time) ([]domain.Milestone, error) {
	if err := ValidateTemplates(templates); err != nil {
		return nil, err
	}
	if total.IsNegative() {
		return nil, domain.ValidationError{Field: "total", Message: "must not be negative"}
	}
	total = domain.Money(total)
	out := make([]domain.Milestone, len(templates))
	allocated := decimal.Zero
	last := len(templates) - 1
	for i, tpl := range templates {
		amount := domain.Money(total.Mul(tpl.Percentage).Div(hundred))
		if i == last {
			amount = total.Sub(allocated)
		}
		allocated = allocated.Add(amount)
		out[i] = domain.Milestone{
			Index:       i,
			Name:        tpl.Name,
			Description: tpl.Description,
			Percentage:  tpl.Percentage,
			Amount:      amount,
			Status:      domain.MilestonePending,
			UpdatedAt:   now,
		}
	}
	if out[last].Amount.IsNegative() {
		return nil, domain.DataIntegrityError{Entity: domain.EntityContractBundle, Detail: fmt.Sprintf("final milestone absorbs a negative remainder %s", out[last].Amount)}
	}
	return out, nil
}

// Reconcile verifies that a bundle's schedule matches its total exactly.
func Reconcile(bundle domain.ContractBundle) error {
	if len(bundle.Milestones) == 0 {
		return domain.DataIntegrityError{Entity: domain.EntityContractBundle, ID: bundle.ID, Detail: "bundle has no milestones"}
	}
	pct := decimal.Zero
	for _, m := range bundle.Milestones {
		pct = pct.Add(m.Percentage)
	}
	if pct.Sub(hundred).Abs().GreaterThan(percentTolerance) {
		return domain.DataIntegrityError{Entity: domain.EntityContractBundle, ID: bundle.ID, Detail: fmt.Sprintf("milestone percentages sum to %s", pct)}
	}
	if sum := bundle.MilestonesTotal(); !sum.Equal(bundle.Total) {
		return domain.DataIntegrityError{Entity: domain.EntityContractBundle, ID: bundle.ID, Detail: fmt.Sprintf("milestones sum to %s, bundle total is %s", sum.StringFixed(2), bundle.Total.StringFixed(2))}
	}
	return nil
}

// Transition moves milestone index to the requested state and returns the
// updated schedule. The input slice is not modified.
func Transition(schedule []domain.Milestone, index int, to domain.MilestoneStatus, reason string, now time.Time) ([]domain.Milestone, error) {
	if index < 0 || index >= len(schedule) {
		return nil, domain.ValidationError{Field: "milestone", Message: fmt.Sprintf("index %d out of range", index)}
	}
	out := append([]domain.Milestone(nil), schedule...)
	current := out[index]
	subject := fmt.Sprintf("milestone %d (%s)", index, current.Name)

	switch to {
	case domain.MilestonePayable:
		if current.Status != domain.MilestonePending {
			return nil, domain.GateError{Gate: domain.GateMilestoneSequence, Subject: subject, Reason: fmt.Sprintf("cannot become payable from %s", current.Status)}
		}
		if index > 0 && !out[index-1].Status.Settled() {
			return nil, domain.GateError{Gate: domain.GateMilestoneSequence, Subject: subject, Reason: fmt.Sprintf("predecessor %q is %s", out[index-1].Name, out[index-1].Status)}
		}
	case domain.MilestonePaid:
		if current.Status != domain.MilestonePayable {
			return nil, domain.GateError{Gate: domain.GateMilestoneSequence, Subject: subject, Reason: fmt.Sprintf("only payable milestones can be paid, found %s", current.Status)}
		}
		paidAt := now
		current.PaidAt = &paidAt
	case domain.MilestoneSkipped:
		if strings.TrimSpace(reason) == "" {
			return nil, domain.ValidationError{Field: "reason", Message: "skipping a milestone requires a reason"}
		}
		if current.Status != domain.MilestonePending {
			return nil, domain.GateError{Gate: domain.GateMilestoneSequence, Subject: subject, Reason: fmt.Sprintf("only pending milestones can be skipped, found %s", current.Status)}
		}
		current.SkipReason = reason
	default:
		return nil, domain.ValidationError{Field: "status", Message: fmt.Sprintf("unsupported target status %q", to)}
	}
	current.Status = to
	current.UpdatedAt = now
	out[index] = current
	return out, nil
}

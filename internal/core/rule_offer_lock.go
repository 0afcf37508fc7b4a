package core

import (
	"context"
	"reflect"

	"procurecore/pkg/domain"
)

// OfferLockRule blocks edits to the priced content of a locked offer. Scoring,
// ranking, exclusion and status bookkeeping stay writable.
func OfferLockRule() domain.Rule {
	return offerLockRule{}
}

type offerLockRule struct{}

func (offerLockRule) Name() string { return RuleOfferLock }

func (offerLockRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, change := range changes {
		if change.Entity != domain.EntityOffer || change.Action != domain.ActionUpdate {
			continue
		}
		before, okBefore := domain.Decode[domain.Offer](change.Before)
		after, okAfter := domain.Decode[domain.Offer](change.After)
		if !okBefore || !okAfter || !before.Locked {
			continue
		}
		if !after.Locked || pricedContentChanged(before, after) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     RuleOfferLock,
				Severity: domain.SeverityBlock,
				Message:  "offer is locked after scoring; submit a new revision instead",
				Entity:   domain.EntityOffer,
				EntityID: after.ID,
			})
		}
	}
	return res, nil
}

func pricedContentChanged(before, after domain.Offer) bool {
	if !before.TotalPrice.Equal(after.TotalPrice) || before.TotalTime != after.TotalTime {
		return true
	}
	if len(before.Lines) != len(after.Lines) {
		return true
	}
	for i := range before.Lines {
		b, a := before.Lines[i], after.Lines[i]
		if b.RDOLineID != a.RDOLineID || !b.UnitPrice.Equal(a.UnitPrice) || !b.Quantity.Equal(a.Quantity) || b.Excluded != a.Excluded || b.DeliveryDays != a.DeliveryDays {
			return true
		}
	}
	if (before.QualityScore == nil) != (after.QualityScore == nil) {
		return true
	}
	if before.QualityScore != nil && *before.QualityScore != *after.QualityScore {
		return true
	}
	return !reflect.DeepEqual(before.AdditionalInfo, after.AdditionalInfo)
}

package core

import (
	"context"
	"fmt"

	"procurecore/pkg/domain"
)

// RDOStatusTransitionRule blocks RDO status changes that skip or reverse the
// draft -> open -> evaluating -> awarded|cancelled lifecycle.
func RDOStatusTransitionRule() domain.Rule {
	return rdoStatusTransitionRule{}
}

type rdoStatusTransitionRule struct{}

func (rdoStatusTransitionRule) Name() string { return RuleRDOStatusTransition }

func (r rdoStatusTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, change := range changes {
		if change.Entity != domain.EntityRDO {
			continue
		}
		after, ok := domain.Decode[domain.RDO](change.After)
		if !ok {
			continue
		}
		if !after.Status.Valid() {
			res.Violations = append(res.Violations, r.violation(after.ID, fmt.Sprintf("unknown status %q", after.Status)))
			continue
		}
		if change.Action == domain.ActionCreate {
			if after.Status != domain.RDOStatusDraft {
				res.Violations = append(res.Violations, r.violation(after.ID, fmt.Sprintf("new RDOs start as draft, got %s", after.Status)))
			}
			continue
		}
		before, ok := domain.Decode[domain.RDO](change.Before)
		if !ok {
			continue
		}
		if !before.Status.CanTransition(after.Status) {
			res.Violations = append(res.Violations, r.violation(after.ID, fmt.Sprintf("illegal transition %s -> %s", before.Status, after.Status)))
		}
	}
	return res, nil
}

func (rdoStatusTransitionRule) violation(id, msg string) domain.Violation {
	return domain.Violation{
		Rule:     RuleRDOStatusTransition,
		Severity: domain.SeverityBlock,
		Message:  msg,
		Entity:   domain.EntityRDO,
		EntityID: id,
	}
}

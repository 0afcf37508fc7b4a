package core

import (
	"context"
	"fmt"

	"procurecore/pkg/domain"
)

// MilestoneSequenceRule blocks bundle updates that leave a milestone payable
// or paid while its predecessor is still unsettled, or that reopen a paid
// milestone.
func MilestoneSequenceRule() domain.Rule {
	return milestoneSequenceRule{}
}

type milestoneSequenceRule struct{}

func (milestoneSequenceRule) Name() string { return RuleMilestoneSequence }

func (milestoneSequenceRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, change := range changes {
		if change.Entity != domain.EntityContractBundle || change.Action != domain.ActionUpdate {
			continue
		}
		before, okBefore := domain.Decode[domain.ContractBundle](change.Before)
		after, okAfter := domain.Decode[domain.ContractBundle](change.After)
		if !okBefore || !okAfter {
			continue
		}
		for i, m := range after.Milestones {
			var problem string
			switch {
			case i < len(before.Milestones) && before.Milestones[i].Status.Settled() && m.Status != before.Milestones[i].Status:
				problem = fmt.Sprintf("milestone %d was %s and cannot change", i, before.Milestones[i].Status)
			case (m.Status == domain.MilestonePayable || m.Status == domain.MilestonePaid) && i > 0 && !after.Milestones[i-1].Status.Settled():
				problem = fmt.Sprintf("milestone %d is %s before milestone %d is settled", i, m.Status, i-1)
			default:
				continue
			}
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     RuleMilestoneSequence,
				Severity: domain.SeverityBlock,
				Message:  problem,
				Entity:   domain.EntityContractBundle,
				EntityID: after.ID,
			})
		}
	}
	return res, nil
}

package core

import (
	"context"
	"fmt"

	"procurecore/pkg/domain"
)

// BundleIntegrityRule blocks any bundle write whose total disagrees with its
// lines or whose milestone amounts do not add up to the total.
func BundleIntegrityRule() domain.Rule {
	return bundleIntegrityRule{}
}

type bundleIntegrityRule struct{}

func (bundleIntegrityRule) Name() string { return RuleBundleIntegrity }

func (bundleIntegrityRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, change := range changes {
		if change.Entity != domain.EntityContractBundle {
			continue
		}
		bundle, ok := domain.Decode[domain.ContractBundle](change.After)
		if !ok {
			continue
		}
		var msg string
		switch {
		case !bundle.LinesTotal().Equal(bundle.Total):
			msg = fmt.Sprintf("total %s differs from lines %s", bundle.Total.StringFixed(domain.MoneyPlaces), bundle.LinesTotal().StringFixed(domain.MoneyPlaces))
		case len(bundle.Milestones) > 0 && !bundle.MilestonesTotal().Equal(bundle.Total):
			msg = fmt.Sprintf("milestones sum to %s, total is %s", bundle.MilestonesTotal().StringFixed(domain.MoneyPlaces), bundle.Total.StringFixed(domain.MoneyPlaces))
		default:
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     RuleBundleIntegrity,
			Severity: domain.SeverityBlock,
			Message:  msg,
			Entity:   domain.EntityContractBundle,
			EntityID: bundle.ID,
		})
	}
	return res, nil
}

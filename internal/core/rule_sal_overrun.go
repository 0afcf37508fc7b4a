package core

import (
	"context"
	"fmt"

	"procurecore/pkg/domain"
)

// SALOverrunRule raises a warning for every appended SAL entry that leaves
// its contract line above the contracted value. It never blocks.
func SALOverrunRule() domain.Rule {
	return salOverrunRule{}
}

type salOverrunRule struct{}

func (salOverrunRule) Name() string { return RuleSALOverrun }

func (salOverrunRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, change := range changes {
		if change.Entity != domain.EntitySALEntry {
			continue
		}
		entry, ok := domain.Decode[domain.SALEntry](change.After)
		if !ok || !entry.IsOverrun {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     RuleSALOverrun,
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("contract line %s overrun by %s", entry.ContractLineID, entry.Delta.StringFixed(domain.MoneyPlaces)),
			Entity:   domain.EntityContractLine,
			EntityID: entry.ContractLineID,
		})
	}
	return res, nil
}

package core

import (
	"context"
	"fmt"

	"procurecore/internal/award"
	"procurecore/internal/milestone"
	"procurecore/pkg/domain"
)

// AwardRequest maps RDO lines to winning vendors. Groups optionally split a
// vendor's lines into separate bundles; Templates override the default
// payment schedule.
type AwardRequest struct {
	RDOID           string                     `json:"rdo_id"`
	ExpectedVersion int64                      `json:"expected_version,omitempty"`
	Decisions       map[string]string          `json:"decisions"`
	Groups          [][]string                 `json:"groups,omitempty"`
	Templates       []domain.MilestoneTemplate `json:"milestones,omitempty"`
}

// AwardOutcome is the committed result of an award pass.
type AwardOutcome struct {
	RDO          domain.RDO              `json:"rdo"`
	Bundles      []domain.ContractBundle `json:"bundles"`
	CoverageGaps []string                `json:"coverage_gaps,omitempty"`
}

// AwardLines allocates lines to vendors, persists one contract bundle per
// vendor group with its milestone schedule, and marks the RDO awarded. The
// whole pass is atomic: any rejected decision leaves nothing behind.
func (s *Service) AwardLines(ctx context.Context, req AwardRequest) (AwardOutcome, Result, error) {
	var outcome AwardOutcome
	res, err := s.run(ctx, "award_lines", func() subject { return subject{id: req.RDOID, payload: outcome} }, func(tx Transaction) error {
		rdo, err := s.lookupRDO(tx, req.RDOID, req.ExpectedVersion)
		if err != nil {
			return err
		}
		if rdo.Status != domain.RDOStatusEvaluating {
			return domain.GateError{Gate: domain.GateRDOStatus, Subject: "rdo " + rdo.ID, Reason: fmt.Sprintf("award requires evaluating, rdo is %s", rdo.Status)}
		}
		if _, ok := tx.FindComparison(rdo.ID); !ok {
			return domain.GateError{Gate: domain.GateRDOStatus, Subject: "rdo " + rdo.ID, Reason: "compute the comparison before awarding"}
		}
		offers := tx.ListOffers(rdo.ID)
		prechecks := make(map[string]domain.PreCheckResult)
		for _, vendorID := range req.Decisions {
			if pc, found := tx.FindPreCheck(vendorID); found {
				prechecks[vendorID] = pc
			}
		}
		templates := req.Templates
		if len(templates) == 0 {
			templates = s.templates
		}
		plan, err := s.allocator.Allocate(award.Request{
			RDO:       rdo,
			Offers:    offers,
			Decisions: req.Decisions,
			Groups:    req.Groups,
			PreChecks: prechecks,
			Templates: templates,
			Now:       tx.Now(),
		})
		if err != nil {
			return err
		}

		bundleIDs := make([]string, 0, len(plan.Bundles))
		for _, planned := range plan.Bundles {
			bundle, err := tx.CreateBundle(planned)
			if err != nil {
				return err
			}
			if err := milestone.Reconcile(bundle); err != nil {
				return err
			}
			outcome.Bundles = append(outcome.Bundles, bundle)
			bundleIDs = append(bundleIDs, bundle.ID)
		}
		outcome.CoverageGaps = plan.CoverageGaps
		outcome.RDO, err = tx.UpdateRDO(rdo.ID, func(r *domain.RDO) error {
			r.Status = domain.RDOStatusAwarded
			r.Award = &domain.AwardMetadata{
				AwardedAt:    tx.Now(),
				BundleIDs:    bundleIDs,
				CoverageGaps: plan.CoverageGaps,
			}
			return nil
		})
		return err
	})
	if err != nil {
		if award.HasGateFailure(err) {
			s.logger.Warn("award blocked by gate", "rdo_id", req.RDOID, "error", err)
		}
		return AwardOutcome{}, res, err
	}
	if len(outcome.CoverageGaps) > 0 {
		s.logger.Info("award leaves lines uncovered", "rdo_id", req.RDOID, "lines", outcome.CoverageGaps)
	}
	s.publish(ctx, EventAwardCreated, req.RDOID, outcome)
	return outcome, res, nil
}

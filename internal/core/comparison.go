package core

import (
	"context"
	"fmt"

	"procurecore/internal/scoring"
	"procurecore/pkg/domain"
)

// ComputeComparison scores every eligible offer of an RDO under evaluation,
// ranks them, and locks the scored offers. Recomputing replaces the stored
// comparison; locked offers keep their priced content.
func (s *Service) ComputeComparison(ctx context.Context, rdoID string) (domain.Comparison, Result, error) {
	var (
		cmp domain.Comparison
		rdo domain.RDO
	)
	res, err := s.run(ctx, "compute_comparison", func() subject { return subject{id: rdoID, payload: cmp} }, func(tx Transaction) error {
		var ok bool
		rdo, ok = tx.FindRDO(rdoID)
		if !ok {
			return ErrNotFound{Entity: domain.EntityRDO, ID: rdoID}
		}
		if rdo.Status != domain.RDOStatusEvaluating {
			return domain.GateError{Gate: domain.GateRDOStatus, Subject: "rdo " + rdoID, Reason: fmt.Sprintf("comparison requires evaluating, rdo is %s", rdo.Status)}
		}
		offers := tx.ListOffers(rdoID)
		prechecks := make(map[string]domain.PreCheckResult)
		for _, o := range offers {
			if pc, found := tx.FindPreCheck(o.VendorID); found {
				prechecks[o.VendorID] = pc
			}
		}
		out, err := s.scorer.Score(scoring.Input{
			Offers:    offers,
			Weights:   rdo.Weights,
			Schema:    rdo.MetadataSchema,
			PreChecks: prechecks,
		})
		if err != nil {
			return err
		}
		built := scoring.BuildComparison(rdoID, out, tx.Now())
		for _, ranked := range scoring.Rank(out.Scored) {
			ranked := ranked
			if _, err := tx.UpdateOffer(ranked.ID, func(o *domain.Offer) error {
				o.Scoring = ranked.Scoring
				o.Ranking = ranked.Ranking
				o.PreCheckStatus = ranked.PreCheckStatus
				o.Locked = true
				return nil
			}); err != nil {
				return err
			}
		}
		cmp, err = tx.PutComparison(built)
		return err
	})
	if err != nil {
		return domain.Comparison{}, res, err
	}
	if s.archiver != nil {
		if key, archiveErr := s.archiver.ArchiveComparison(ctx, rdo, cmp); archiveErr != nil {
			s.logger.Warn("comparison archive failed", "rdo_id", rdoID, "error", archiveErr)
		} else {
			s.logger.Info("comparison archived", "rdo_id", rdoID, "key", key)
		}
	}
	s.publish(ctx, EventComparisonComputed, rdoID, cmp)
	return cmp, res, nil
}

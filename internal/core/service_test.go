package core

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"procurecore/pkg/domain"
)

func TestComparisonRanksCheaperFasterVendorFirst(t *testing.T) {
	svc := newTestService(t)
	fx := evaluatingFive(t, svc)

	if !fx.offerA.TotalPrice.Equal(dec("430")) || !fx.offerB.TotalPrice.Equal(dec("460")) {
		t.Fatalf("unexpected totals A=%s B=%s", fx.offerA.TotalPrice, fx.offerB.TotalPrice)
	}
	cmp, _, err := svc.ComputeComparison(context.Background(), fx.rdo.ID)
	if err != nil {
		t.Fatalf("compute comparison: %v", err)
	}
	if len(cmp.Ranked) != 2 {
		t.Fatalf("expected 2 ranked offers, got %d", len(cmp.Ranked))
	}
	first, second := cmp.Ranked[0], cmp.Ranked[1]
	if first.VendorID != "vendor-a" || first.Ranking.Rank != 1 {
		t.Fatalf("expected vendor-a ranked 1, got %s rank %d", first.VendorID, first.Ranking.Rank)
	}
	if first.Scoring.WeightedScore <= second.Scoring.WeightedScore {
		t.Fatalf("expected A weighted %.2f > B weighted %.2f", first.Scoring.WeightedScore, second.Scoring.WeightedScore)
	}

	stored, err := svc.Offer(context.Background(), fx.offerA.ID)
	if err != nil {
		t.Fatalf("get offer: %v", err)
	}
	if !stored.Locked || stored.Scoring == nil || stored.Ranking == nil {
		t.Fatalf("expected scored offer to be locked with scoring and ranking: %+v", stored)
	}
	if _, err := svc.Comparison(context.Background(), fx.rdo.ID); err != nil {
		t.Fatalf("stored comparison: %v", err)
	}
}

func TestComparisonRequiresEvaluation(t *testing.T) {
	svc := newTestService(t)
	project := mustProject(t, svc)
	rdo := openRDO(t, svc, project.ID, []string{"1"}, "vendor-a")
	_, _, err := svc.ComputeComparison(context.Background(), rdo.ID)
	if !domain.IsGate(err) {
		t.Fatalf("expected gate error while open, got %v", err)
	}
}

func TestSplitAwardBuildsReconciledBundles(t *testing.T) {
	svc := newTestService(t)
	fx := evaluatingFive(t, svc)
	ctx := context.Background()
	if _, _, err := svc.ComputeComparison(ctx, fx.rdo.ID); err != nil {
		t.Fatalf("compare: %v", err)
	}
	for _, vendor := range []string{"vendor-a", "vendor-b"} {
		if _, _, err := svc.RecordPreCheck(ctx, vendor, passingItems()); err != nil {
			t.Fatalf("precheck %s: %v", vendor, err)
		}
	}

	outcome, _, err := svc.AwardLines(ctx, AwardRequest{
		RDOID: fx.rdo.ID,
		Decisions: map[string]string{
			"l0": "vendor-a", "l1": "vendor-a", "l2": "vendor-a",
			"l3": "vendor-b", "l4": "vendor-b",
		},
	})
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	if len(outcome.Bundles) != 2 {
		t.Fatalf("expected 2 bundles, got %d", len(outcome.Bundles))
	}
	want := map[string]string{"vendor-a": "270", "vendor-b": "230"}
	for _, b := range outcome.Bundles {
		if !b.Total.Equal(dec(want[b.VendorID])) {
			t.Fatalf("bundle %s total %s, want %s", b.VendorID, b.Total, want[b.VendorID])
		}
		if !b.MilestonesTotal().Equal(b.Total) {
			t.Fatalf("bundle %s milestones %s do not reconcile with %s", b.VendorID, b.MilestonesTotal(), b.Total)
		}
		if len(b.Milestones) != len(DefaultMilestoneTemplates) {
			t.Fatalf("expected default schedule, got %d milestones", len(b.Milestones))
		}
	}
	if outcome.RDO.Status != domain.RDOStatusAwarded || outcome.RDO.Award == nil || len(outcome.RDO.Award.BundleIDs) != 2 {
		t.Fatalf("expected awarded rdo with bundle ids, got %+v", outcome.RDO)
	}
	if len(outcome.CoverageGaps) != 0 {
		t.Fatalf("expected full coverage, got gaps %v", outcome.CoverageGaps)
	}
	bundles, err := svc.Bundles(ctx, fx.rdo.ID)
	if err != nil || len(bundles) != 2 {
		t.Fatalf("expected 2 stored bundles, got %d (%v)", len(bundles), err)
	}
}

func TestAwardRejectsVendorWithFailedPreCheck(t *testing.T) {
	svc := newTestService(t)
	fx := evaluatingFive(t, svc)
	ctx := context.Background()
	if _, _, err := svc.ComputeComparison(ctx, fx.rdo.ID); err != nil {
		t.Fatalf("compare: %v", err)
	}
	if _, _, err := svc.RecordPreCheck(ctx, "vendor-a", passingItems()); err != nil {
		t.Fatalf("precheck a: %v", err)
	}
	expired := passingItems()
	past := testNow.AddDate(0, -1, 0)
	expired[0].ExpiryDate = &past
	pc, _, err := svc.RecordPreCheck(ctx, "vendor-b", expired)
	if err != nil {
		t.Fatalf("precheck b: %v", err)
	}
	if pc.Passed || pc.Status != domain.PreCheckFailed {
		t.Fatalf("expected failed pre-check, got %+v", pc)
	}

	_, _, err = svc.AwardLines(ctx, AwardRequest{
		RDOID:     fx.rdo.ID,
		Decisions: map[string]string{"l0": "vendor-a", "l3": "vendor-b"},
	})
	if !domain.IsGate(err) {
		t.Fatalf("expected gate error, got %v", err)
	}
	rdo, err := svc.RDO(ctx, fx.rdo.ID)
	if err != nil {
		t.Fatalf("get rdo: %v", err)
	}
	if rdo.Status != domain.RDOStatusEvaluating {
		t.Fatalf("rejected award must leave rdo evaluating, got %s", rdo.Status)
	}
	if bundles, _ := svc.Bundles(ctx, fx.rdo.ID); len(bundles) != 0 {
		t.Fatalf("rejected award must not persist bundles, got %d", len(bundles))
	}
}

func TestSALOverrunIsFlaggedAndPersisted(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	project := mustProject(t, svc)
	_, line := awardedLine(t, svc, project.ID, "30000")

	first, res, err := svc.RecordSAL(ctx, line.ID, dec("10000"), "foundations")
	if err != nil {
		t.Fatalf("first sal: %v", err)
	}
	if !first.Line.RemainingBudget.Equal(dec("20000")) || first.Line.IsOverrun || first.Warning != nil {
		t.Fatalf("unexpected state after first entry: %+v", first)
	}
	if len(res.Warnings()) != 0 {
		t.Fatalf("expected no rule warnings, got %+v", res.Warnings())
	}

	second, res, err := svc.RecordSAL(ctx, line.ID, dec("25000"), "structure")
	if err != nil {
		t.Fatalf("overrun sal must still succeed: %v", err)
	}
	if !second.Line.RemainingBudget.Equal(dec("-5000")) || !second.Line.IsOverrun || !second.Line.Delta.Equal(dec("5000")) {
		t.Fatalf("unexpected overrun state: %+v", second.Line)
	}
	if second.Warning == nil || !second.Warning.Delta.Equal(dec("5000")) {
		t.Fatalf("expected overrun warning with delta 5000, got %+v", second.Warning)
	}
	if !second.Entry.IsOverrun || !second.Entry.ConsumedToDate.Equal(dec("35000")) {
		t.Fatalf("entry must carry the post-append state: %+v", second.Entry)
	}
	found := false
	for _, w := range res.Warnings() {
		if w.Rule == RuleSALOverrun && w.EntityID == line.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected sal_overrun warning, got %+v", res.Warnings())
	}

	history, err := svc.SALHistory(ctx, line.ID)
	if err != nil || len(history) != 2 {
		t.Fatalf("expected both entries persisted, got %d (%v)", len(history), err)
	}
	ledger, err := svc.LineLedger(ctx, line.ID)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if !ledger.ConsumedToDate.Equal(dec("35000")) || ledger.EntryCount != 2 {
		t.Fatalf("unexpected ledger %+v", ledger)
	}
}

func TestSALRejectsUnknownLineAndBadAmounts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	project := mustProject(t, svc)
	_, line := awardedLine(t, svc, project.ID, "1000")

	var notFound ErrNotFound
	if _, _, err := svc.RecordSAL(ctx, "missing", dec("10"), ""); !errors.As(err, &notFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	for _, amount := range []string{"0", "-5", "1.005"} {
		if _, _, err := svc.RecordSAL(ctx, line.ID, dec(amount), ""); !domain.IsValidation(err) {
			t.Fatalf("amount %s: expected validation error, got %v", amount, err)
		}
	}
}

func TestCorrectSALOffsetsEarlierEntry(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	project := mustProject(t, svc)
	bundle, line := awardedLine(t, svc, project.ID, "1000")

	entry, _, err := svc.RecordSAL(ctx, line.ID, dec("400"), "delivery")
	if err != nil {
		t.Fatalf("sal: %v", err)
	}
	if _, _, err := svc.CorrectSAL(ctx, line.ID, entry.Entry.ID, dec("500"), "double counted"); !domain.IsValidation(err) {
		t.Fatalf("expected over-correction to be rejected, got %v", err)
	}
	corrected, _, err := svc.CorrectSAL(ctx, line.ID, entry.Entry.ID, dec("150"), "double counted")
	if err != nil {
		t.Fatalf("correct: %v", err)
	}
	if corrected.Entry.Kind != domain.SALCorrection || !corrected.Line.ConsumedToDate.Equal(dec("250")) {
		t.Fatalf("unexpected correction %+v", corrected)
	}
	settlement, err := svc.BundleSettlement(ctx, bundle.ID)
	if err != nil {
		t.Fatalf("settlement: %v", err)
	}
	if !settlement.Consuntivo.Equal(dec("250")) || !settlement.DeltaVsBudget.Equal(dec("-750")) {
		t.Fatalf("unexpected settlement %+v", settlement)
	}
}

func TestMilestonesAdvanceSequentially(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	project := mustProject(t, svc)
	bundle, _ := awardedLine(t, svc, project.ID, "1000")

	if _, _, err := svc.MarkMilestonePayable(ctx, bundle.ID, 1, 0); !domain.IsGate(err) {
		t.Fatalf("expected gate error for out-of-order milestone, got %v", err)
	}
	b, _, err := svc.MarkMilestonePayable(ctx, bundle.ID, 0, bundle.Version)
	if err != nil {
		t.Fatalf("payable: %v", err)
	}
	if _, _, err := svc.MarkMilestonePaid(ctx, bundle.ID, 0, bundle.Version); !domain.IsConflict(err) {
		t.Fatalf("expected stale version conflict, got %v", err)
	}
	b, _, err = svc.MarkMilestonePaid(ctx, bundle.ID, 0, b.Version)
	if err != nil {
		t.Fatalf("paid: %v", err)
	}
	if b.Milestones[0].PaidAt == nil {
		t.Fatalf("expected paid timestamp")
	}
	if _, _, err := svc.SkipMilestone(ctx, bundle.ID, 1, 0, ""); !domain.IsValidation(err) {
		t.Fatalf("skip without reason must be rejected, got %v", err)
	}
	b, _, err = svc.SkipMilestone(ctx, bundle.ID, 1, 0, "waived by client")
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if _, _, err := svc.MarkMilestonePayable(ctx, bundle.ID, 2, b.Version); err != nil {
		t.Fatalf("final milestone should follow a skipped predecessor: %v", err)
	}
	settlement, err := svc.BundleSettlement(ctx, bundle.ID)
	if err != nil {
		t.Fatalf("settlement: %v", err)
	}
	if settlement.MilestonesPaid != 1 || settlement.MilestoneCount != 3 {
		t.Fatalf("unexpected milestone counts %+v", settlement)
	}
}

func TestBusinessPlanSyncPreviewAndCommit(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	project := mustProject(t, svc)
	_, line := awardedLine(t, svc, project.ID, "30000")
	if _, _, err := svc.RecordSAL(ctx, line.ID, dec("35000"), "final account"); err != nil {
		t.Fatalf("sal: %v", err)
	}

	first, err := svc.PreviewBusinessPlanSync(ctx, project.ID)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	second, err := svc.PreviewBusinessPlanSync(ctx, project.ID)
	if err != nil {
		t.Fatalf("second preview: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("previews differ:\n%+v\n%+v", first, second)
	}
	if len(first.Lines) != 1 || !first.CostDelta.Equal(dec("5000")) {
		t.Fatalf("expected one line with a 5000 increment, got %+v", first)
	}
	if current, _ := svc.Project(ctx, project.ID); !current.CostBuckets[domain.DefaultCostBucket].Equal(dec("60000")) {
		t.Fatalf("preview must not mutate the plan, bucket is %s", current.CostBuckets[domain.DefaultCostBucket])
	}

	diff, _, err := svc.CommitBusinessPlanSync(ctx, project.ID, first.ID)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !diff.NewBuckets[domain.DefaultCostBucket].Equal(dec("65000")) || !diff.PreviousBuckets[domain.DefaultCostBucket].Equal(dec("60000")) {
		t.Fatalf("unexpected buckets %+v -> %+v", diff.PreviousBuckets, diff.NewBuckets)
	}
	updated, err := svc.Project(ctx, project.ID)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if updated.LastSync == nil || updated.Version != diff.PlanVersion {
		t.Fatalf("expected synced project at plan version %d, got %+v", diff.PlanVersion, updated)
	}
	if updated.Metrics.Margin >= project.Metrics.Margin {
		t.Fatalf("expected margin to drop after overrun, before %.2f after %.2f", project.Metrics.Margin, updated.Metrics.Margin)
	}

	again, err := svc.PreviewBusinessPlanSync(ctx, project.ID)
	if err != nil {
		t.Fatalf("preview after commit: %v", err)
	}
	if !again.Empty() || !again.CostDelta.IsZero() {
		t.Fatalf("committed deltas must not be applied twice, got %+v", again)
	}
	if _, _, err := svc.CommitBusinessPlanSync(ctx, project.ID, again.ID); !domain.IsValidation(err) {
		t.Fatalf("expected empty commit to be rejected, got %v", err)
	}
	history, err := svc.SyncHistory(ctx, project.ID)
	if err != nil || len(history) != 1 || history[0].ID != first.ID {
		t.Fatalf("expected one committed result, got %+v (%v)", history, err)
	}
}

func TestCommitRejectsStalePreview(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	project := mustProject(t, svc)
	_, line := awardedLine(t, svc, project.ID, "1000")
	if _, _, err := svc.RecordSAL(ctx, line.ID, dec("1200"), ""); err != nil {
		t.Fatalf("sal: %v", err)
	}
	preview, err := svc.PreviewBusinessPlanSync(ctx, project.ID)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if _, _, err := svc.RecordSAL(ctx, line.ID, dec("50"), ""); err != nil {
		t.Fatalf("sal: %v", err)
	}
	if _, _, err := svc.CommitBusinessPlanSync(ctx, project.ID, preview.ID); !domain.IsConflict(err) {
		t.Fatalf("expected conflict for stale preview, got %v", err)
	}
	current, _ := svc.Project(ctx, project.ID)
	if current.LastSync != nil {
		t.Fatalf("stale commit must not touch the plan")
	}
}

func TestCommitRejectsConcurrentSync(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	project := mustProject(t, svc)
	release, ok := svc.guard.TryLock(project.ID)
	if !ok {
		t.Fatal("expected to acquire the project lock")
	}
	defer release()
	_, _, err := svc.CommitBusinessPlanSync(ctx, project.ID, "anything")
	var conflict domain.ConflictError
	if !errors.As(err, &conflict) || conflict.Reason != "sync already in progress" {
		t.Fatalf("expected in-progress conflict, got %v", err)
	}
}

func TestSubmitOfferGates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	project := mustProject(t, svc)

	draft, _, err := svc.CreateRDO(ctx, domain.RDO{
		ProjectID: project.ID, Title: "Draft", InvitedVendors: []string{"vendor-a"},
		Lines: []domain.RDOLine{{ID: "l0", Description: "cable", Quantity: dec("10")}},
	})
	if err != nil {
		t.Fatalf("create rdo: %v", err)
	}
	if draft.Weights.Price != DefaultWeights.Price || draft.Weights.Time != DefaultWeights.Time || draft.Weights.Quality != DefaultWeights.Quality {
		t.Fatalf("expected default weights, got %+v", draft.Weights)
	}
	if _, _, err := svc.SubmitOffer(ctx, SubmitOfferRequest{RDOID: draft.ID, VendorID: "vendor-a", Lines: priced("5")}); !domain.IsGate(err) {
		t.Fatalf("expected gate error on draft rdo, got %v", err)
	}

	rdo := openRDO(t, svc, project.ID, []string{"10"}, "vendor-a")
	if _, _, err := svc.SubmitOffer(ctx, SubmitOfferRequest{RDOID: rdo.ID, VendorID: "stranger", Lines: priced("5")}); !domain.IsGate(err) {
		t.Fatalf("expected gate error for uninvited vendor, got %v", err)
	}
	bad := []domain.OfferLine{{RDOLineID: "nope", UnitPrice: dec("5")}}
	if _, _, err := svc.SubmitOffer(ctx, SubmitOfferRequest{RDOID: rdo.ID, VendorID: "vendor-a", Lines: bad}); !domain.IsValidation(err) {
		t.Fatalf("expected validation error for unknown line, got %v", err)
	}

	first, _, err := svc.SubmitOffer(ctx, SubmitOfferRequest{RDOID: rdo.ID, VendorID: "vendor-a", Lines: priced("5.50")})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !first.TotalPrice.Equal(dec("55")) || first.Revision != 1 {
		t.Fatalf("expected quantity default and revision 1, got %+v", first)
	}
	if _, _, err := svc.SubmitOffer(ctx, SubmitOfferRequest{RDOID: rdo.ID, VendorID: "vendor-a", Lines: priced("5"), ExpectedVersion: first.Version + 3}); !domain.IsConflict(err) {
		t.Fatalf("expected conflict for stale revision, got %v", err)
	}
	second, _, err := svc.SubmitOffer(ctx, SubmitOfferRequest{RDOID: rdo.ID, VendorID: "vendor-a", Lines: priced("5"), ExpectedVersion: first.Version})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if second.Revision != 2 || second.SupersedesID != first.ID {
		t.Fatalf("expected revision 2 superseding %s, got %+v", first.ID, second)
	}
	old, _ := svc.Offer(ctx, first.ID)
	if old.Status != domain.OfferStatusSuperseded {
		t.Fatalf("expected first revision superseded, got %s", old.Status)
	}
}

func TestLockedOfferCannotBeRepriced(t *testing.T) {
	svc := newTestService(t)
	fx := evaluatingFive(t, svc)
	ctx := context.Background()
	if _, _, err := svc.ComputeComparison(ctx, fx.rdo.ID); err != nil {
		t.Fatalf("compare: %v", err)
	}
	_, err := svc.Store().RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateOffer(fx.offerA.ID, func(o *domain.Offer) error {
			o.Lines[0].UnitPrice = dec("1")
			o.ComputeTotals()
			return nil
		})
		return err
	})
	var violation RuleViolationError
	if !errors.As(err, &violation) || !violation.HasRule(RuleOfferLock) {
		t.Fatalf("expected offer_lock violation, got %v", err)
	}
	if _, _, err := svc.ExcludeOffer(ctx, fx.offerB.ID, 0, "late documents"); err != nil {
		t.Fatalf("excluding a locked offer is not a price change: %v", err)
	}
}

func TestRDOLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	project := mustProject(t, svc)

	if _, _, err := svc.CreateRDO(ctx, domain.RDO{ProjectID: project.ID, Title: "Empty"}); !domain.IsValidation(err) {
		t.Fatalf("expected validation error without lines, got %v", err)
	}
	var notFound ErrNotFound
	if _, _, err := svc.CreateRDO(ctx, domain.RDO{ProjectID: "missing", Title: "x", Lines: []domain.RDOLine{{Description: "a", Quantity: dec("1")}}}); !errors.As(err, &notFound) {
		t.Fatalf("expected missing project, got %v", err)
	}
	rdo, _, err := svc.CreateRDO(ctx, domain.RDO{ProjectID: project.ID, Title: "Paint", Lines: []domain.RDOLine{{Description: "paint", Quantity: dec("3")}}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := svc.OpenRDO(ctx, rdo.ID, rdo.Version); !domain.IsValidation(err) {
		t.Fatalf("opening without vendors must fail, got %v", err)
	}
	rdo, _, err = svc.InviteVendors(ctx, rdo.ID, rdo.Version, []string{"vendor-a", "vendor-a", " "})
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if len(rdo.InvitedVendors) != 1 {
		t.Fatalf("expected deduplicated vendors, got %v", rdo.InvitedVendors)
	}
	if _, _, err := svc.OpenRDO(ctx, rdo.ID, rdo.Version+1); !domain.IsConflict(err) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	if _, _, err := svc.StartEvaluation(ctx, rdo.ID, 0); !domain.IsGate(err) {
		t.Fatalf("expected gate error skipping open, got %v", err)
	}
	if _, _, err := svc.CancelRDO(ctx, rdo.ID, 0, ""); !domain.IsValidation(err) {
		t.Fatalf("cancel requires a reason, got %v", err)
	}
	cancelled, _, err := svc.CancelRDO(ctx, rdo.ID, 0, "budget withdrawn")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.RDOStatusCancelled || cancelled.CancelReason != "budget withdrawn" {
		t.Fatalf("unexpected cancelled rdo %+v", cancelled)
	}
	if _, _, err := svc.OpenRDO(ctx, rdo.ID, 0); !domain.IsGate(err) {
		t.Fatalf("cancelled rdo is terminal, got %v", err)
	}
	list, err := svc.RDOs(ctx, project.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one rdo for project, got %d (%v)", len(list), err)
	}
}

func TestCreateProjectValidatesMoney(t *testing.T) {
	svc := newTestService(t)
	_, _, err := svc.CreateProject(context.Background(), domain.Project{Name: "x", Revenue: dec("10.001")})
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error for sub-cent revenue, got %v", err)
	}
	_, _, err = svc.CreateProject(context.Background(), domain.Project{Name: " "})
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error for blank name, got %v", err)
	}
}

func TestCreateProjectAppliesDefaultTiming(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	project, _, err := svc.CreateProject(ctx, domain.Project{Name: "no timing", Revenue: dec("1000")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !reflect.DeepEqual(project.Timing, DefaultTiming) {
		t.Fatalf("expected service default timing, got %+v", project.Timing)
	}

	configured := domain.Timing{DiscountRate: 0.1, PeriodWeights: []float64{1, 3}}
	svc = newTestService(t, WithDefaultTiming(configured))
	project, _, err = svc.CreateProject(ctx, domain.Project{Name: "configured", Revenue: dec("1000")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !reflect.DeepEqual(project.Timing, configured) {
		t.Fatalf("expected configured timing, got %+v", project.Timing)
	}
	project.Timing.PeriodWeights[0] = 9
	again, _, err := svc.CreateProject(ctx, domain.Project{Name: "second", Revenue: dec("1000")})
	if err != nil || again.Timing.PeriodWeights[0] != 1 {
		t.Fatalf("default timing must not be shared between projects, got %+v (%v)", again.Timing, err)
	}

	explicit := domain.Timing{DiscountRate: 0.02, PeriodWeights: []float64{2}}
	project, _, err = svc.CreateProject(ctx, domain.Project{Name: "explicit", Revenue: dec("1000"), Timing: explicit})
	if err != nil || !reflect.DeepEqual(project.Timing, explicit) {
		t.Fatalf("explicit timing must be kept, got %+v (%v)", project.Timing, err)
	}
}

func TestCreateProjectRejectsInvalidTiming(t *testing.T) {
	svc := newTestService(t)
	_, _, err := svc.CreateProject(context.Background(), domain.Project{
		Name:    "bad timing",
		Revenue: dec("1000"),
		Timing:  domain.Timing{DiscountRate: 0.05, PeriodWeights: []float64{1, -2}},
	})
	var verr domain.ValidationError
	if !errors.As(err, &verr) || verr.Field != "timing.period_weights" {
		t.Fatalf("expected period weights validation error, got %v", err)
	}
}

func TestConcurrentSALEntriesAllLand(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	project := mustProject(t, svc)
	_, line := awardedLine(t, svc, project.ID, "100000")

	const workers = 50
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, _, err := svc.RecordSAL(ctx, line.ID, dec("100"), fmt.Sprintf("progress %d", i)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("record sal: %v", err)
	}

	history, err := svc.SALHistory(ctx, line.ID)
	if err != nil || len(history) != workers {
		t.Fatalf("expected %d entries, got %d (%v)", workers, len(history), err)
	}
	ledger, err := svc.LineLedger(ctx, line.ID)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if !ledger.ConsumedToDate.Equal(dec("5000")) || ledger.EntryCount != workers {
		t.Fatalf("unexpected ledger %+v", ledger)
	}
	if !history[workers-1].ConsumedToDate.Equal(dec("5000")) {
		t.Fatalf("last entry must carry the full running total, got %s", history[workers-1].ConsumedToDate)
	}
}

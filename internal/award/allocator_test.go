package award

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"procurecore/pkg/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fiveLineRDO() domain.RDO {
	rdo := domain.RDO{Base: domain.Base{ID: "rdo-1"}, ProjectID: "prj-1", Status: domain.RDOStatusEvaluating}
	for i := 0; i < 5; i++ {
		rdo.Lines = append(rdo.Lines, domain.RDOLine{
			ID:          fmt.Sprintf("l%d", i),
			Description: fmt.Sprintf("item %d", i),
			Quantity:    decimal.NewFromInt(int64(i + 1)),
			Unit:        "pcs",
		})
	}
	return rdo
}

func offerFor(vendor string, prices map[string]string) domain.Offer {
	o := domain.Offer{Base: domain.Base{ID: "offer-" + vendor}, RDOID: "rdo-1", VendorID: vendor, Revision: 1, Status: domain.OfferStatusSubmitted}
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("l%d", i)
		p, ok := prices[id]
		if !ok {
			o.Lines = append(o.Lines, domain.OfferLine{RDOLineID: id, Excluded: true})
			continue
		}
		o.Lines = append(o.Lines, domain.OfferLine{RDOLineID: id, UnitPrice: dec(p)})
	}
	return o
}

func passed(vendors ...string) map[string]domain.PreCheckResult {
	out := map[string]domain.PreCheckResult{}
	for _, v := range vendors {
		out[v] = domain.PreCheckResult{VendorID: v, Passed: true, Status: domain.PreCheckPassed}
	}
	return out
}

var thirds = []domain.MilestoneTemplate{
	{Name: "advance", Percentage: dec("33.33")},
	{Name: "delivery", Percentage: dec("33.33")},
	{Name: "acceptance", Percentage: dec("33.34")},
}

func sequentialIDs() Option {
	n := 0
	return WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("cl-%d", n)
	})
}

func TestSplitAwardReconciles(t *testing.T) {
	a := offerFor("A", map[string]string{"l0": "10.01", "l1": "20.33", "l2": "7.77", "l3": "1.00", "l4": "3.00"})
	b := offerFor("B", map[string]string{"l3": "12.34", "l4": "56.78"})
	plan, err := NewAllocator(sequentialIDs()).Allocate(Request{
		RDO:       fiveLineRDO(),
		Offers:    []domain.Offer{a, b},
		Decisions: map[string]string{"l0": "A", "l1": "A", "l2": "A", "l3": "B", "l4": "B"},
		PreChecks: passed("A", "B"),
		Templates: thirds,
		Now:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if len(plan.Bundles) != 2 {
		t.Fatalf("expected two bundles, got %d", len(plan.Bundles))
	}
	if len(plan.CoverageGaps) != 0 {
		t.Fatalf("expected full coverage, got gaps %v", plan.CoverageGaps)
	}
	wantTotals := map[string]string{
		"A": "74.98",  // 10.01*1 + 20.33*2 + 7.77*3
		"B": "333.26", // 12.34*4 + 56.78*5
	}
	for _, bundle := range plan.Bundles {
		if !bundle.Total.Equal(dec(wantTotals[bundle.VendorID])) {
			t.Fatalf("vendor %s total %s, want %s", bundle.VendorID, bundle.Total, wantTotals[bundle.VendorID])
		}
		if !bundle.MilestonesTotal().Equal(bundle.Total) {
			t.Fatalf("vendor %s milestones %s do not reconcile with %s", bundle.VendorID, bundle.MilestonesTotal(), bundle.Total)
		}
		if !bundle.LinesTotal().Equal(bundle.Total) {
			t.Fatalf("vendor %s total not derived from lines", bundle.VendorID)
		}
	}
	for _, line := range plan.Bundles[1].Lines {
		if line.RDOLineID == "l3" && !line.UnitPrice.Equal(dec("12.34")) {
			t.Fatalf("awarded price must come from the vendor's own offer, got %s", line.UnitPrice)
		}
		if line.CostBucket != domain.DefaultCostBucket {
			t.Fatalf("expected default cost bucket, got %q", line.CostBucket)
		}
	}
}

func TestFailedPreCheckIsHardGate(t *testing.T) {
	checks := passed("A")
	checks["B"] = domain.PreCheckResult{VendorID: "B", Passed: false, Status: domain.PreCheckFailed}
	_, err := NewAllocator().Allocate(Request{
		RDO:       fiveLineRDO(),
		Offers:    []domain.Offer{offerFor("A", map[string]string{"l0": "1"}), offerFor("B", map[string]string{"l1": "1"})},
		Decisions: map[string]string{"l0": "A", "l1": "B"},
		PreChecks: checks,
		Templates: thirds,
	})
	var problems domain.AllocationErrors
	if !errors.As(err, &problems) {
		t.Fatalf("expected allocation errors, got %v", err)
	}
	if !HasGateFailure(err) {
		t.Fatalf("expected gate failure in %v", err)
	}
	var gate domain.GateError
	if !errors.As(err, &gate) || gate.Gate != domain.GatePreCheck {
		t.Fatalf("expected precheck gate reachable via errors.As, got %v", err)
	}
}

func TestAllocationCollectsEveryProblem(t *testing.T) {
	_, err := NewAllocator().Allocate(Request{
		RDO:    fiveLineRDO(),
		Offers: []domain.Offer{offerFor("A", map[string]string{"l0": "1"})},
		Decisions: map[string]string{
			"l0":   "A",
			"l1":   "A",     // A excluded l1
			"nope": "A",     // unknown line
			"l2":   "ghost", // no offer
			"l3":   "",
		},
		PreChecks: passed("A"),
		Templates: thirds,
	})
	var problems domain.AllocationErrors
	if !errors.As(err, &problems) {
		t.Fatalf("expected allocation errors, got %v", err)
	}
	if len(problems) != 4 {
		t.Fatalf("expected 4 problems, got %d: %v", len(problems), err)
	}
	if !domain.IsValidation(err) {
		t.Fatalf("unknown line should surface as validation error")
	}
}

func TestExplicitGroupsSplitVendorBundles(t *testing.T) {
	a := offerFor("A", map[string]string{"l0": "1", "l1": "2", "l2": "3"})
	plan, err := NewAllocator().Allocate(Request{
		RDO:       fiveLineRDO(),
		Offers:    []domain.Offer{a},
		Decisions: map[string]string{"l0": "A", "l1": "A", "l2": "A"},
		Groups:    [][]string{{"l2"}},
		PreChecks: passed("A"),
		Templates: []domain.MilestoneTemplate{{Name: "single", Percentage: dec("100")}},
	})
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if len(plan.Bundles) != 2 {
		t.Fatalf("expected explicit group to split bundle, got %d", len(plan.Bundles))
	}
	if plan.Bundles[0].Group != 0 || plan.Bundles[1].Group != 1 {
		t.Fatalf("unexpected group ordering: %d, %d", plan.Bundles[0].Group, plan.Bundles[1].Group)
	}
	if len(plan.CoverageGaps) != 2 || plan.CoverageGaps[0] != "l3" {
		t.Fatalf("expected l3 and l4 reported as gaps, got %v", plan.CoverageGaps)
	}
}

func TestGroupsRejectDuplicatesAndMixedVendors(t *testing.T) {
	_, err := NewAllocator().Allocate(Request{
		RDO:       fiveLineRDO(),
		Offers:    []domain.Offer{offerFor("A", map[string]string{"l0": "1", "l1": "1"}), offerFor("B", map[string]string{"l2": "1"})},
		Decisions: map[string]string{"l0": "A", "l1": "A", "l2": "B"},
		Groups:    [][]string{{"l0", "l2"}, {"l0"}},
		PreChecks: passed("A", "B"),
		Templates: thirds,
	})
	var problems domain.AllocationErrors
	if !errors.As(err, &problems) || len(problems) != 2 {
		t.Fatalf("expected 2 group problems, got %v", err)
	}
}

func TestLatestRevisionWins(t *testing.T) {
	old := offerFor("A", map[string]string{"l0": "5"})
	old.Status = domain.OfferStatusSuperseded
	current := offerFor("A", map[string]string{"l0": "4"})
	current.ID = "offer-A-r2"
	current.Revision = 2
	plan, err := NewAllocator().Allocate(Request{
		RDO:       fiveLineRDO(),
		Offers:    []domain.Offer{old, current},
		Decisions: map[string]string{"l0": "A"},
		PreChecks: passed("A"),
		Templates: thirds,
	})
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if plan.Bundles[0].OfferID != "offer-A-r2" || !plan.Bundles[0].Total.Equal(dec("4")) {
		t.Fatalf("expected current revision priced bundle, got %+v", plan.Bundles[0])
	}
}

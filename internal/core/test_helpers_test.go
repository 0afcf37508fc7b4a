package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"procurecore/pkg/domain"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fptr(v float64) *float64 { return &v }

func fixedClock() Clock {
	return ClockFunc(func() time.Time { return testNow })
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	n := 0
	base := []Option{
		WithClock(fixedClock()),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("cl-%02d", n)
		}),
	}
	return NewInMemoryService(NewDefaultRulesEngine(), append(base, opts...)...)
}

func mustProject(t *testing.T, svc *Service) domain.Project {
	t.Helper()
	project, _, err := svc.CreateProject(context.Background(), domain.Project{
		Name:        "Riverside offices",
		Revenue:     dec("100000"),
		CostBuckets: map[string]decimal.Decimal{domain.DefaultCostBucket: dec("60000")},
		Timing:      domain.Timing{DiscountRate: 0.08, PeriodWeights: []float64{1}},
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return project
}

// openRDO creates and opens an RDO with the given line quantities, inviting vendors.
func openRDO(t *testing.T, svc *Service, projectID string, quantities []string, vendors ...string) domain.RDO {
	t.Helper()
	ctx := context.Background()
	rdo := domain.RDO{ProjectID: projectID, Title: "Fit-out", InvitedVendors: vendors}
	for i, q := range quantities {
		rdo.Lines = append(rdo.Lines, domain.RDOLine{ID: fmt.Sprintf("l%d", i), Description: fmt.Sprintf("item %d", i), Quantity: dec(q), Unit: "pcs"})
	}
	created, _, err := svc.CreateRDO(ctx, rdo)
	if err != nil {
		t.Fatalf("create rdo: %v", err)
	}
	opened, _, err := svc.OpenRDO(ctx, created.ID, created.Version)
	if err != nil {
		t.Fatalf("open rdo: %v", err)
	}
	return opened
}

// priced builds offer lines for l0..ln; an empty price marks the line excluded.
func priced(prices ...string) []domain.OfferLine {
	lines := make([]domain.OfferLine, 0, len(prices))
	for i, p := range prices {
		line := domain.OfferLine{RDOLineID: fmt.Sprintf("l%d", i)}
		if p == "" {
			line.Excluded = true
		} else {
			line.UnitPrice = dec(p)
		}
		lines = append(lines, line)
	}
	return lines
}

func passingItems() []domain.PreCheckItem {
	expiry := testNow.AddDate(1, 0, 0)
	items := make([]domain.PreCheckItem, 0, len(domain.AllPreCheckTypes))
	for _, typ := range domain.AllPreCheckTypes {
		items = append(items, domain.PreCheckItem{Type: typ, Status: domain.ItemValid, ExpiryDate: &expiry, Score: 90})
	}
	return items
}

type evaluatingFixture struct {
	project domain.Project
	rdo     domain.RDO
	offerA  domain.Offer
	offerB  domain.Offer
}

// evaluatingFive sets up the five-line cohort: vendor A prices every line for
// 430 in 175 days, vendor B excludes line 0 and prices the rest for 460 in
// 190 days. The RDO is left in evaluation.
func evaluatingFive(t *testing.T, svc *Service) evaluatingFixture {
	t.Helper()
	ctx := context.Background()
	project := mustProject(t, svc)
	rdo := openRDO(t, svc, project.ID, []string{"1", "1", "1", "1", "1"}, "vendor-a", "vendor-b")
	offerA, _, err := svc.SubmitOffer(ctx, SubmitOfferRequest{
		RDOID: rdo.ID, VendorID: "vendor-a", Lines: priced("80", "90", "100", "70", "90"),
		TotalTime: 175, QualityScore: fptr(90),
	})
	if err != nil {
		t.Fatalf("submit A: %v", err)
	}
	offerB, _, err := svc.SubmitOffer(ctx, SubmitOfferRequest{
		RDOID: rdo.ID, VendorID: "vendor-b", Lines: priced("", "120", "110", "100", "130"),
		TotalTime: 190, QualityScore: fptr(95),
	})
	if err != nil {
		t.Fatalf("submit B: %v", err)
	}
	rdo, _, err = svc.StartEvaluation(ctx, rdo.ID, 0)
	if err != nil {
		t.Fatalf("start evaluation: %v", err)
	}
	return evaluatingFixture{project: project, rdo: rdo, offerA: offerA, offerB: offerB}
}

// awardedLine awards a single-line RDO priced at price to vendor-a and
// returns the resulting contract line.
func awardedLine(t *testing.T, svc *Service, projectID, price string) (domain.ContractBundle, domain.ContractLine) {
	t.Helper()
	ctx := context.Background()
	rdo := openRDO(t, svc, projectID, []string{"1"}, "vendor-a")
	if _, _, err := svc.SubmitOffer(ctx, SubmitOfferRequest{RDOID: rdo.ID, VendorID: "vendor-a", Lines: priced(price), TotalTime: 30, QualityScore: fptr(80)}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, _, err := svc.StartEvaluation(ctx, rdo.ID, 0); err != nil {
		t.Fatalf("start evaluation: %v", err)
	}
	if _, _, err := svc.ComputeComparison(ctx, rdo.ID); err != nil {
		t.Fatalf("compare: %v", err)
	}
	if _, _, err := svc.RecordPreCheck(ctx, "vendor-a", passingItems()); err != nil {
		t.Fatalf("precheck: %v", err)
	}
	outcome, _, err := svc.AwardLines(ctx, AwardRequest{RDOID: rdo.ID, Decisions: map[string]string{"l0": "vendor-a"}})
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	if len(outcome.Bundles) != 1 || len(outcome.Bundles[0].Lines) != 1 {
		t.Fatalf("expected one bundle with one line, got %+v", outcome.Bundles)
	}
	return outcome.Bundles[0], outcome.Bundles[0].Lines[0]
}

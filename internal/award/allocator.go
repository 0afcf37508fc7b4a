// Package award maps RDO lines to winning vendors and builds per-vendor
// contract bundles with their milestone schedules.
package award

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"procurecore/internal/milestone"
	"procurecore/internal/precheck"
	"procurecore/pkg/domain"
)

// Request describes one award pass.
type Request struct {
	RDO    domain.RDO
	Offers []domain.Offer
	// Decisions maps RDO line ID to the vendor it is awarded to.
	Decisions map[string]string
	// Groups optionally splits a vendor's lines into separate bundles. Lines
	// not listed in any group fall into the vendor's default bundle.
	Groups    [][]string
	PreChecks map[string]domain.PreCheckResult
	Templates []domain.MilestoneTemplate
	Now       time.Time
}

// Plan is the validated outcome of an award pass.
type Plan struct {
	Bundles      []domain.ContractBundle
	CoverageGaps []string
}

// Allocator validates award decisions and builds contract bundles.
type Allocator struct {
	newID func() string
}

// Option customizes an Allocator.
type Option func(*Allocator)

// WithIDGenerator overrides contract line ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(a *Allocator) {
		if fn != nil {
			a.newID = fn
		}
	}
}

// NewAllocator constructs an allocator issuing UUIDv7 identifiers.
func NewAllocator(opts ...Option) *Allocator {
	a := &Allocator{newID: func() string { return uuid.Must(uuid.NewV7()).String() }}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type bundleKey struct {
	vendor string
	group  int
}

// Allocate validates every decision and returns either a Plan or
// domain.AllocationErrors listing every problem found. Nothing is persisted.
func (a *Allocator) Allocate(req Request) (Plan, error) {
	var problems domain.AllocationErrors
	if len(req.Decisions) == 0 {
		problems = append(problems, domain.AllocationError{Err: domain.ValidationError{Field: "decisions", Message: "no lines to award"}})
	}
	if err := milestone.ValidateTemplates(req.Templates); err != nil {
		problems = append(problems, domain.AllocationError{Err: err})
	}

	offers := latestEligibleOffers(req.Offers)
	lineIDs := sortedKeys(req.Decisions)
	vendorChecked := map[string]bool{}
	for _, lineID := range lineIDs {
		vendorID := req.Decisions[lineID]
		if _, ok := req.RDO.Line(lineID); !ok {
			problems = append(problems, domain.AllocationError{LineID: lineID, VendorID: vendorID, Err: domain.ValidationError{Field: "line", Message: "unknown RDO line"}})
			continue
		}
		if vendorID == "" {
			problems = append(problems, domain.AllocationError{LineID: lineID, Err: domain.ValidationError{Field: "vendor", Message: "vendor required"}})
			continue
		}
		offer, ok := offers[vendorID]
		if !ok {
			problems = append(problems, domain.AllocationError{LineID: lineID, VendorID: vendorID, Err: domain.GateError{Gate: domain.GateVendorEligibility, Subject: "vendor " + vendorID, Reason: "no eligible offer for this RDO"}})
			continue
		}
		if ol, ok := offer.Line(lineID); !ok || ol.Excluded {
			problems = append(problems, domain.AllocationError{LineID: lineID, VendorID: vendorID, Err: domain.GateError{Gate: domain.GateVendorEligibility, Subject: "vendor " + vendorID, Reason: "vendor did not price this line"}})
		}
		if !vendorChecked[vendorID] {
			vendorChecked[vendorID] = true
			pc, found := req.PreChecks[vendorID]
			if err := precheck.Gate(pc, found); err != nil {
				problems = append(problems, domain.AllocationError{VendorID: vendorID, Err: err})
			}
		}
	}

	groupOf, groupProblems := assignGroups(req.Groups, req.Decisions)
	problems = append(problems, groupProblems...)
	if len(problems) > 0 {
		return Plan{}, problems
	}

	grouped := map[bundleKey][]string{}
	for _, lineID := range lineIDs {
		key := bundleKey{vendor: req.Decisions[lineID], group: groupOf[lineID]}
		grouped[key] = append(grouped[key], lineID)
	}
	keys := make([]bundleKey, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].vendor != keys[j].vendor {
			return keys[i].vendor < keys[j].vendor
		}
		return keys[i].group < keys[j].group
	})

	plan := Plan{}
	for _, key := range keys {
		bundle, err := a.buildBundle(req, offers[key.vendor], key, grouped[key])
		if err != nil {
			return Plan{}, err
		}
		plan.Bundles = append(plan.Bundles, bundle)
	}
	for _, line := range req.RDO.Lines {
		if _, ok := req.Decisions[line.ID]; !ok {
			plan.CoverageGaps = append(plan.CoverageGaps, line.ID)
		}
	}
	return plan, nil
}

func (a *Allocator) buildBundle(req Request, offer domain.Offer, key bundleKey, lineIDs []string) (domain.ContractBundle, error) {
	awarded := make(map[string]bool, len(lineIDs))
	for _, id := range lineIDs {
		awarded[id] = true
	}
	bundle := domain.ContractBundle{
		RDOID:     req.RDO.ID,
		ProjectID: req.RDO.ProjectID,
		VendorID:  key.vendor,
		OfferID:   offer.ID,
		Group:     key.group,
	}
	total := decimal.Zero
	// RDO order keeps bundle lines stable regardless of map iteration.
	for _, rdoLine := range req.RDO.Lines {
		if !awarded[rdoLine.ID] {
			continue
		}
		ol, _ := offer.Line(rdoLine.ID)
		qty := ol.Quantity
		if qty.IsZero() {
			qty = rdoLine.Quantity
		}
		bucket := rdoLine.CostBucket
		if bucket == "" {
			bucket = domain.DefaultCostBucket
		}
		value := domain.Money(ol.UnitPrice.Mul(qty))
		bundle.Lines = append(bundle.Lines, domain.ContractLine{
			ID:              a.newID(),
			RDOLineID:       rdoLine.ID,
			Description:     rdoLine.Description,
			Quantity:        qty,
			UnitPrice:       ol.UnitPrice,
			ContractedValue: value,
			CostBucket:      bucket,
		})
		total = total.Add(value)
	}
	bundle.Total = total
	if !bundle.LinesTotal().Equal(bundle.Total) {
		return domain.ContractBundle{}, domain.DataIntegrityError{Entity: domain.EntityContractBundle, Detail: fmt.Sprintf("vendor %s bundle total %s does not match its lines", key.vendor, total)}
	}
	ms, err := milestone.Schedule(total, req.Templates, req.Now)
	if err != nil {
		return domain.ContractBundle{}, err
	}
	bundle.Milestones = ms
	if err := milestone.Reconcile(bundle); err != nil {
		return domain.ContractBundle{}, err
	}
	return bundle, nil
}

// assignGroups maps each grouped line to a 1-based group number. Ungrouped
// lines map to 0, the vendor's default bundle.
func assignGroups(groups [][]string, decisions map[string]string) (map[string]int, domain.AllocationErrors) {
	out := map[string]int{}
	var problems domain.AllocationErrors
	for i, group := range groups {
		vendor := ""
		for _, lineID := range group {
			if _, seen := out[lineID]; seen {
				problems = append(problems, domain.AllocationError{LineID: lineID, Err: domain.ValidationError{Field: "groups", Message: "line listed in more than one bundle group"}})
				continue
			}
			v, ok := decisions[lineID]
			if !ok {
				problems = append(problems, domain.AllocationError{LineID: lineID, Err: domain.ValidationError{Field: "groups", Message: "grouped line has no award decision"}})
				continue
			}
			if vendor == "" {
				vendor = v
			} else if v != vendor {
				problems = append(problems, domain.AllocationError{LineID: lineID, VendorID: v, Err: domain.ValidationError{Field: "groups", Message: "a bundle group cannot span vendors"}})
				continue
			}
			out[lineID] = i + 1
		}
	}
	return out, problems
}

// latestEligibleOffers returns the highest eligible revision per vendor.
func latestEligibleOffers(offers []domain.Offer) map[string]domain.Offer {
	out := map[string]domain.Offer{}
	for _, o := range offers {
		if !o.Eligible() {
			continue
		}
		if cur, ok := out[o.VendorID]; !ok || o.Revision > cur.Revision {
			out[o.VendorID] = o
		}
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HasGateFailure reports whether a rejected pass includes a gate problem.
func HasGateFailure(err error) bool {
	var problems domain.AllocationErrors
	if !errors.As(err, &problems) {
		return domain.IsGate(err)
	}
	for _, p := range problems {
		if domain.IsGate(p.Err) {
			return true
		}
	}
	return false
}

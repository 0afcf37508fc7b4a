package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"procurecore/pkg/domain"
)

// CreateProject validates and persists a project, computing its initial
// business plan metrics. A project without timing assumptions receives the
// service default.
func (s *Service) CreateProject(ctx context.Context, project domain.Project) (domain.Project, Result, error) {
	var created domain.Project
	res, err := s.run(ctx, "create_project", func() subject { return subject{id: created.ID, payload: created} }, func(tx Transaction) error {
		if strings.TrimSpace(project.Name) == "" {
			return domain.ValidationError{Field: "name", Message: "required"}
		}
		if err := checkMoney("revenue", project.Revenue, true); err != nil {
			return err
		}
		for _, name := range project.BucketNames() {
			if err := checkMoney("cost_buckets."+name, project.CostBuckets[name], true); err != nil {
				return err
			}
		}
		if project.CostBuckets == nil {
			project.CostBuckets = map[string]decimal.Decimal{}
		}
		if project.Timing.IsZero() {
			project.Timing = s.timing.Clone()
		}
		if err := project.Timing.Validate(); err != nil {
			return err
		}
		metrics, err := s.planner.Metrics(project)
		if err != nil {
			return err
		}
		project.Metrics = metrics
		project.LastSync = nil
		created, err = tx.CreateProject(project)
		return err
	})
	return created, res, err
}

func checkMoney(field string, v decimal.Decimal, allowZero bool) error {
	if v.IsNegative() || (!allowZero && v.IsZero()) {
		return domain.ValidationError{Field: field, Message: "must be positive"}
	}
	if !v.Equal(domain.Money(v)) {
		return domain.ValidationError{Field: field, Message: fmt.Sprintf("at most %d decimal places", domain.MoneyPlaces)}
	}
	return nil
}

// CreateRDO persists a draft request-for-offer for an existing project.
func (s *Service) CreateRDO(ctx context.Context, rdo domain.RDO) (domain.RDO, Result, error) {
	var created domain.RDO
	res, err := s.run(ctx, "create_rdo", func() subject { return subject{id: created.ID, payload: created} }, func(tx Transaction) error {
		if _, ok := tx.FindProject(rdo.ProjectID); !ok {
			return ErrNotFound{Entity: domain.EntityProject, ID: rdo.ProjectID}
		}
		if strings.TrimSpace(rdo.Title) == "" {
			return domain.ValidationError{Field: "title", Message: "required"}
		}
		if len(rdo.Lines) == 0 {
			return domain.ValidationError{Field: "lines", Message: "at least one line required"}
		}
		seen := map[string]bool{}
		for i, line := range rdo.Lines {
			if strings.TrimSpace(line.Description) == "" {
				return domain.ValidationError{Field: fmt.Sprintf("lines[%d].description", i), Message: "required"}
			}
			if !line.Quantity.IsPositive() {
				return domain.ValidationError{Field: fmt.Sprintf("lines[%d].quantity", i), Message: "must be positive"}
			}
			if line.ID != "" {
				if seen[line.ID] {
					return domain.ValidationError{Field: fmt.Sprintf("lines[%d].id", i), Message: "duplicate line id"}
				}
				seen[line.ID] = true
			}
		}
		if err := rdo.MetadataSchema.Check(); err != nil {
			return err
		}
		if rdo.Weights.Price == 0 && rdo.Weights.Time == 0 && rdo.Weights.Quality == 0 && len(rdo.Weights.Custom) == 0 {
			rdo.Weights = s.weights
		}
		if err := rdo.Weights.Validate(rdo.MetadataSchema); err != nil {
			return err
		}
		rdo.InvitedVendors = uniqueVendors(rdo.InvitedVendors)
		rdo.Status = domain.RDOStatusDraft
		rdo.Award = nil
		rdo.CancelReason = ""
		var err error
		created, err = tx.CreateRDO(rdo)
		return err
	})
	return created, res, err
}

func uniqueVendors(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// InviteVendors adds vendors to a draft or open RDO.
func (s *Service) InviteVendors(ctx context.Context, rdoID string, expectedVersion int64, vendorIDs []string) (domain.RDO, Result, error) {
	var updated domain.RDO
	res, err := s.run(ctx, "invite_vendors", func() subject { return subject{id: rdoID, payload: updated} }, func(tx Transaction) error {
		if len(uniqueVendors(vendorIDs)) == 0 {
			return domain.ValidationError{Field: "vendor_ids", Message: "at least one vendor required"}
		}
		current, err := s.lookupRDO(tx, rdoID, expectedVersion)
		if err != nil {
			return err
		}
		if current.Status != domain.RDOStatusDraft && current.Status != domain.RDOStatusOpen {
			return domain.GateError{Gate: domain.GateRDOStatus, Subject: "rdo " + rdoID, Reason: fmt.Sprintf("cannot invite vendors while %s", current.Status)}
		}
		updated, err = tx.UpdateRDO(rdoID, func(r *domain.RDO) error {
			r.InvitedVendors = uniqueVendors(append(r.InvitedVendors, vendorIDs...))
			return nil
		})
		return err
	})
	return updated, res, err
}

func (s *Service) lookupRDO(tx Transaction, rdoID string, expectedVersion int64) (domain.RDO, error) {
	rdo, ok := tx.FindRDO(rdoID)
	if !ok {
		return domain.RDO{}, ErrNotFound{Entity: domain.EntityRDO, ID: rdoID}
	}
	if err := checkVersion(domain.EntityRDO, rdoID, expectedVersion, rdo.Version); err != nil {
		return domain.RDO{}, err
	}
	return rdo, nil
}

// OpenRDO publishes a draft RDO to its invited vendors.
func (s *Service) OpenRDO(ctx context.Context, rdoID string, expectedVersion int64) (domain.RDO, Result, error) {
	return s.transitionRDO(ctx, "open_rdo", rdoID, expectedVersion, domain.RDOStatusOpen, func(r *domain.RDO) error {
		if len(r.InvitedVendors) == 0 {
			return domain.ValidationError{Field: "invited_vendors", Message: "invite at least one vendor before opening"}
		}
		return nil
	})
}

// StartEvaluation closes submissions and allows comparison.
func (s *Service) StartEvaluation(ctx context.Context, rdoID string, expectedVersion int64) (domain.RDO, Result, error) {
	return s.transitionRDO(ctx, "start_evaluation", rdoID, expectedVersion, domain.RDOStatusEvaluating, nil)
}

// CancelRDO terminates a non-awarded RDO.
func (s *Service) CancelRDO(ctx context.Context, rdoID string, expectedVersion int64, reason string) (domain.RDO, Result, error) {
	return s.transitionRDO(ctx, "cancel_rdo", rdoID, expectedVersion, domain.RDOStatusCancelled, func(r *domain.RDO) error {
		if strings.TrimSpace(reason) == "" {
			return domain.ValidationError{Field: "reason", Message: "cancellation requires a reason"}
		}
		r.CancelReason = strings.TrimSpace(reason)
		return nil
	})
}

func (s *Service) transitionRDO(ctx context.Context, op, rdoID string, expectedVersion int64, to domain.RDOStatus, mutate func(*domain.RDO) error) (domain.RDO, Result, error) {
	var updated domain.RDO
	res, err := s.run(ctx, op, func() subject { return subject{id: rdoID, payload: updated} }, func(tx Transaction) error {
		current, err := s.lookupRDO(tx, rdoID, expectedVersion)
		if err != nil {
			return err
		}
		if current.Status == to || !current.Status.CanTransition(to) {
			return domain.GateError{Gate: domain.GateRDOStatus, Subject: "rdo " + rdoID, Reason: fmt.Sprintf("cannot move from %s to %s", current.Status, to)}
		}
		updated, err = tx.UpdateRDO(rdoID, func(r *domain.RDO) error {
			if mutate != nil {
				if err := mutate(r); err != nil {
					return err
				}
			}
			r.Status = to
			return nil
		})
		return err
	})
	return updated, res, err
}

// SubmitOfferRequest carries a vendor's priced response. ExpectedVersion
// guards the vendor's current revision when correcting an offer.
type SubmitOfferRequest struct {
	RDOID           string             `json:"rdo_id"`
	VendorID        string             `json:"vendor_id"`
	Lines           []domain.OfferLine `json:"lines"`
	TotalTime       int                `json:"total_time,omitempty"`
	QualityScore    *float64           `json:"quality_score,omitempty"`
	AdditionalInfo  domain.Metadata    `json:"additional_info,omitempty"`
	ExpectedVersion int64              `json:"expected_version,omitempty"`
}

// SubmitOffer records an offer for an open RDO. A vendor that already has a
// submitted offer gets a new revision that supersedes it.
func (s *Service) SubmitOffer(ctx context.Context, req SubmitOfferRequest) (domain.Offer, Result, error) {
	var created domain.Offer
	res, err := s.run(ctx, "submit_offer", func() subject { return subject{id: created.ID, payload: created} }, func(tx Transaction) error {
		rdo, ok := tx.FindRDO(req.RDOID)
		if !ok {
			return ErrNotFound{Entity: domain.EntityRDO, ID: req.RDOID}
		}
		if rdo.Status != domain.RDOStatusOpen {
			return domain.GateError{Gate: domain.GateRDOStatus, Subject: "rdo " + rdo.ID, Reason: fmt.Sprintf("offers are accepted only while open, rdo is %s", rdo.Status)}
		}
		if !rdo.IsInvited(req.VendorID) {
			return domain.GateError{Gate: domain.GateVendorEligibility, Subject: "vendor " + req.VendorID, Reason: "vendor was not invited to this RDO"}
		}
		offer, err := buildOffer(rdo, req)
		if err != nil {
			return err
		}
		var previous *domain.Offer
		for _, o := range tx.ListOffers(rdo.ID) {
			if o.VendorID == req.VendorID && o.Status == domain.OfferStatusSubmitted {
				o := o
				previous = &o
			}
		}
		offer.Revision = 1
		if previous != nil {
			if err := checkVersion(domain.EntityOffer, previous.ID, req.ExpectedVersion, previous.Version); err != nil {
				return err
			}
			if _, err := tx.UpdateOffer(previous.ID, func(o *domain.Offer) error {
				o.Status = domain.OfferStatusSuperseded
				return nil
			}); err != nil {
				return err
			}
			offer.Revision = previous.Revision + 1
			offer.SupersedesID = previous.ID
		}
		if pc, ok := tx.FindPreCheck(req.VendorID); ok {
			offer.PreCheckStatus = pc.Status
		}
		offer.SubmittedAt = tx.Now()
		created, err = tx.CreateOffer(offer)
		return err
	})
	if err == nil {
		s.publish(ctx, EventOfferSubmitted, created.ID, created)
	}
	return created, res, err
}

func buildOffer(rdo domain.RDO, req SubmitOfferRequest) (domain.Offer, error) {
	if strings.TrimSpace(req.VendorID) == "" {
		return domain.Offer{}, domain.ValidationError{Field: "vendor_id", Message: "required"}
	}
	if len(req.Lines) == 0 {
		return domain.Offer{}, domain.ValidationError{Field: "lines", Message: "at least one line required"}
	}
	if req.TotalTime < 0 {
		return domain.Offer{}, domain.ValidationError{Field: "total_time", Message: "must not be negative"}
	}
	if q := req.QualityScore; q != nil && (*q < 0 || *q > 100) {
		return domain.Offer{}, domain.ValidationError{Field: "quality_score", Message: "must be within [0,100]"}
	}
	offer := domain.Offer{
		RDOID:        rdo.ID,
		VendorID:     req.VendorID,
		Status:       domain.OfferStatusSubmitted,
		TotalTime:    req.TotalTime,
		QualityScore: req.QualityScore,
	}
	seen := map[string]bool{}
	for i, line := range req.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		rdoLine, ok := rdo.Line(line.RDOLineID)
		if !ok {
			return domain.Offer{}, domain.ValidationError{Field: field + ".rdo_line_id", Message: fmt.Sprintf("unknown RDO line %q", line.RDOLineID)}
		}
		if seen[line.RDOLineID] {
			return domain.Offer{}, domain.ValidationError{Field: field + ".rdo_line_id", Message: "line answered twice"}
		}
		seen[line.RDOLineID] = true
		if line.DeliveryDays < 0 {
			return domain.Offer{}, domain.ValidationError{Field: field + ".delivery_days", Message: "must not be negative"}
		}
		if !line.Excluded {
			if err := checkMoney(field+".unit_price", line.UnitPrice, true); err != nil {
				return domain.Offer{}, err
			}
		}
		if line.Quantity.IsZero() {
			line.Quantity = rdoLine.Quantity
		}
		if !line.Quantity.IsPositive() {
			return domain.Offer{}, domain.ValidationError{Field: field + ".quantity", Message: "must be positive"}
		}
		offer.Lines = append(offer.Lines, line)
	}
	if len(req.AdditionalInfo) > 0 || len(rdo.MetadataSchema) > 0 {
		info, err := req.AdditionalInfo.Normalize()
		if err != nil {
			return domain.Offer{}, err
		}
		if err := rdo.MetadataSchema.Validate(info); err != nil {
			return domain.Offer{}, err
		}
		if len(info) > 0 {
			offer.AdditionalInfo = info
		}
	}
	offer.ComputeTotals()
	return offer, nil
}

// ExcludeOffer removes an offer from scoring and award with a recorded reason.
func (s *Service) ExcludeOffer(ctx context.Context, offerID string, expectedVersion int64, reason string) (domain.Offer, Result, error) {
	var updated domain.Offer
	res, err := s.run(ctx, "exclude_offer", func() subject { return subject{id: offerID, payload: updated} }, func(tx Transaction) error {
		if strings.TrimSpace(reason) == "" {
			return domain.ValidationError{Field: "reason", Message: "exclusion requires a reason"}
		}
		offer, rdo, err := s.lookupOffer(tx, offerID, expectedVersion)
		if err != nil {
			return err
		}
		if rdo.Status != domain.RDOStatusOpen && rdo.Status != domain.RDOStatusEvaluating {
			return domain.GateError{Gate: domain.GateRDOStatus, Subject: "rdo " + rdo.ID, Reason: fmt.Sprintf("cannot exclude offers while %s", rdo.Status)}
		}
		if offer.Status != domain.OfferStatusSubmitted {
			return domain.ValidationError{Field: "offer", Message: fmt.Sprintf("offer is %s", offer.Status)}
		}
		updated, err = tx.UpdateOffer(offerID, func(o *domain.Offer) error {
			o.Excluded = true
			o.ExclusionReason = strings.TrimSpace(reason)
			return nil
		})
		return err
	})
	return updated, res, err
}

// WithdrawOffer lets a vendor retract an offer while the RDO is open.
func (s *Service) WithdrawOffer(ctx context.Context, offerID string, expectedVersion int64) (domain.Offer, Result, error) {
	var updated domain.Offer
	res, err := s.run(ctx, "withdraw_offer", func() subject { return subject{id: offerID, payload: updated} }, func(tx Transaction) error {
		offer, rdo, err := s.lookupOffer(tx, offerID, expectedVersion)
		if err != nil {
			return err
		}
		if rdo.Status != domain.RDOStatusOpen {
			return domain.GateError{Gate: domain.GateRDOStatus, Subject: "rdo " + rdo.ID, Reason: "offers can be withdrawn only while open"}
		}
		if offer.Status != domain.OfferStatusSubmitted {
			return domain.ValidationError{Field: "offer", Message: fmt.Sprintf("offer is %s", offer.Status)}
		}
		updated, err = tx.UpdateOffer(offerID, func(o *domain.Offer) error {
			o.Status = domain.OfferStatusWithdrawn
			return nil
		})
		return err
	})
	return updated, res, err
}

func (s *Service) lookupOffer(tx Transaction, offerID string, expectedVersion int64) (domain.Offer, domain.RDO, error) {
	offer, ok := tx.FindOffer(offerID)
	if !ok {
		return domain.Offer{}, domain.RDO{}, ErrNotFound{Entity: domain.EntityOffer, ID: offerID}
	}
	if err := checkVersion(domain.EntityOffer, offerID, expectedVersion, offer.Version); err != nil {
		return domain.Offer{}, domain.RDO{}, err
	}
	rdo, ok := tx.FindRDO(offer.RDOID)
	if !ok {
		return domain.Offer{}, domain.RDO{}, domain.DataIntegrityError{Entity: domain.EntityOffer, ID: offerID, Detail: "offer references a missing RDO"}
	}
	return offer, rdo, nil
}

// RecordPreCheck evaluates a vendor's compliance checklist as of now and
// stores it as the vendor's latest result. Submitted offers of the vendor on
// RDOs still in play pick up the new status.
func (s *Service) RecordPreCheck(ctx context.Context, vendorID string, items []domain.PreCheckItem) (domain.PreCheckResult, Result, error) {
	var stored domain.PreCheckResult
	res, err := s.run(ctx, "record_precheck", func() subject { return subject{id: vendorID, payload: stored} }, func(tx Transaction) error {
		evaluated, err := s.prechecks.Evaluate(vendorID, items, tx.Now())
		if err != nil {
			return err
		}
		stored, err = tx.PutPreCheck(evaluated)
		if err != nil {
			return err
		}
		for _, rdo := range tx.Snapshot().ListRDOs() {
			if rdo.Status.Terminal() {
				continue
			}
			for _, o := range tx.ListOffers(rdo.ID) {
				if o.VendorID != vendorID || o.Status != domain.OfferStatusSubmitted {
					continue
				}
				if _, err := tx.UpdateOffer(o.ID, func(o *domain.Offer) error {
					o.PreCheckStatus = stored.Status
					return nil
				}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err == nil && !stored.Passed {
		s.logger.Warn("vendor pre-check failed", "vendor_id", vendorID, "status", stored.Status)
	}
	return stored, res, err
}

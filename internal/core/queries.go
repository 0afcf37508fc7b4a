package core

import (
	"context"

	"procurecore/pkg/domain"
)

// Project returns a project by id.
func (s *Service) Project(ctx context.Context, id string) (domain.Project, error) {
	var out domain.Project
	err := s.view(ctx, "get_project", func(v TransactionView) error {
		p, ok := v.FindProject(id)
		if !ok {
			return ErrNotFound{Entity: domain.EntityProject, ID: id}
		}
		out = p
		return nil
	})
	return out, err
}

// Projects lists every project.
func (s *Service) Projects(ctx context.Context) ([]domain.Project, error) {
	var out []domain.Project
	err := s.view(ctx, "list_projects", func(v TransactionView) error {
		out = v.ListProjects()
		return nil
	})
	return out, err
}

// RDO returns an RDO by id.
func (s *Service) RDO(ctx context.Context, id string) (domain.RDO, error) {
	var out domain.RDO
	err := s.view(ctx, "get_rdo", func(v TransactionView) error {
		r, ok := v.FindRDO(id)
		if !ok {
			return ErrNotFound{Entity: domain.EntityRDO, ID: id}
		}
		out = r
		return nil
	})
	return out, err
}

// RDOs lists RDOs, optionally restricted to one project.
func (s *Service) RDOs(ctx context.Context, projectID string) ([]domain.RDO, error) {
	var out []domain.RDO
	err := s.view(ctx, "list_rdos", func(v TransactionView) error {
		for _, r := range v.ListRDOs() {
			if projectID == "" || r.ProjectID == projectID {
				out = append(out, r)
			}
		}
		return nil
	})
	return out, err
}

// Offer returns an offer revision by id.
func (s *Service) Offer(ctx context.Context, id string) (domain.Offer, error) {
	var out domain.Offer
	err := s.view(ctx, "get_offer", func(v TransactionView) error {
		o, ok := v.FindOffer(id)
		if !ok {
			return ErrNotFound{Entity: domain.EntityOffer, ID: id}
		}
		out = o
		return nil
	})
	return out, err
}

// Offers lists every offer revision of an RDO, including superseded ones.
func (s *Service) Offers(ctx context.Context, rdoID string) ([]domain.Offer, error) {
	var out []domain.Offer
	err := s.view(ctx, "list_offers", func(v TransactionView) error {
		if _, ok := v.FindRDO(rdoID); !ok {
			return ErrNotFound{Entity: domain.EntityRDO, ID: rdoID}
		}
		out = v.ListOffers(rdoID)
		return nil
	})
	return out, err
}

// PreCheck returns the latest pre-check result of a vendor.
func (s *Service) PreCheck(ctx context.Context, vendorID string) (domain.PreCheckResult, error) {
	var out domain.PreCheckResult
	err := s.view(ctx, "get_precheck", func(v TransactionView) error {
		pc, ok := v.FindPreCheck(vendorID)
		if !ok {
			return ErrNotFound{Entity: domain.EntityPreCheck, ID: vendorID}
		}
		out = pc
		return nil
	})
	return out, err
}

// Comparison returns the stored comparison of an RDO.
func (s *Service) Comparison(ctx context.Context, rdoID string) (domain.Comparison, error) {
	var out domain.Comparison
	err := s.view(ctx, "get_comparison", func(v TransactionView) error {
		c, ok := v.FindComparison(rdoID)
		if !ok {
			return ErrNotFound{Entity: domain.EntityComparison, ID: rdoID}
		}
		out = c
		return nil
	})
	return out, err
}

// Bundle returns a contract bundle by id.
func (s *Service) Bundle(ctx context.Context, id string) (domain.ContractBundle, error) {
	var out domain.ContractBundle
	err := s.view(ctx, "get_bundle", func(v TransactionView) error {
		b, ok := v.FindBundle(id)
		if !ok {
			return ErrNotFound{Entity: domain.EntityContractBundle, ID: id}
		}
		out = b
		return nil
	})
	return out, err
}

// Bundles lists the bundles awarded from an RDO.
func (s *Service) Bundles(ctx context.Context, rdoID string) ([]domain.ContractBundle, error) {
	var out []domain.ContractBundle
	err := s.view(ctx, "list_bundles", func(v TransactionView) error {
		out = v.ListBundles(rdoID)
		return nil
	})
	return out, err
}

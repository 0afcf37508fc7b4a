package memory

import (
	"github.com/shopspring/decimal"

	"procurecore/pkg/domain"
)

func cloneProject(p domain.Project) domain.Project {
	cp := p
	cp.CostBuckets = cloneDecimals(p.CostBuckets)
	cp.Timing.PeriodWeights = append([]float64(nil), p.Timing.PeriodWeights...)
	cp.Metrics = cloneMetrics(p.Metrics)
	if p.LastSync != nil {
		t := *p.LastSync
		cp.LastSync = &t
	}
	return cp
}

func cloneMetrics(m domain.Metrics) domain.Metrics {
	if m.IRR != nil {
		v := *m.IRR
		m.IRR = &v
	}
	return m
}

func cloneRDO(r domain.RDO) domain.RDO {
	cp := r
	cp.Lines = make([]domain.RDOLine, len(r.Lines))
	for i, line := range r.Lines {
		cp.Lines[i] = line
		if line.Specifications != nil {
			specs := make(map[string]string, len(line.Specifications))
			for k, v := range line.Specifications {
				specs[k] = v
			}
			cp.Lines[i].Specifications = specs
		}
	}
	cp.InvitedVendors = append([]string(nil), r.InvitedVendors...)
	cp.Weights.Custom = cloneFloats(r.Weights.Custom)
	if r.MetadataSchema != nil {
		cp.MetadataSchema = make(domain.MetadataSchema, len(r.MetadataSchema))
		for k, v := range r.MetadataSchema {
			cp.MetadataSchema[k] = v
		}
	}
	if r.Award != nil {
		award := *r.Award
		award.BundleIDs = append([]string(nil), r.Award.BundleIDs...)
		award.CoverageGaps = append([]string(nil), r.Award.CoverageGaps...)
		cp.Award = &award
	}
	return cp
}

func cloneOffer(o domain.Offer) domain.Offer {
	cp := o
	cp.Lines = append([]domain.OfferLine(nil), o.Lines...)
	if o.QualityScore != nil {
		v := *o.QualityScore
		cp.QualityScore = &v
	}
	cp.AdditionalInfo = o.AdditionalInfo.Clone()
	if o.Scoring != nil {
		s := cloneScoring(*o.Scoring)
		cp.Scoring = &s
	}
	if o.Ranking != nil {
		r := *o.Ranking
		cp.Ranking = &r
	}
	return cp
}

func cloneScoring(s domain.OfferScoring) domain.OfferScoring {
	s.CustomScores = cloneFloats(s.CustomScores)
	s.OutlierReasons = append([]string(nil), s.OutlierReasons...)
	s.Warnings = append([]string(nil), s.Warnings...)
	return s
}

func clonePreCheck(p domain.PreCheckResult) domain.PreCheckResult {
	cp := p
	cp.Items = make([]domain.PreCheckItem, len(p.Items))
	for i, item := range p.Items {
		cp.Items[i] = item
		if item.ExpiryDate != nil {
			t := *item.ExpiryDate
			cp.Items[i].ExpiryDate = &t
		}
	}
	return cp
}

func cloneComparison(c domain.Comparison) domain.Comparison {
	cp := c
	cp.Ranked = make([]domain.RankedOffer, len(c.Ranked))
	for i, r := range c.Ranked {
		cp.Ranked[i] = r
		cp.Ranked[i].Scoring = cloneScoring(r.Scoring)
	}
	cp.ExcludedOfferIDs = append([]string(nil), c.ExcludedOfferIDs...)
	cp.Outliers = append([]domain.OutlierAnalysis(nil), c.Outliers...)
	cp.Warnings = append([]string(nil), c.Warnings...)
	return cp
}

func cloneBundle(b domain.ContractBundle) domain.ContractBundle {
	cp := b
	cp.Lines = append([]domain.ContractLine(nil), b.Lines...)
	cp.Milestones = make([]domain.Milestone, len(b.Milestones))
	for i, m := range b.Milestones {
		cp.Milestones[i] = m
		if m.PaidAt != nil {
			t := *m.PaidAt
			cp.Milestones[i].PaidAt = &t
		}
	}
	return cp
}

func cloneSyncSnapshot(s domain.SyncSnapshot) domain.SyncSnapshot {
	cp := s
	cp.Lines = make(map[string]domain.LineSnapshot, len(s.Lines))
	for k, v := range s.Lines {
		cp.Lines[k] = v
	}
	return cp
}

func cloneSyncResult(r domain.SyncResult) domain.SyncResult {
	cp := r
	cp.Lines = append([]domain.LineDelta(nil), r.Lines...)
	cp.Buckets = cloneDecimals(r.Buckets)
	cp.Before = cloneMetrics(r.Before)
	cp.After = cloneMetrics(r.After)
	cp.Recommendations = append([]string(nil), r.Recommendations...)
	if r.CommittedAt != nil {
		t := *r.CommittedAt
		cp.CommittedAt = &t
	}
	return cp
}

func cloneDecimals(in map[string]decimal.Decimal) map[string]decimal.Decimal {
	if in == nil {
		return nil
	}
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneFloats(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

package bpsync

import (
	"math"

	"github.com/shopspring/decimal"

	"procurecore/pkg/domain"
)

// FinancialModel computes plan metrics for a given revenue and total cost.
type FinancialModel interface {
	ComputeMetrics(revenue, totalCost decimal.Decimal, timing domain.Timing) (domain.Metrics, error)
}

// FinancialModelFunc adapts a function to FinancialModel.
type FinancialModelFunc func(revenue, totalCost decimal.Decimal, timing domain.Timing) (domain.Metrics, error)

// ComputeMetrics implements FinancialModel.
func (f FinancialModelFunc) ComputeMetrics(revenue, totalCost decimal.Decimal, timing domain.Timing) (domain.Metrics, error) {
	return f(revenue, totalCost, timing)
}

// DCFModel treats the total cost as an upfront outlay and spreads revenue over
// the timing periods, discounting each at Timing.DiscountRate.
type DCFModel struct{}

// ComputeMetrics implements FinancialModel.
func (DCFModel) ComputeMetrics(revenue, totalCost decimal.Decimal, timing domain.Timing) (domain.Metrics, error) {
	if timing.DiscountRate <= -1 || math.IsNaN(timing.DiscountRate) {
		return domain.Metrics{}, domain.ValidationError{Field: "timing.discount_rate", Message: "must be greater than -1"}
	}
	weights, err := normalizeWeights(timing.PeriodWeights)
	if err != nil {
		return domain.Metrics{}, err
	}
	rev := revenue.InexactFloat64()
	cost := totalCost.InexactFloat64()
	var m domain.Metrics
	if rev != 0 {
		m.Margin = round2((rev - cost) / rev * 100)
	}
	if cost != 0 {
		m.ROI = round2((rev - cost) / cost * 100)
	}
	flows := make([]float64, len(weights)+1)
	flows[0] = -cost
	for i, w := range weights {
		flows[i+1] = rev * w
	}
	m.NPV = domain.MoneyFromFloat(npv(flows, timing.DiscountRate))
	if irr, ok := solveIRR(flows); ok {
		v := round4(irr)
		m.IRR = &v
	}
	return m, nil
}

func normalizeWeights(weights []float64) ([]float64, error) {
	if len(weights) == 0 {
		return []float64{1}, nil
	}
	sum := 0.0
	for _, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, domain.ValidationError{Field: "timing.period_weights", Message: "weights must be finite and non-negative"}
		}
		sum += w
	}
	if sum == 0 {
		return nil, domain.ValidationError{Field: "timing.period_weights", Message: "weights must not all be zero"}
	}
	out := make([]float64, len(weights))
	for i, w := range weights {
		out[i] = w / sum
	}
	return out, nil
}

func npv(flows []float64, rate float64) float64 {
	total := 0.0
	for t, cf := range flows {
		total += cf / math.Pow(1+rate, float64(t))
	}
	return total
}

// solveIRR bisects for the rate zeroing NPV. It reports false when the
// bracket holds no sign change.
func solveIRR(flows []float64) (float64, bool) {
	lo, hi := -0.99, 10.0
	fLo, fHi := npv(flows, lo), npv(flows, hi)
	if math.IsNaN(fLo) || math.IsNaN(fHi) || fLo*fHi > 0 {
		return 0, false
	}
	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		fMid := npv(flows, mid)
		if math.Abs(fMid) < 1e-9 || hi-lo < 1e-12 {
			return mid, true
		}
		if fLo*fMid < 0 {
			hi = mid
		} else {
			lo, fLo = mid, fMid
		}
	}
	return (lo + hi) / 2, true
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }

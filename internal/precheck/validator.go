// Package precheck evaluates vendor compliance checklists and decides award
// eligibility.
package precheck

import (
	"fmt"
	"math"
	"time"

	"procurecore/pkg/domain"
)

// Config selects required checklist items and their weight in the overall score.
type Config struct {
	Required map[domain.PreCheckType]bool    `yaml:"required"`
	Weights  map[domain.PreCheckType]float64 `yaml:"weights"`
}

// DefaultConfig requires every checklist type.
func DefaultConfig() Config {
	return Config{
		Required: map[domain.PreCheckType]bool{
			domain.PreCheckDURC:          true,
			domain.PreCheckVisura:        true,
			domain.PreCheckCertification: true,
			domain.PreCheckInsurance:     true,
			domain.PreCheckFinancial:     true,
		},
		Weights: map[domain.PreCheckType]float64{
			domain.PreCheckDURC:          0.25,
			domain.PreCheckVisura:        0.20,
			domain.PreCheckCertification: 0.20,
			domain.PreCheckInsurance:     0.20,
			domain.PreCheckFinancial:     0.15,
		},
	}
}

// Validator evaluates checklists against a Config.
type Validator struct {
	cfg Config
}

// NewValidator constructs a validator. Missing weights default to 1.
func NewValidator(cfg Config) *Validator {
	return &Validator{cfg: cfg}
}

func (v *Validator) weight(t domain.PreCheckType) float64 {
	if w, ok := v.cfg.Weights[t]; ok && w > 0 {
		return w
	}
	return 1
}

// Evaluate normalizes items reported by the compliance collaborator and
// computes the vendor's pre-check result as of the evaluation instant. Each
// checklist type may appear at most once.
func (v *Validator) Evaluate(vendorID string, items []domain.PreCheckItem, at time.Time) (domain.PreCheckResult, error) {
	if vendorID == "" {
		return domain.PreCheckResult{}, domain.ValidationError{Field: "vendor_id", Message: "required"}
	}
	byType := make(map[domain.PreCheckType]domain.PreCheckItem, len(items))
	for _, item := range items {
		if !known(item.Type) {
			return domain.PreCheckResult{}, domain.ValidationError{Field: "items.type", Message: fmt.Sprintf("unknown checklist item %q", item.Type)}
		}
		if math.IsNaN(item.Score) {
			return domain.PreCheckResult{}, domain.ValidationError{Field: "items.score", Message: "score must be a number"}
		}
		if _, dup := byType[item.Type]; dup {
			return domain.PreCheckResult{}, domain.ValidationError{Field: "items.type", Message: fmt.Sprintf("checklist item %q reported more than once", item.Type)}
		}
		byType[item.Type] = item
	}

	res := domain.PreCheckResult{
		Base:        domain.Base{ID: vendorID},
		VendorID:    vendorID,
		EvaluatedAt: at.UTC(),
		Passed:      true,
	}
	var weightSum, scoreSum float64
	optionalIssue := false
	for _, t := range domain.AllPreCheckTypes {
		item, present := byType[t]
		required := v.cfg.Required[t] || (present && item.Required)
		if !present {
			if !required {
				continue
			}
			item = domain.PreCheckItem{Type: t}
		}
		item.Required = required
		item.Status = evaluateStatus(item, present, at)
		item.Score = clamp(item.Score)
		res.Items = append(res.Items, item)

		if required {
			w := v.weight(t)
			weightSum += w
			if item.Status == domain.ItemValid {
				scoreSum += w * item.Score
			} else {
				res.Passed = false
			}
		} else if item.Status != domain.ItemValid {
			optionalIssue = true
		}
	}
	if weightSum > 0 {
		res.OverallScore = math.Round(scoreSum/weightSum*100) / 100
	}
	switch {
	case !res.Passed:
		res.Status = domain.PreCheckFailed
	case optionalIssue:
		res.Status = domain.PreCheckWarning
	default:
		res.Status = domain.PreCheckPassed
	}
	return res, nil
}

// evaluateStatus trusts the collaborator's negative verdicts and re-checks
// expiry on positive ones.
func evaluateStatus(item domain.PreCheckItem, present bool, at time.Time) domain.ItemStatus {
	if !present {
		return domain.ItemMissing
	}
	switch item.Status {
	case domain.ItemMissing, domain.ItemInvalid, domain.ItemExpired:
		return item.Status
	case domain.ItemValid:
	case "":
		return domain.ItemMissing
	default:
		return domain.ItemInvalid
	}
	if item.ExpiryDate != nil && day(*item.ExpiryDate).Before(day(at)) {
		return domain.ItemExpired
	}
	return domain.ItemValid
}

// Gate returns a GateError unless the result allows an award.
func Gate(res domain.PreCheckResult, found bool) error {
	if !found {
		return domain.GateError{Gate: domain.GatePreCheck, Subject: "vendor", Reason: "no pre-check on record"}
	}
	if !res.Passed {
		return domain.GateError{Gate: domain.GatePreCheck, Subject: "vendor " + res.VendorID, Reason: "latest pre-check failed: " + failing(res)}
	}
	return nil
}

func failing(res domain.PreCheckResult) string {
	out := ""
	for _, item := range res.Items {
		if item.Required && item.Status != domain.ItemValid {
			if out != "" {
				out += ", "
			}
			out += fmt.Sprintf("%s=%s", item.Type, item.Status)
		}
	}
	return out
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func known(t domain.PreCheckType) bool {
	for _, k := range domain.AllPreCheckTypes {
		if k == t {
			return true
		}
	}
	return false
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

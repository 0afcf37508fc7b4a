package domain

import "time"

// PreCheckType enumerates compliance checklist items.
type PreCheckType string

// Compliance checklist item types.
const (
	PreCheckDURC          PreCheckType = "durc"
	PreCheckVisura        PreCheckType = "visura"
	PreCheckCertification PreCheckType = "certification"
	PreCheckInsurance     PreCheckType = "insurance"
	PreCheckFinancial     PreCheckType = "financial"
)

// AllPreCheckTypes lists checklist items in canonical order.
var AllPreCheckTypes = []PreCheckType{
	PreCheckDURC,
	PreCheckVisura,
	PreCheckCertification,
	PreCheckInsurance,
	PreCheckFinancial,
}

// ItemStatus is the evaluated state of a checklist item.
type ItemStatus string

// Checklist item states.
const (
	ItemValid   ItemStatus = "valid"
	ItemExpired ItemStatus = "expired"
	ItemMissing ItemStatus = "missing"
	ItemInvalid ItemStatus = "invalid"
)

// PreCheckItem is one compliance item as reported by the document collaborator.
type PreCheckItem struct {
	Type        PreCheckType `json:"type"`
	Status      ItemStatus   `json:"status"`
	DocumentURL string       `json:"document_url,omitempty"`
	ExpiryDate  *time.Time   `json:"expiry_date,omitempty"`
	Score       float64      `json:"score"`
	Notes       string       `json:"notes,omitempty"`
	Required    bool         `json:"required"`
}

// PreCheckStatus summarizes a vendor's checklist.
type PreCheckStatus string

// Aggregate pre-check outcomes.
const (
	PreCheckPassed  PreCheckStatus = "passed"
	PreCheckWarning PreCheckStatus = "warning"
	PreCheckFailed  PreCheckStatus = "failed"
)

// PreCheckResult is the latest evaluated checklist for a vendor. The record ID
// is the vendor ID.
type PreCheckResult struct {
	Base
	VendorID     string         `json:"vendor_id"`
	Items        []PreCheckItem `json:"items"`
	OverallScore float64        `json:"overall_score"`
	Passed       bool           `json:"passed"`
	Status       PreCheckStatus `json:"status"`
	EvaluatedAt  time.Time      `json:"evaluated_at"`
}

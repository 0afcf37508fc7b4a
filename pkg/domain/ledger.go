package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SALKind distinguishes progress entries from offsetting corrections.
type SALKind string

// SAL entry kinds.
const (
	SALProgress   SALKind = "progress"
	SALCorrection SALKind = "correction"
)

// SALEntry is an immutable record of realized work against a contract line.
// ConsumedToDate, RemainingBudget, IsOverrun and Delta capture the line state
// right after the entry was appended.
type SALEntry struct {
	ID              string          `json:"id"`
	ContractLineID  string          `json:"contract_line_id"`
	BundleID        string          `json:"bundle_id"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
	Kind            SALKind         `json:"kind"`
	CorrectsEntryID string          `json:"corrects_entry_id,omitempty"`
	RecordedAt      time.Time       `json:"recorded_at"`
	ConsumedToDate  decimal.Decimal `json:"consumed_to_date"`
	RemainingBudget decimal.Decimal `json:"remaining_budget"`
	IsOverrun       bool            `json:"is_overrun"`
	Delta           decimal.Decimal `json:"delta"`
}

// LineLedger is the aggregate state of one contract line.
type LineLedger struct {
	ContractLineID  string          `json:"contract_line_id"`
	BundleID        string          `json:"bundle_id"`
	ContractedValue decimal.Decimal `json:"contracted_value"`
	ConsumedToDate  decimal.Decimal `json:"consumed_to_date"`
	RemainingBudget decimal.Decimal `json:"remaining_budget"`
	IsOverrun       bool            `json:"is_overrun"`
	Delta           decimal.Decimal `json:"delta"`
	EntryCount      int             `json:"entry_count"`
	LastUpdated     time.Time       `json:"last_updated"`
}

// BundleSettlement summarizes a bundle's realized cost against its total.
type BundleSettlement struct {
	BundleID       string          `json:"bundle_id"`
	VendorID       string          `json:"vendor_id"`
	Total          decimal.Decimal `json:"total"`
	Consuntivo     decimal.Decimal `json:"consuntivo"`
	DeltaVsBudget  decimal.Decimal `json:"delta_vs_budget"`
	Lines          []LineLedger    `json:"lines"`
	MilestonesPaid int             `json:"milestones_paid"`
	MilestoneCount int             `json:"milestone_count"`
	LastUpdated    time.Time       `json:"last_updated"`
}

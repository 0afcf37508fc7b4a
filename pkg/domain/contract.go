package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ContractLine is an awarded RDO line priced from the winning vendor's offer.
type ContractLine struct {
	ID              string          `json:"id"`
	RDOLineID       string          `json:"rdo_line_id"`
	Description     string          `json:"description"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	ContractedValue decimal.Decimal `json:"contracted_value"`
	CostBucket      string          `json:"cost_bucket"`
}

// MilestoneStatus enumerates payment milestone states.
type MilestoneStatus string

// Milestone states. pending -> payable -> paid, or pending -> skipped by override.
const (
	MilestonePending MilestoneStatus = "pending"
	MilestonePayable MilestoneStatus = "payable"
	MilestonePaid    MilestoneStatus = "paid"
	MilestoneSkipped MilestoneStatus = "skipped"
)

// Settled reports whether the milestone no longer blocks its successor.
func (s MilestoneStatus) Settled() bool {
	return s == MilestonePaid || s == MilestoneSkipped
}

// MilestoneTemplate describes a payment step as a percentage of bundle value.
type MilestoneTemplate struct {
	Name        string          `json:"name" yaml:"name"`
	Percentage  decimal.Decimal `json:"percentage" yaml:"percentage"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
}

// Milestone is a scheduled partial payment.
type Milestone struct {
	Index       int             `json:"index"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Percentage  decimal.Decimal `json:"percentage"`
	Amount      decimal.Decimal `json:"amount"`
	Status      MilestoneStatus `json:"status"`
	PaidAt      *time.Time      `json:"paid_at,omitempty"`
	SkipReason  string          `json:"skip_reason,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ContractBundle groups the lines awarded to one vendor with their payment schedule.
type ContractBundle struct {
	Base
	RDOID      string          `json:"rdo_id"`
	ProjectID  string          `json:"project_id"`
	VendorID   string          `json:"vendor_id"`
	OfferID    string          `json:"offer_id"`
	Group      int             `json:"group"`
	Lines      []ContractLine  `json:"lines"`
	Total      decimal.Decimal `json:"total"`
	Milestones []Milestone     `json:"milestones"`
}

// LinesTotal recomputes the bundle value from its lines.
func (b ContractBundle) LinesTotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range b.Lines {
		total = total.Add(Money(line.UnitPrice.Mul(line.Quantity)))
	}
	return total
}

// MilestonesTotal sums the scheduled milestone amounts.
func (b ContractBundle) MilestonesTotal() decimal.Decimal {
	total := decimal.Zero
	for _, m := range b.Milestones {
		total = total.Add(m.Amount)
	}
	return total
}

// Line returns the contract line with the given id.
func (b ContractBundle) Line(id string) (ContractLine, bool) {
	for _, line := range b.Lines {
		if line.ID == id {
			return line, true
		}
	}
	return ContractLine{}, false
}

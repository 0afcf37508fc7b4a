package sal

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"procurecore/pkg/domain"
)

// Status aggregates a line's history. Overruns are reported, never clamped.
func Status(line domain.ContractLine, bundleID string, history []domain.SALEntry) domain.LineLedger {
	consumed := decimal.Zero
	var last time.Time
	for _, e := range history {
		consumed = consumed.Add(e.Amount)
		if e.RecordedAt.After(last) {
			last = e.RecordedAt
		}
	}
	st := domain.LineLedger{
		ContractLineID:  line.ID,
		BundleID:        bundleID,
		ContractedValue: line.ContractedValue,
		ConsumedToDate:  consumed,
		RemainingBudget: line.ContractedValue.Sub(consumed),
		EntryCount:      len(history),
		LastUpdated:     last,
	}
	if st.RemainingBudget.IsNegative() {
		st.IsOverrun = true
		st.Delta = st.RemainingBudget.Neg()
	}
	return st
}

// Progress builds the next progress entry for line given its history. The
// entry carries the line state immediately after it is applied.
func Progress(line domain.ContractLine, bundleID string, history []domain.SALEntry, amount decimal.Decimal, description, id string, at time.Time) (domain.SALEntry, error) {
	if err := checkAmount(amount); err != nil {
		return domain.SALEntry{}, err
	}
	if !amount.IsPositive() {
		return domain.SALEntry{}, domain.ValidationError{Field: "amount", Message: "progress amount must be positive"}
	}
	return next(line, bundleID, history, domain.SALEntry{
		ID:          id,
		Amount:      amount,
		Description: strings.TrimSpace(description),
		Kind:        domain.SALProgress,
		RecordedAt:  at.UTC(),
	}), nil
}

// Correction builds an offsetting entry against a prior progress entry of the
// same line. amount is the positive value to reverse; it may not exceed what
// is left of the corrected entry after earlier corrections.
func Correction(line domain.ContractLine, bundleID string, history []domain.SALEntry, correctsID string, amount decimal.Decimal, description, id string, at time.Time) (domain.SALEntry, error) {
	if err := checkAmount(amount); err != nil {
		return domain.SALEntry{}, err
	}
	if !amount.IsPositive() {
		return domain.SALEntry{}, domain.ValidationError{Field: "amount", Message: "correction amount must be positive"}
	}
	if strings.TrimSpace(description) == "" {
		return domain.SALEntry{}, domain.ValidationError{Field: "description", Message: "a correction requires a reason"}
	}
	var target *domain.SALEntry
	reversed := decimal.Zero
	for i := range history {
		e := history[i]
		if e.ID == correctsID && e.Kind == domain.SALProgress {
			target = &history[i]
		}
		if e.Kind == domain.SALCorrection && e.CorrectsEntryID == correctsID {
			reversed = reversed.Add(e.Amount.Neg())
		}
	}
	if target == nil {
		return domain.SALEntry{}, domain.ValidationError{Field: "corrects_entry_id", Message: fmt.Sprintf("no progress entry %q on line %s", correctsID, line.ID)}
	}
	if left := target.Amount.Sub(reversed); amount.GreaterThan(left) {
		return domain.SALEntry{}, domain.ValidationError{Field: "amount", Message: fmt.Sprintf("correction %s exceeds the %s left on entry %s", amount.StringFixed(2), left.StringFixed(2), correctsID)}
	}
	return next(line, bundleID, history, domain.SALEntry{
		ID:              id,
		Amount:          amount.Neg(),
		Description:     strings.TrimSpace(description),
		Kind:            domain.SALCorrection,
		CorrectsEntryID: correctsID,
		RecordedAt:      at.UTC(),
	}), nil
}

func next(line domain.ContractLine, bundleID string, history []domain.SALEntry, entry domain.SALEntry) domain.SALEntry {
	entry.ContractLineID = line.ID
	entry.BundleID = bundleID
	after := append(append([]domain.SALEntry(nil), history...), entry)
	st := Status(line, bundleID, after)
	entry.ConsumedToDate = st.ConsumedToDate
	entry.RemainingBudget = st.RemainingBudget
	entry.IsOverrun = st.IsOverrun
	entry.Delta = st.Delta
	return entry
}

// Warning returns the OverrunWarning carried by entry, or nil.
func Warning(entry domain.SALEntry) error {
	if !entry.IsOverrun {
		return nil
	}
	return domain.OverrunWarning{ContractLineID: entry.ContractLineID, Delta: entry.Delta}
}

// Settle summarizes a bundle from the histories of its lines.
func Settle(bundle domain.ContractBundle, histories map[string][]domain.SALEntry) domain.BundleSettlement {
	out := domain.BundleSettlement{
		BundleID:       bundle.ID,
		VendorID:       bundle.VendorID,
		Total:          bundle.Total,
		Consuntivo:     decimal.Zero,
		MilestoneCount: len(bundle.Milestones),
	}
	for _, line := range bundle.Lines {
		st := Status(line, bundle.ID, histories[line.ID])
		out.Lines = append(out.Lines, st)
		out.Consuntivo = out.Consuntivo.Add(st.ConsumedToDate)
		if st.LastUpdated.After(out.LastUpdated) {
			out.LastUpdated = st.LastUpdated
		}
	}
	for _, m := range bundle.Milestones {
		if m.Status == domain.MilestonePaid {
			out.MilestonesPaid++
		}
	}
	out.DeltaVsBudget = out.Consuntivo.Sub(bundle.Total)
	return out
}

func checkAmount(amount decimal.Decimal) error {
	if !amount.Equal(amount.Round(domain.MoneyPlaces)) {
		return domain.ValidationError{Field: "amount", Message: "money values carry at most 2 decimal places"}
	}
	return nil
}

package core

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"procurecore/internal/milestone"
	"procurecore/internal/sal"
	"procurecore/pkg/domain"
)

// SALReceipt is returned for every appended SAL entry. Warning is set when the
// line is over its contracted value after the entry; the entry is stored
// regardless.
type SALReceipt struct {
	Entry   domain.SALEntry        `json:"entry"`
	Line    domain.LineLedger      `json:"line"`
	Warning *domain.OverrunWarning `json:"warning,omitempty"`
}

// RecordSAL appends a progress entry against a contract line.
func (s *Service) RecordSAL(ctx context.Context, contractLineID string, amount decimal.Decimal, description string) (SALReceipt, Result, error) {
	return s.appendSAL(ctx, "record_sal", contractLineID, func(line domain.ContractLine, bundleID string, history []domain.SALEntry, tx Transaction) (domain.SALEntry, error) {
		return sal.Progress(line, bundleID, history, amount, description, "", tx.Now())
	})
}

// CorrectSAL appends an offsetting entry that reverses part or all of an
// earlier progress entry on the same line.
func (s *Service) CorrectSAL(ctx context.Context, contractLineID, correctsEntryID string, amount decimal.Decimal, reason string) (SALReceipt, Result, error) {
	return s.appendSAL(ctx, "correct_sal", contractLineID, func(line domain.ContractLine, bundleID string, history []domain.SALEntry, tx Transaction) (domain.SALEntry, error) {
		return sal.Correction(line, bundleID, history, correctsEntryID, amount, reason, "", tx.Now())
	})
}

type salBuilder func(line domain.ContractLine, bundleID string, history []domain.SALEntry, tx Transaction) (domain.SALEntry, error)

func (s *Service) appendSAL(ctx context.Context, op, contractLineID string, build salBuilder) (SALReceipt, Result, error) {
	var receipt SALReceipt
	res, err := s.run(ctx, op, func() subject { return subject{id: receipt.Entry.ID, payload: receipt.Entry} }, func(tx Transaction) error {
		bundle, line, ok := tx.FindContractLine(contractLineID)
		if !ok {
			return ErrNotFound{Entity: domain.EntityContractLine, ID: contractLineID}
		}
		history := tx.ListSALEntries(line.ID)
		entry, err := build(line, bundle.ID, history, tx)
		if err != nil {
			return err
		}
		stored, err := tx.AppendSALEntry(entry)
		if err != nil {
			return err
		}
		receipt.Entry = stored
		receipt.Line = sal.Status(line, bundle.ID, append(history, stored))
		return nil
	})
	if err != nil {
		return SALReceipt{}, res, err
	}
	var overrun domain.OverrunWarning
	if warn := sal.Warning(receipt.Entry); warn != nil && errors.As(warn, &overrun) {
		receipt.Warning = &overrun
	}
	s.publish(ctx, EventSALRecorded, receipt.Entry.ContractLineID, receipt)
	return receipt, res, nil
}

// MarkMilestonePayable releases a pending milestone whose predecessor is settled.
func (s *Service) MarkMilestonePayable(ctx context.Context, bundleID string, index int, expectedVersion int64) (domain.ContractBundle, Result, error) {
	return s.transitionMilestone(ctx, "mark_milestone_payable", bundleID, index, expectedVersion, domain.MilestonePayable, "")
}

// MarkMilestonePaid records payment of a payable milestone.
func (s *Service) MarkMilestonePaid(ctx context.Context, bundleID string, index int, expectedVersion int64) (domain.ContractBundle, Result, error) {
	return s.transitionMilestone(ctx, "mark_milestone_paid", bundleID, index, expectedVersion, domain.MilestonePaid, "")
}

// SkipMilestone settles a pending milestone without payment. A reason is required.
func (s *Service) SkipMilestone(ctx context.Context, bundleID string, index int, expectedVersion int64, reason string) (domain.ContractBundle, Result, error) {
	return s.transitionMilestone(ctx, "skip_milestone", bundleID, index, expectedVersion, domain.MilestoneSkipped, reason)
}

func (s *Service) transitionMilestone(ctx context.Context, op, bundleID string, index int, expectedVersion int64, to domain.MilestoneStatus, reason string) (domain.ContractBundle, Result, error) {
	var updated domain.ContractBundle
	res, err := s.run(ctx, op, func() subject { return subject{id: bundleID, payload: updated} }, func(tx Transaction) error {
		bundle, ok := tx.FindBundle(bundleID)
		if !ok {
			return ErrNotFound{Entity: domain.EntityContractBundle, ID: bundleID}
		}
		if err := checkVersion(domain.EntityContractBundle, bundleID, expectedVersion, bundle.Version); err != nil {
			return err
		}
		schedule, err := milestone.Transition(bundle.Milestones, index, to, reason, tx.Now())
		if err != nil {
			return err
		}
		updated, err = tx.UpdateBundle(bundleID, func(b *domain.ContractBundle) error {
			b.Milestones = schedule
			return nil
		})
		if err != nil {
			return err
		}
		return milestone.Reconcile(updated)
	})
	return updated, res, err
}

// LineLedger returns the aggregate SAL state of a contract line.
func (s *Service) LineLedger(ctx context.Context, contractLineID string) (domain.LineLedger, error) {
	var out domain.LineLedger
	err := s.view(ctx, "line_ledger", func(v TransactionView) error {
		bundle, line, ok := v.FindContractLine(contractLineID)
		if !ok {
			return ErrNotFound{Entity: domain.EntityContractLine, ID: contractLineID}
		}
		out = sal.Status(line, bundle.ID, v.ListSALEntries(line.ID))
		return nil
	})
	return out, err
}

// SALHistory lists a contract line's entries in append order.
func (s *Service) SALHistory(ctx context.Context, contractLineID string) ([]domain.SALEntry, error) {
	var out []domain.SALEntry
	err := s.view(ctx, "sal_history", func(v TransactionView) error {
		if _, _, ok := v.FindContractLine(contractLineID); !ok {
			return ErrNotFound{Entity: domain.EntityContractLine, ID: contractLineID}
		}
		out = v.ListSALEntries(contractLineID)
		return nil
	})
	return out, err
}

// BundleSettlement summarizes realized cost and milestone progress of a bundle.
func (s *Service) BundleSettlement(ctx context.Context, bundleID string) (domain.BundleSettlement, error) {
	report, err := s.settlementReport(ctx, "bundle_settlement", bundleID)
	return report.Settlement, err
}

// SettlementReport is a consistent read of a bundle, its settlement summary
// and the SAL history of every line, keyed by contract line id.
type SettlementReport struct {
	Bundle     domain.ContractBundle
	Settlement domain.BundleSettlement
	Entries    map[string][]domain.SALEntry
}

// SettlementReport reads everything the settlement workbook needs in one view.
func (s *Service) SettlementReport(ctx context.Context, bundleID string) (SettlementReport, error) {
	return s.settlementReport(ctx, "settlement_report", bundleID)
}

func (s *Service) settlementReport(ctx context.Context, op, bundleID string) (SettlementReport, error) {
	var out SettlementReport
	err := s.view(ctx, op, func(v TransactionView) error {
		bundle, ok := v.FindBundle(bundleID)
		if !ok {
			return ErrNotFound{Entity: domain.EntityContractBundle, ID: bundleID}
		}
		histories := make(map[string][]domain.SALEntry, len(bundle.Lines))
		for _, line := range bundle.Lines {
			histories[line.ID] = v.ListSALEntries(line.ID)
		}
		out = SettlementReport{Bundle: bundle, Settlement: sal.Settle(bundle, histories), Entries: histories}
		return nil
	})
	return out, err
}

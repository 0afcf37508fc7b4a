package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ValidationError reports malformed input rejected before any state change.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// ConflictError reports a stale write or a concurrent run that must be retried
// after re-fetching.
type ConflictError struct {
	Entity   EntityType
	ID       string
	Expected int64
	Actual   int64
	Reason   string
}

func (e ConflictError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("conflict on %s %s: %s", e.Entity, e.ID, e.Reason)
	}
	return fmt.Sprintf("conflict on %s %s: expected version %d, found %d", e.Entity, e.ID, e.Expected, e.Actual)
}

// GateError reports a business gate that requires a human decision.
type GateError struct {
	Gate    string
	Subject string
	Reason  string
}

func (e GateError) Error() string {
	return fmt.Sprintf("gate %s blocked %s: %s", e.Gate, e.Subject, e.Reason)
}

// Gate names used by GateError.
const (
	GatePreCheck          = "precheck"
	GateMilestoneSequence = "milestone_sequence"
	GateVendorEligibility = "vendor_eligibility"
	GateRDOStatus         = "rdo_status"
)

// OverrunWarning flags a SAL entry that drove a line past its contracted value.
// It accompanies a successful write and never blocks it.
type OverrunWarning struct {
	ContractLineID string
	Delta          decimal.Decimal
}

func (e OverrunWarning) Error() string {
	return fmt.Sprintf("contract line %s overrun by %s", e.ContractLineID, e.Delta.StringFixed(MoneyPlaces))
}

// DataIntegrityError reports a reconciliation mismatch. It indicates a defect
// rather than bad input and always aborts the transaction.
type DataIntegrityError struct {
	Entity EntityType
	ID     string
	Detail string
}

func (e DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity: %s %s: %s", e.Entity, e.ID, e.Detail)
}

// AllocationError describes one problem found while validating award decisions.
type AllocationError struct {
	LineID   string
	VendorID string
	Err      error
}

func (e AllocationError) Error() string {
	switch {
	case e.LineID != "" && e.VendorID != "":
		return fmt.Sprintf("line %s -> vendor %s: %v", e.LineID, e.VendorID, e.Err)
	case e.LineID != "":
		return fmt.Sprintf("line %s: %v", e.LineID, e.Err)
	case e.VendorID != "":
		return fmt.Sprintf("vendor %s: %v", e.VendorID, e.Err)
	}
	return e.Err.Error()
}

func (e AllocationError) Unwrap() error { return e.Err }

// AllocationErrors aggregates every AllocationError of a rejected award pass.
type AllocationErrors []AllocationError

func (e AllocationErrors) Error() string {
	parts := make([]string, len(e))
	for i, err := range e {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("award rejected (%d problems): %s", len(e), strings.Join(parts, "; "))
}

// Unwrap exposes the underlying typed errors to errors.Is and errors.As.
func (e AllocationErrors) Unwrap() []error {
	out := make([]error, len(e))
	for i := range e {
		out[i] = e[i]
	}
	return out
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

// IsConflict reports whether err carries a ConflictError.
func IsConflict(err error) bool {
	var target ConflictError
	return errors.As(err, &target)
}

// IsGate reports whether err carries a GateError.
func IsGate(err error) bool {
	var target GateError
	return errors.As(err, &target)
}

// IsDataIntegrity reports whether err carries a DataIntegrityError.
func IsDataIntegrity(err error) bool {
	var target DataIntegrityError
	return errors.As(err, &target)
}

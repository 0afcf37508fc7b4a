// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by procurecore.
package domain

import (
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityProject identifies a project and its business plan.
	EntityProject EntityType = "project"
	// EntityRDO identifies a request-for-offer record.
	EntityRDO EntityType = "rdo"
	// EntityOffer identifies a vendor offer revision.
	EntityOffer EntityType = "offer"
	// EntityPreCheck identifies a vendor compliance pre-check result.
	EntityPreCheck EntityType = "precheck"
	// EntityComparison identifies the computed comparison for an RDO.
	EntityComparison EntityType = "comparison"
	// EntityContractBundle identifies a per-vendor contract bundle.
	EntityContractBundle EntityType = "contract_bundle"
	// EntityContractLine identifies a single awarded line inside a bundle.
	EntityContractLine EntityType = "contract_line"
	// EntitySALEntry identifies an append-only SAL ledger entry.
	EntitySALEntry EntityType = "sal_entry"
	// EntitySyncSnapshot identifies the cumulative business plan sync snapshot of a project.
	EntitySyncSnapshot EntityType = "sync_snapshot"
	// EntitySyncResult identifies a committed business plan sync result.
	EntitySyncResult EntityType = "sync_result"
	// EntityVendor identifies a vendor reference; vendors are owned by an external registry.
	EntityVendor EntityType = "vendor"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records. Version is the
// optimistic concurrency token and increments on every committed update.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"version"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before ChangePayload
	After  ChangePayload
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported modifications captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	// ActionAppend indicates an entry was appended to a ledger.
	ActionAppend Action = "append"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string     `json:"rule"`
	Severity Severity   `json:"severity"`
	Message  string     `json:"message"`
	Entity   EntityType `json:"entity"`
	EntityID string     `json:"entity_id"`
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation `json:"violations,omitempty"`
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Warnings returns the warn-severity violations.
func (r Result) Warnings() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == SeverityWarn {
			out = append(out, v)
		}
	}
	return out
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}

// HasRule reports whether a blocking violation was raised by the named rule.
func (e RuleViolationError) HasRule(name string) bool {
	for _, v := range e.Result.Violations {
		if v.Rule == name && v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

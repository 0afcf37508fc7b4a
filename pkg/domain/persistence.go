package domain

import (
	"context"
	"time"
)

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	Now() time.Time

	CreateProject(Project) (Project, error)
	UpdateProject(id string, mutator func(*Project) error) (Project, error)
	FindProject(id string) (Project, bool)

	CreateRDO(RDO) (RDO, error)
	UpdateRDO(id string, mutator func(*RDO) error) (RDO, error)
	FindRDO(id string) (RDO, bool)

	CreateOffer(Offer) (Offer, error)
	UpdateOffer(id string, mutator func(*Offer) error) (Offer, error)
	FindOffer(id string) (Offer, bool)
	ListOffers(rdoID string) []Offer

	PutPreCheck(PreCheckResult) (PreCheckResult, error)
	FindPreCheck(vendorID string) (PreCheckResult, bool)

	PutComparison(Comparison) (Comparison, error)
	FindComparison(rdoID string) (Comparison, bool)

	CreateBundle(ContractBundle) (ContractBundle, error)
	UpdateBundle(id string, mutator func(*ContractBundle) error) (ContractBundle, error)
	FindBundle(id string) (ContractBundle, bool)
	ListBundles(rdoID string) []ContractBundle
	ListProjectBundles(projectID string) []ContractBundle
	FindContractLine(lineID string) (ContractBundle, ContractLine, bool)

	AppendSALEntry(SALEntry) (SALEntry, error)
	FindSALEntry(id string) (SALEntry, bool)
	ListSALEntries(lineID string) []SALEntry

	PutSyncSnapshot(SyncSnapshot) (SyncSnapshot, error)
	FindSyncSnapshot(projectID string) (SyncSnapshot, bool)
	AppendSyncResult(SyncResult) (SyncResult, error)
}

// TransactionView provides read-only access to snapshot data for rules and queries.
type TransactionView interface {
	RuleView
	FindPreCheck(vendorID string) (PreCheckResult, bool)
	FindComparison(rdoID string) (Comparison, bool)
	ListRDOs() []RDO
	ListProjects() []Project
	ListProjectBundles(projectID string) []ContractBundle
	FindSALEntry(id string) (SALEntry, bool)
	FindSyncSnapshot(projectID string) (SyncSnapshot, bool)
	ListSyncResults(projectID string) []SyncResult
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetRDO(id string) (RDO, bool)
	ListRDOs() []RDO
	GetOffer(id string) (Offer, bool)
	GetBundle(id string) (ContractBundle, bool)
	GetProject(id string) (Project, bool)
	ListProjects() []Project
}

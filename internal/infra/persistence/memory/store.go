// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"procurecore/internal/sal"
	"procurecore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	projects    map[string]domain.Project
	rdos        map[string]domain.RDO
	offers      map[string]domain.Offer
	prechecks   map[string]domain.PreCheckResult
	comparisons map[string]domain.Comparison
	bundles     map[string]domain.ContractBundle
	// lineIndex resolves a contract line ID to its owning bundle.
	lineIndex map[string]string
	ledger    *sal.Ledger
	snapshots map[string]domain.SyncSnapshot
	results   []domain.SyncResult
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Projects      map[string]domain.Project        `json:"projects"`
	RDOs          map[string]domain.RDO            `json:"rdos"`
	Offers        map[string]domain.Offer          `json:"offers"`
	PreChecks     map[string]domain.PreCheckResult `json:"prechecks"`
	Comparisons   map[string]domain.Comparison     `json:"comparisons"`
	Bundles       map[string]domain.ContractBundle `json:"bundles"`
	SALEntries    []domain.SALEntry                `json:"sal_entries"`
	SyncSnapshots map[string]domain.SyncSnapshot   `json:"sync_snapshots"`
	SyncResults   []domain.SyncResult              `json:"sync_results"`
}

func newMemoryState() memoryState {
	return memoryState{
		projects:    make(map[string]domain.Project),
		rdos:        make(map[string]domain.RDO),
		offers:      make(map[string]domain.Offer),
		prechecks:   make(map[string]domain.PreCheckResult),
		comparisons: make(map[string]domain.Comparison),
		bundles:     make(map[string]domain.ContractBundle),
		lineIndex:   make(map[string]string),
		ledger:      sal.NewLedger(),
		snapshots:   make(map[string]domain.SyncSnapshot),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Projects:      make(map[string]domain.Project, len(state.projects)),
		RDOs:          make(map[string]domain.RDO, len(state.rdos)),
		Offers:        make(map[string]domain.Offer, len(state.offers)),
		PreChecks:     make(map[string]domain.PreCheckResult, len(state.prechecks)),
		Comparisons:   make(map[string]domain.Comparison, len(state.comparisons)),
		Bundles:       make(map[string]domain.ContractBundle, len(state.bundles)),
		SALEntries:    state.ledger.All(),
		SyncSnapshots: make(map[string]domain.SyncSnapshot, len(state.snapshots)),
		SyncResults:   make([]domain.SyncResult, 0, len(state.results)),
	}
	for k, v := range state.projects {
		s.Projects[k] = cloneProject(v)
	}
	for k, v := range state.rdos {
		s.RDOs[k] = cloneRDO(v)
	}
	for k, v := range state.offers {
		s.Offers[k] = cloneOffer(v)
	}
	for k, v := range state.prechecks {
		s.PreChecks[k] = clonePreCheck(v)
	}
	for k, v := range state.comparisons {
		s.Comparisons[k] = cloneComparison(v)
	}
	for k, v := range state.bundles {
		s.Bundles[k] = cloneBundle(v)
	}
	for k, v := range state.snapshots {
		s.SyncSnapshots[k] = cloneSyncSnapshot(v)
	}
	for _, r := range state.results {
		s.SyncResults = append(s.SyncResults, cloneSyncResult(r))
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) (memoryState, error) {
	state := newMemoryState()
	for k, v := range s.Projects {
		state.projects[k] = cloneProject(v)
	}
	for k, v := range s.RDOs {
		state.rdos[k] = cloneRDO(v)
	}
	for k, v := range s.Offers {
		state.offers[k] = cloneOffer(v)
	}
	for k, v := range s.PreChecks {
		state.prechecks[k] = clonePreCheck(v)
	}
	for k, v := range s.Comparisons {
		state.comparisons[k] = cloneComparison(v)
	}
	for k, v := range s.Bundles {
		state.bundles[k] = cloneBundle(v)
		for _, line := range v.Lines {
			if owner, dup := state.lineIndex[line.ID]; dup {
				return memoryState{}, domain.DataIntegrityError{Entity: domain.EntityContractLine, ID: line.ID, Detail: fmt.Sprintf("claimed by bundles %s and %s", owner, k)}
			}
			state.lineIndex[line.ID] = k
		}
	}
	ledger, err := sal.Rebuild(s.SALEntries)
	if err != nil {
		return memoryState{}, err
	}
	state.ledger = ledger
	for k, v := range s.SyncSnapshots {
		state.snapshots[k] = cloneSyncSnapshot(v)
	}
	for _, r := range s.SyncResults {
		state.results = append(state.results, cloneSyncResult(r))
	}
	return state, nil
}

// migrateSnapshot fills buckets missing from snapshots written by older builds.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Projects == nil {
		snapshot.Projects = map[string]domain.Project{}
	}
	if snapshot.RDOs == nil {
		snapshot.RDOs = map[string]domain.RDO{}
	}
	if snapshot.Offers == nil {
		snapshot.Offers = map[string]domain.Offer{}
	}
	if snapshot.PreChecks == nil {
		snapshot.PreChecks = map[string]domain.PreCheckResult{}
	}
	if snapshot.Comparisons == nil {
		snapshot.Comparisons = map[string]domain.Comparison{}
	}
	if snapshot.Bundles == nil {
		snapshot.Bundles = map[string]domain.ContractBundle{}
	}
	if snapshot.SyncSnapshots == nil {
		snapshot.SyncSnapshots = map[string]domain.SyncSnapshot{}
	}
	for id, project := range snapshot.Projects {
		if project.CostBuckets == nil {
			project.CostBuckets = map[string]decimal.Decimal{}
		}
		snapshot.Projects[id] = project
	}
	for id, rdo := range snapshot.RDOs {
		if rdo.Status == "" {
			rdo.Status = domain.RDOStatusDraft
		}
		snapshot.RDOs[id] = rdo
	}
	for id, snap := range snapshot.SyncSnapshots {
		if snap.Lines == nil {
			snap.Lines = map[string]domain.LineSnapshot{}
		}
		snapshot.SyncSnapshots[id] = snap
	}
	return snapshot
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.projects {
		cloned.projects[k] = cloneProject(v)
	}
	for k, v := range s.rdos {
		cloned.rdos[k] = cloneRDO(v)
	}
	for k, v := range s.offers {
		cloned.offers[k] = cloneOffer(v)
	}
	for k, v := range s.prechecks {
		cloned.prechecks[k] = clonePreCheck(v)
	}
	for k, v := range s.comparisons {
		cloned.comparisons[k] = cloneComparison(v)
	}
	for k, v := range s.bundles {
		cloned.bundles[k] = cloneBundle(v)
	}
	for k, v := range s.lineIndex {
		cloned.lineIndex[k] = v
	}
	cloned.ledger = s.ledger.Clone()
	for k, v := range s.snapshots {
		cloned.snapshots[k] = cloneSyncSnapshot(v)
	}
	for _, r := range s.results {
		cloned.results = append(cloned.results, cloneSyncResult(r))
	}
	return cloned
}

// Store provides an in-memory transactional store for the procurement domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot. The
// current state is kept when the snapshot fails to index.
func (s *Store) ImportState(snapshot Snapshot) error {
	state, err := memoryStateFromSnapshot(migrateSnapshot(snapshot))
	if err != nil {
		return fmt.Errorf("memory store import: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	return nil
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc replaces the time provider used to stamp records.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = func() time.Time { return fn().UTC() }
}

// RunInTransaction executes fn within a transactional copy of the store state.
// Nothing is committed when fn fails, the context is cancelled, or a rule
// blocks.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}
	tx.transactionView = transactionView{state: &tx.state}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, tx.transactionView, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(transactionView{state: &snapshot})
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	transactionView
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return tx.transactionView
}

// Now returns the transaction timestamp.
func (tx *transaction) Now() time.Time { return tx.now }

func (tx *transaction) stamp(base *domain.Base) {
	if base.ID == "" {
		base.ID = tx.store.newID()
	}
	base.CreatedAt = tx.now
	base.UpdatedAt = tx.now
	base.Version = 1
}

func (tx *transaction) touch(base *domain.Base, id string, before domain.Base) {
	base.ID = id
	base.CreatedAt = before.CreatedAt
	base.UpdatedAt = tx.now
	base.Version = before.Version + 1
}

// CreateProject stores a new project.
func (tx *transaction) CreateProject(p domain.Project) (domain.Project, error) {
	tx.stamp(&p.Base)
	if _, exists := tx.state.projects[p.ID]; exists {
		return domain.Project{}, fmt.Errorf("project %q already exists", p.ID)
	}
	if p.CostBuckets == nil {
		p.CostBuckets = map[string]decimal.Decimal{}
	}
	tx.state.projects[p.ID] = cloneProject(p)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionCreate, After: domain.PayloadOf(p)})
	return cloneProject(p), nil
}

// UpdateProject mutates an existing project.
func (tx *transaction) UpdateProject(id string, mutator func(*domain.Project) error) (domain.Project, error) {
	current, ok := tx.state.projects[id]
	if !ok {
		return domain.Project{}, fmt.Errorf("project %q not found", id)
	}
	before := cloneProject(current)
	if err := mutator(&current); err != nil {
		return domain.Project{}, err
	}
	tx.touch(&current.Base, id, before.Base)
	tx.state.projects[id] = cloneProject(current)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionUpdate, Before: domain.PayloadOf(before), After: domain.PayloadOf(current)})
	return cloneProject(current), nil
}

// CreateRDO stores a new RDO in draft unless another status is supplied.
func (tx *transaction) CreateRDO(r domain.RDO) (domain.RDO, error) {
	tx.stamp(&r.Base)
	if _, exists := tx.state.rdos[r.ID]; exists {
		return domain.RDO{}, fmt.Errorf("rdo %q already exists", r.ID)
	}
	if _, ok := tx.state.projects[r.ProjectID]; !ok {
		return domain.RDO{}, fmt.Errorf("project %q not found for rdo", r.ProjectID)
	}
	if r.Status == "" {
		r.Status = domain.RDOStatusDraft
	}
	for i := range r.Lines {
		if r.Lines[i].ID == "" {
			r.Lines[i].ID = tx.store.newID()
		}
	}
	tx.state.rdos[r.ID] = cloneRDO(r)
	tx.recordChange(Change{Entity: domain.EntityRDO, Action: domain.ActionCreate, After: domain.PayloadOf(r)})
	return cloneRDO(r), nil
}

// UpdateRDO mutates an existing RDO.
func (tx *transaction) UpdateRDO(id string, mutator func(*domain.RDO) error) (domain.RDO, error) {
	current, ok := tx.state.rdos[id]
	if !ok {
		return domain.RDO{}, fmt.Errorf("rdo %q not found", id)
	}
	before := cloneRDO(current)
	if err := mutator(&current); err != nil {
		return domain.RDO{}, err
	}
	tx.touch(&current.Base, id, before.Base)
	current.ProjectID = before.ProjectID
	tx.state.rdos[id] = cloneRDO(current)
	tx.recordChange(Change{Entity: domain.EntityRDO, Action: domain.ActionUpdate, Before: domain.PayloadOf(before), After: domain.PayloadOf(current)})
	return cloneRDO(current), nil
}

// CreateOffer stores a new offer revision.
func (tx *transaction) CreateOffer(o domain.Offer) (domain.Offer, error) {
	tx.stamp(&o.Base)
	if _, exists := tx.state.offers[o.ID]; exists {
		return domain.Offer{}, fmt.Errorf("offer %q already exists", o.ID)
	}
	if _, ok := tx.state.rdos[o.RDOID]; !ok {
		return domain.Offer{}, fmt.Errorf("rdo %q not found for offer", o.RDOID)
	}
	if o.SubmittedAt.IsZero() {
		o.SubmittedAt = tx.now
	}
	tx.state.offers[o.ID] = cloneOffer(o)
	tx.recordChange(Change{Entity: domain.EntityOffer, Action: domain.ActionCreate, After: domain.PayloadOf(o)})
	return cloneOffer(o), nil
}

// UpdateOffer mutates an existing offer.
func (tx *transaction) UpdateOffer(id string, mutator func(*domain.Offer) error) (domain.Offer, error) {
	current, ok := tx.state.offers[id]
	if !ok {
		return domain.Offer{}, fmt.Errorf("offer %q not found", id)
	}
	before := cloneOffer(current)
	if err := mutator(&current); err != nil {
		return domain.Offer{}, err
	}
	tx.touch(&current.Base, id, before.Base)
	current.RDOID = before.RDOID
	current.VendorID = before.VendorID
	tx.state.offers[id] = cloneOffer(current)
	tx.recordChange(Change{Entity: domain.EntityOffer, Action: domain.ActionUpdate, Before: domain.PayloadOf(before), After: domain.PayloadOf(current)})
	return cloneOffer(current), nil
}

// PutPreCheck stores the latest pre-check result for a vendor.
func (tx *transaction) PutPreCheck(p domain.PreCheckResult) (domain.PreCheckResult, error) {
	if p.VendorID == "" {
		return domain.PreCheckResult{}, fmt.Errorf("pre-check requires a vendor id")
	}
	previous, exists := tx.state.prechecks[p.VendorID]
	change := Change{Entity: domain.EntityPreCheck, Action: domain.ActionCreate}
	if exists {
		tx.touch(&p.Base, p.VendorID, previous.Base)
		change.Action = domain.ActionUpdate
		change.Before = domain.PayloadOf(previous)
	} else {
		p.ID = p.VendorID
		tx.stamp(&p.Base)
	}
	tx.state.prechecks[p.VendorID] = clonePreCheck(p)
	change.After = domain.PayloadOf(p)
	tx.recordChange(change)
	return clonePreCheck(p), nil
}

// PutComparison stores the latest comparison computed for an RDO.
func (tx *transaction) PutComparison(c domain.Comparison) (domain.Comparison, error) {
	if _, ok := tx.state.rdos[c.RDOID]; !ok {
		return domain.Comparison{}, fmt.Errorf("rdo %q not found for comparison", c.RDOID)
	}
	previous, exists := tx.state.comparisons[c.RDOID]
	change := Change{Entity: domain.EntityComparison, Action: domain.ActionCreate}
	if exists {
		tx.touch(&c.Base, previous.ID, previous.Base)
		change.Action = domain.ActionUpdate
		change.Before = domain.PayloadOf(previous)
	} else {
		tx.stamp(&c.Base)
	}
	tx.state.comparisons[c.RDOID] = cloneComparison(c)
	change.After = domain.PayloadOf(c)
	tx.recordChange(change)
	return cloneComparison(c), nil
}

// CreateBundle stores a contract bundle and indexes its lines.
func (tx *transaction) CreateBundle(b domain.ContractBundle) (domain.ContractBundle, error) {
	tx.stamp(&b.Base)
	if _, exists := tx.state.bundles[b.ID]; exists {
		return domain.ContractBundle{}, fmt.Errorf("bundle %q already exists", b.ID)
	}
	if _, ok := tx.state.rdos[b.RDOID]; !ok {
		return domain.ContractBundle{}, fmt.Errorf("rdo %q not found for bundle", b.RDOID)
	}
	for i := range b.Lines {
		if b.Lines[i].ID == "" {
			b.Lines[i].ID = tx.store.newID()
		}
		if owner, taken := tx.state.lineIndex[b.Lines[i].ID]; taken {
			return domain.ContractBundle{}, domain.DataIntegrityError{Entity: domain.EntityContractLine, ID: b.Lines[i].ID, Detail: "already owned by bundle " + owner}
		}
	}
	for _, line := range b.Lines {
		tx.state.lineIndex[line.ID] = b.ID
	}
	tx.state.bundles[b.ID] = cloneBundle(b)
	tx.recordChange(Change{Entity: domain.EntityContractBundle, Action: domain.ActionCreate, After: domain.PayloadOf(b)})
	return cloneBundle(b), nil
}

// UpdateBundle mutates an existing bundle. Contract lines are immutable once
// awarded; only the milestone schedule may change.
func (tx *transaction) UpdateBundle(id string, mutator func(*domain.ContractBundle) error) (domain.ContractBundle, error) {
	current, ok := tx.state.bundles[id]
	if !ok {
		return domain.ContractBundle{}, fmt.Errorf("bundle %q not found", id)
	}
	before := cloneBundle(current)
	if err := mutator(&current); err != nil {
		return domain.ContractBundle{}, err
	}
	tx.touch(&current.Base, id, before.Base)
	current.RDOID = before.RDOID
	current.ProjectID = before.ProjectID
	current.VendorID = before.VendorID
	current.Lines = before.Lines
	current.Total = before.Total
	tx.state.bundles[id] = cloneBundle(current)
	tx.recordChange(Change{Entity: domain.EntityContractBundle, Action: domain.ActionUpdate, Before: domain.PayloadOf(before), After: domain.PayloadOf(current)})
	return cloneBundle(current), nil
}

// AppendSALEntry appends an entry to the ledger. There is no update or delete.
func (tx *transaction) AppendSALEntry(e domain.SALEntry) (domain.SALEntry, error) {
	bundleID, ok := tx.state.lineIndex[e.ContractLineID]
	if !ok {
		return domain.SALEntry{}, fmt.Errorf("contract line %q not found", e.ContractLineID)
	}
	if e.ID == "" {
		e.ID = tx.store.newID()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = tx.now
	}
	e.BundleID = bundleID
	if err := tx.state.ledger.Append(e); err != nil {
		return domain.SALEntry{}, err
	}
	tx.recordChange(Change{Entity: domain.EntitySALEntry, Action: domain.ActionAppend, After: domain.PayloadOf(e)})
	return e, nil
}

// PutSyncSnapshot replaces the cumulative sync snapshot of a project.
func (tx *transaction) PutSyncSnapshot(s domain.SyncSnapshot) (domain.SyncSnapshot, error) {
	if _, ok := tx.state.projects[s.ProjectID]; !ok {
		return domain.SyncSnapshot{}, fmt.Errorf("project %q not found for sync snapshot", s.ProjectID)
	}
	previous, exists := tx.state.snapshots[s.ProjectID]
	change := Change{Entity: domain.EntitySyncSnapshot, Action: domain.ActionCreate}
	if exists {
		tx.touch(&s.Base, s.ProjectID, previous.Base)
		change.Action = domain.ActionUpdate
		change.Before = domain.PayloadOf(previous)
	} else {
		s.ID = s.ProjectID
		tx.stamp(&s.Base)
	}
	tx.state.snapshots[s.ProjectID] = cloneSyncSnapshot(s)
	change.After = domain.PayloadOf(s)
	tx.recordChange(change)
	return cloneSyncSnapshot(s), nil
}

// AppendSyncResult stores a committed sync result.
func (tx *transaction) AppendSyncResult(r domain.SyncResult) (domain.SyncResult, error) {
	if r.ID == "" {
		return domain.SyncResult{}, fmt.Errorf("sync result requires an id")
	}
	for _, existing := range tx.state.results {
		if existing.ID == r.ID && existing.ProjectID == r.ProjectID {
			return domain.SyncResult{}, domain.ConflictError{Entity: domain.EntitySyncResult, ID: r.ID, Reason: "already committed"}
		}
	}
	tx.state.results = append(tx.state.results, cloneSyncResult(r))
	tx.recordChange(Change{Entity: domain.EntitySyncResult, Action: domain.ActionAppend, After: domain.PayloadOf(r)})
	return cloneSyncResult(r), nil
}

// transactionView exposes a read-only snapshot of the transactional state.
type transactionView struct {
	state *memoryState
}

func (v transactionView) FindProject(id string) (domain.Project, bool) {
	p, ok := v.state.projects[id]
	if !ok {
		return domain.Project{}, false
	}
	return cloneProject(p), true
}

func (v transactionView) ListProjects() []domain.Project {
	out := make([]domain.Project, 0, len(v.state.projects))
	for _, p := range v.state.projects {
		out = append(out, cloneProject(p))
	}
	sort.Slice(out, func(i, j int) bool { return byCreation(out[i].Base, out[j].Base) })
	return out
}

func (v transactionView) FindRDO(id string) (domain.RDO, bool) {
	r, ok := v.state.rdos[id]
	if !ok {
		return domain.RDO{}, false
	}
	return cloneRDO(r), true
}

func (v transactionView) ListRDOs() []domain.RDO {
	out := make([]domain.RDO, 0, len(v.state.rdos))
	for _, r := range v.state.rdos {
		out = append(out, cloneRDO(r))
	}
	sort.Slice(out, func(i, j int) bool { return byCreation(out[i].Base, out[j].Base) })
	return out
}

func (v transactionView) FindOffer(id string) (domain.Offer, bool) {
	o, ok := v.state.offers[id]
	if !ok {
		return domain.Offer{}, false
	}
	return cloneOffer(o), true
}

// ListOffers returns every revision submitted against rdoID.
func (v transactionView) ListOffers(rdoID string) []domain.Offer {
	var out []domain.Offer
	for _, o := range v.state.offers {
		if o.RDOID == rdoID {
			out = append(out, cloneOffer(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].VendorID != out[j].VendorID {
			return out[i].VendorID < out[j].VendorID
		}
		return out[i].Revision < out[j].Revision
	})
	return out
}

func (v transactionView) FindPreCheck(vendorID string) (domain.PreCheckResult, bool) {
	p, ok := v.state.prechecks[vendorID]
	if !ok {
		return domain.PreCheckResult{}, false
	}
	return clonePreCheck(p), true
}

func (v transactionView) FindComparison(rdoID string) (domain.Comparison, bool) {
	c, ok := v.state.comparisons[rdoID]
	if !ok {
		return domain.Comparison{}, false
	}
	return cloneComparison(c), true
}

func (v transactionView) FindBundle(id string) (domain.ContractBundle, bool) {
	b, ok := v.state.bundles[id]
	if !ok {
		return domain.ContractBundle{}, false
	}
	return cloneBundle(b), true
}

func (v transactionView) ListBundles(rdoID string) []domain.ContractBundle {
	return v.bundlesWhere(func(b domain.ContractBundle) bool { return b.RDOID == rdoID })
}

func (v transactionView) ListProjectBundles(projectID string) []domain.ContractBundle {
	return v.bundlesWhere(func(b domain.ContractBundle) bool { return b.ProjectID == projectID })
}

func (v transactionView) bundlesWhere(match func(domain.ContractBundle) bool) []domain.ContractBundle {
	var out []domain.ContractBundle
	for _, b := range v.state.bundles {
		if match(b) {
			out = append(out, cloneBundle(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].VendorID != out[j].VendorID {
			return out[i].VendorID < out[j].VendorID
		}
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (v transactionView) FindContractLine(lineID string) (domain.ContractBundle, domain.ContractLine, bool) {
	bundleID, ok := v.state.lineIndex[lineID]
	if !ok {
		return domain.ContractBundle{}, domain.ContractLine{}, false
	}
	bundle, ok := v.state.bundles[bundleID]
	if !ok {
		return domain.ContractBundle{}, domain.ContractLine{}, false
	}
	line, ok := bundle.Line(lineID)
	if !ok {
		return domain.ContractBundle{}, domain.ContractLine{}, false
	}
	return cloneBundle(bundle), line, true
}

func (v transactionView) FindSALEntry(id string) (domain.SALEntry, bool) {
	return v.state.ledger.Entry(id)
}

func (v transactionView) ListSALEntries(lineID string) []domain.SALEntry {
	return v.state.ledger.ForLine(lineID)
}

func (v transactionView) FindSyncSnapshot(projectID string) (domain.SyncSnapshot, bool) {
	s, ok := v.state.snapshots[projectID]
	if !ok {
		return domain.SyncSnapshot{}, false
	}
	return cloneSyncSnapshot(s), true
}

// ListSyncResults returns a project's committed results, oldest first.
func (v transactionView) ListSyncResults(projectID string) []domain.SyncResult {
	var out []domain.SyncResult
	for _, r := range v.state.results {
		if r.ProjectID == projectID {
			out = append(out, cloneSyncResult(r))
		}
	}
	return out
}

func byCreation(a, b domain.Base) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// GetRDO returns an RDO by id.
func (s *Store) GetRDO(id string) (domain.RDO, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionView{state: &s.state}.FindRDO(id)
}

// ListRDOs returns all RDOs ordered by creation.
func (s *Store) ListRDOs() []domain.RDO {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionView{state: &s.state}.ListRDOs()
}

// GetOffer returns an offer by id.
func (s *Store) GetOffer(id string) (domain.Offer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionView{state: &s.state}.FindOffer(id)
}

// GetBundle returns a contract bundle by id.
func (s *Store) GetBundle(id string) (domain.ContractBundle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionView{state: &s.state}.FindBundle(id)
}

// GetProject returns a project by id.
func (s *Store) GetProject(id string) (domain.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionView{state: &s.state}.FindProject(id)
}

// ListProjects returns all projects ordered by creation.
func (s *Store) ListProjects() []domain.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionView{state: &s.state}.ListProjects()
}

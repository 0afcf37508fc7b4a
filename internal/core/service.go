package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"procurecore/internal/award"
	"procurecore/internal/bpsync"
	"procurecore/internal/infra/persistence/memory"
	"procurecore/internal/precheck"
	"procurecore/internal/scoring"
	"procurecore/pkg/domain"
)

// DefaultWeights applies to RDOs created without explicit scoring weights.
var DefaultWeights = domain.ScoringWeights{Price: 0.5, Time: 0.3, Quality: 0.2}

// DefaultMilestoneTemplates is the payment schedule used when an award names none.
var DefaultMilestoneTemplates = []domain.MilestoneTemplate{
	{Name: "advance", Percentage: domain.MoneyFromFloat(30), Description: "on contract signature"},
	{Name: "progress", Percentage: domain.MoneyFromFloat(40), Description: "on delivery"},
	{Name: "final", Percentage: domain.MoneyFromFloat(30), Description: "on acceptance"},
}

// DefaultTiming is applied to projects created without timing assumptions:
// a single undiscounted period.
var DefaultTiming = domain.Timing{PeriodWeights: []float64{1}}

// ArtifactArchiver stores derived documents for committed results. Keys are
// returned for reference; archiving never fails the originating operation.
type ArtifactArchiver interface {
	ArchiveComparison(ctx context.Context, rdo domain.RDO, cmp domain.Comparison) (string, error)
	ArchiveSync(ctx context.Context, diff domain.CommittedDiff) (string, error)
}

// Service runs every procurement operation inside a single store transaction.
type Service struct {
	store     PersistentStore
	logger    Logger
	clock     Clock
	audit     AuditRecorder
	metrics   MetricsRecorder
	tracer    Tracer
	events    EventPublisher
	archiver  ArtifactArchiver
	scorer    *scoring.Engine
	prechecks *precheck.Validator
	allocator *award.Allocator
	planner   *bpsync.Engine
	guard     *bpsync.Guard
	weights   domain.ScoringWeights
	templates []domain.MilestoneTemplate
	timing    domain.Timing
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the time source used for evaluation dates and stamps.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithAuditRecorder sets the audit sink.
func WithAuditRecorder(rec AuditRecorder) Option {
	return func(s *Service) {
		if rec != nil {
			s.audit = rec
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithTracer sets the span tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithEventPublisher sets the sink for committed domain events.
func WithEventPublisher(pub EventPublisher) Option {
	return func(s *Service) {
		if pub != nil {
			s.events = pub
		}
	}
}

// WithArtifactArchiver enables archiving of comparison workbooks and sync results.
func WithArtifactArchiver(a ArtifactArchiver) Option {
	return func(s *Service) { s.archiver = a }
}

// WithScoringStrategy replaces the weighted-sum scoring strategy.
func WithScoringStrategy(strategy scoring.Strategy) Option {
	return func(s *Service) { s.scorer = scoring.NewEngine(scoring.WithStrategy(strategy)) }
}

// WithPreCheckConfig sets required checklist items and their weights.
func WithPreCheckConfig(cfg precheck.Config) Option {
	return func(s *Service) { s.prechecks = precheck.NewValidator(cfg) }
}

// WithFinancialModel replaces the discounted cash-flow model.
func WithFinancialModel(model bpsync.FinancialModel) Option {
	return func(s *Service) { s.planner = bpsync.NewEngine(model) }
}

// WithDefaultWeights sets the weights given to RDOs created without any.
func WithDefaultWeights(w domain.ScoringWeights) Option {
	return func(s *Service) { s.weights = w }
}

// WithMilestoneTemplates sets the default award payment schedule.
func WithMilestoneTemplates(templates []domain.MilestoneTemplate) Option {
	return func(s *Service) {
		if len(templates) > 0 {
			s.templates = append([]domain.MilestoneTemplate(nil), templates...)
		}
	}
}

// WithDefaultTiming sets the cash-flow assumptions given to projects created
// without any.
func WithDefaultTiming(t domain.Timing) Option {
	return func(s *Service) {
		if !t.IsZero() {
			s.timing = t.Clone()
		}
	}
}

// WithIDGenerator overrides contract line identifiers, mainly for tests.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.allocator = award.NewAllocator(award.WithIDGenerator(fn)) }
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	svc := &Service{
		store:     store,
		logger:    noopLogger{},
		clock:     ClockFunc(func() time.Time { return time.Now().UTC() }),
		audit:     noopAuditRecorder{},
		metrics:   noopMetricsRecorder{},
		tracer:    noopTracer{},
		events:    noopPublisher{},
		scorer:    scoring.NewEngine(),
		prechecks: precheck.NewValidator(precheck.DefaultConfig()),
		allocator: award.NewAllocator(),
		planner:   bpsync.NewEngine(nil),
		guard:     bpsync.NewGuard(),
		weights:   DefaultWeights,
		templates: DefaultMilestoneTemplates,
		timing:    DefaultTiming,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if clocked, ok := store.(interface{ SetNowFunc(func() time.Time) }); ok {
		clocked.SetNowFunc(svc.clock.Now)
	}
	return svc
}

// NewInMemoryService creates a service over a fresh in-memory store.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

// ErrNotFound is returned when a referenced record does not exist.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// checkVersion rejects a write whose expected version is stale. Zero means the
// caller holds no version and writes unconditionally; only in-process callers
// may do that, the HTTP API requires a version on every mutating route.
func checkVersion(entity EntityType, id string, expected, actual int64) error {
	if expected == 0 || expected == actual {
		return nil
	}
	return domain.ConflictError{Entity: entity, ID: id, Expected: expected, Actual: actual}
}

type operationMeta struct {
	entity EntityType
	action Action
}

var operations = map[string]operationMeta{
	"create_project":         {domain.EntityProject, ActionCreate},
	"create_rdo":             {domain.EntityRDO, ActionCreate},
	"invite_vendors":         {domain.EntityRDO, ActionUpdate},
	"open_rdo":               {domain.EntityRDO, ActionUpdate},
	"start_evaluation":       {domain.EntityRDO, ActionUpdate},
	"cancel_rdo":             {domain.EntityRDO, ActionUpdate},
	"submit_offer":           {domain.EntityOffer, ActionCreate},
	"exclude_offer":          {domain.EntityOffer, ActionUpdate},
	"withdraw_offer":         {domain.EntityOffer, ActionUpdate},
	"record_precheck":        {domain.EntityPreCheck, ActionUpdate},
	"compute_comparison":     {domain.EntityComparison, ActionUpdate},
	"award_lines":            {domain.EntityContractBundle, ActionCreate},
	"mark_milestone_payable": {domain.EntityContractBundle, ActionUpdate},
	"mark_milestone_paid":    {domain.EntityContractBundle, ActionUpdate},
	"skip_milestone":         {domain.EntityContractBundle, ActionUpdate},
	"record_sal":             {domain.EntitySALEntry, ActionAppend},
	"correct_sal":            {domain.EntitySALEntry, ActionAppend},
	"commit_business_plan":   {domain.EntitySyncResult, ActionCreate},
}

// subject identifies the record an operation touched, for audit and logs.
type subject struct {
	id      string
	payload any
}

// run executes fn in a store transaction with tracing, metrics, logging and
// audit. describe is consulted after fn returns.
func (s *Service) run(ctx context.Context, op string, describe func() subject, fn func(tx Transaction) error) (Result, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	res, err := s.store.RunInTransaction(ctx, fn)
	err = integrityError(err)
	duration := time.Since(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)

	var subj subject
	if describe != nil {
		subj = describe()
	}
	if err != nil {
		s.logger.Error("operation failed", "operation", op, "entity_id", subj.id, "error", err)
		s.recordAudit(ctx, op, subj, duration, err)
		return res, err
	}
	for _, v := range res.Warnings() {
		s.logger.Warn("rule warning", "operation", op, "rule", v.Rule, "entity", v.Entity, "entity_id", v.EntityID, "message", v.Message)
	}
	s.logger.Debug("operation completed", "operation", op, "entity_id", subj.id, "duration", duration)
	s.recordAudit(ctx, op, subj, duration, nil)
	return res, nil
}

// integrityError surfaces a blocked bundle_integrity rule as a
// DataIntegrityError while keeping the rule violation reachable.
func integrityError(err error) error {
	var violation RuleViolationError
	if !errors.As(err, &violation) || !violation.HasRule(RuleBundleIntegrity) {
		return err
	}
	for _, v := range violation.Result.Violations {
		if v.Rule == RuleBundleIntegrity && v.Severity == SeverityBlock {
			return fmt.Errorf("%w: %w", domain.DataIntegrityError{Entity: v.Entity, ID: v.EntityID, Detail: v.Message}, err)
		}
	}
	return err
}

// view runs a read-only query with tracing and metrics.
func (s *Service) view(ctx context.Context, op string, fn func(v TransactionView) error) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	err := s.store.View(ctx, fn)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, time.Since(start))
	if err != nil {
		s.logger.Debug("query failed", "operation", op, "error", err)
	}
	return err
}

func (s *Service) recordAudit(ctx context.Context, op string, subj subject, duration time.Duration, err error) {
	meta, ok := operations[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  subj.id,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.now(),
	}
	if subj.payload != nil {
		entry.Payload = domain.PayloadOf(subj.payload)
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

func (s *Service) publish(ctx context.Context, eventType, entityID string, payload any) {
	s.events.Publish(ctx, Event{Type: eventType, EntityID: entityID, Payload: payload, OccurredAt: s.now()})
}

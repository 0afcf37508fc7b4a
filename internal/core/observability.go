package core

import (
	"context"
	"time"

	"procurecore/pkg/domain"
)

// Logger is the structured logging surface used by the service. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// AuditStatus captures the outcome of an audited operation.
type AuditStatus string

// Audit outcomes.
const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry records one service operation.
type AuditEntry struct {
	Operation string               `json:"operation"`
	Entity    domain.EntityType    `json:"entity"`
	Action    domain.Action        `json:"action"`
	EntityID  string               `json:"entity_id,omitempty"`
	Status    AuditStatus          `json:"status"`
	Error     string               `json:"error,omitempty"`
	Duration  time.Duration        `json:"duration"`
	Timestamp time.Time            `json:"timestamp"`
	Payload   domain.ChangePayload `json:"payload,omitempty"`
}

// AuditRecorder receives an entry for every operation the service runs.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MetricsRecorder observes operation latency and outcome.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// TraceSpan is an in-flight operation span.
type TraceSpan interface {
	End(err error)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// Event is a committed domain event pushed to subscribers.
type Event struct {
	Type       string    `json:"type"`
	EntityID   string    `json:"entity_id"`
	Payload    any       `json:"payload,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Event types published after successful commits.
const (
	EventOfferSubmitted     = "offer.submitted"
	EventComparisonComputed = "comparison.computed"
	EventAwardCreated       = "award.created"
	EventSALRecorded        = "sal.recorded"
	EventSyncCommitted      = "sync.committed"
)

// EventPublisher delivers committed events. Implementations must not block.
type EventPublisher interface {
	Publish(ctx context.Context, event Event)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, Event) {}

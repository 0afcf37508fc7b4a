package core

import (
	"bytes"
	"context"
	"expvar"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"procurecore/pkg/domain"
)

type captureAuditRecorder struct {
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) has(op string, status AuditStatus) bool {
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			return true
		}
	}
	return false
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type captureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *captureLogger) record(level, msg string) {
	l.mu.Lock()
	l.lines = append(l.lines, level+" "+msg)
	l.mu.Unlock()
}

func (l *captureLogger) Debug(msg string, _ ...any) { l.record("DEBUG", msg) }
func (l *captureLogger) Info(msg string, _ ...any)  { l.record("INFO", msg) }
func (l *captureLogger) Warn(msg string, _ ...any)  { l.record("WARN", msg) }
func (l *captureLogger) Error(msg string, _ ...any) { l.record("ERROR", msg) }

func (l *captureLogger) contains(line string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, got := range l.lines {
		if got == line {
			return true
		}
	}
	return false
}

type capturePublisher struct {
	events []Event
}

func (c *capturePublisher) Publish(_ context.Context, e Event) {
	c.events = append(c.events, e)
}

func (c *capturePublisher) types() []string {
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Type)
	}
	return out
}

type failingArchiver struct{}

func (failingArchiver) ArchiveComparison(context.Context, domain.RDO, domain.Comparison) (string, error) {
	return "", context.DeadlineExceeded
}

func (failingArchiver) ArchiveSync(context.Context, domain.CommittedDiff) (string, error) {
	return "", context.DeadlineExceeded
}

func TestServiceEmitsAuditMetricsTracesAndEvents(t *testing.T) {
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	logger := &captureLogger{}
	events := &capturePublisher{}
	var traceBuf bytes.Buffer
	tracer := NewJSONTracer(&traceBuf)

	svc := newTestService(t,
		WithAuditRecorder(audit),
		WithMetricsRecorder(metrics),
		WithLogger(logger),
		WithTracer(tracer),
		WithEventPublisher(events),
		WithArtifactArchiver(failingArchiver{}),
	)
	fx := evaluatingFive(t, svc)
	ctx := context.Background()
	if _, _, err := svc.ComputeComparison(ctx, fx.rdo.ID); err != nil {
		t.Fatalf("compare must succeed even when archiving fails: %v", err)
	}
	if _, _, err := svc.OpenRDO(ctx, "missing", 0); err == nil {
		t.Fatal("expected error for missing rdo")
	}

	if !audit.has("submit_offer", AuditStatusSuccess) || !audit.has("open_rdo", AuditStatusError) {
		t.Fatalf("missing audit entries: %+v", audit.entries)
	}
	for _, entry := range audit.entries {
		if entry.Operation == "submit_offer" && (entry.Entity != domain.EntityOffer || entry.EntityID == "" || !entry.Payload.Defined()) {
			t.Fatalf("submit_offer audit lacks subject: %+v", entry)
		}
	}
	if !metrics.has("compute_comparison", true) || !metrics.has("open_rdo", false) {
		t.Fatalf("missing metrics calls: %+v", metrics.calls)
	}
	if !logger.contains("ERROR operation failed") || !logger.contains("WARN comparison archive failed") {
		t.Fatalf("missing log lines: %v", logger.lines)
	}
	if got := events.types(); len(got) != 3 || got[0] != EventOfferSubmitted || got[2] != EventComparisonComputed {
		t.Fatalf("unexpected events %v", got)
	}

	entries := tracer.Entries()
	if len(entries) == 0 {
		t.Fatal("expected trace entries")
	}
	last := entries[len(entries)-1]
	if last.Operation != "open_rdo" || last.Status != "error" || last.Error == "" {
		t.Fatalf("unexpected last span %+v", last)
	}
	if !strings.Contains(traceBuf.String(), `"operation":"compute_comparison"`) {
		t.Fatalf("trace output missing comparison span: %s", traceBuf.String())
	}
}

func TestServiceLogsRuleWarnings(t *testing.T) {
	logger := &captureLogger{}
	svc := newTestService(t, WithLogger(logger))
	project := mustProject(t, svc)
	_, line := awardedLine(t, svc, project.ID, "100")
	if _, _, err := svc.RecordSAL(context.Background(), line.ID, dec("150"), ""); err != nil {
		t.Fatalf("sal: %v", err)
	}
	if !logger.contains("WARN rule warning") {
		t.Fatalf("expected rule warning to be logged, got %v", logger.lines)
	}
}

func TestExpvarMetricsRecorderAggregates(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	rec.Observe(context.Background(), "record_sal", true, 2*time.Millisecond)
	rec.Observe(context.Background(), "record_sal", false, time.Millisecond)
	rec.Observe(context.Background(), "", true, time.Millisecond)

	snap := rec.Snapshot()
	if snap.Results["record_sal"]["success"] != 1 || snap.Results["record_sal"]["error"] != 1 {
		t.Fatalf("unexpected results %+v", snap.Results)
	}
	if snap.DurationsMS["record_sal"] < 3 {
		t.Fatalf("expected accumulated duration, got %v", snap.DurationsMS["record_sal"])
	}
	if v := expvar.Get(rec.Name()); v == nil || !strings.Contains(v.String(), "record_sal") {
		t.Fatalf("expected expvar export under %s", rec.Name())
	}
}

func TestPrometheusMetricsRecorderCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	svc := newTestService(t, WithMetricsRecorder(rec))
	mustProject(t, svc)
	if _, _, err := svc.CreateProject(context.Background(), domain.Project{}); err == nil {
		t.Fatal("expected validation failure")
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	counts := map[string]float64{}
	for _, family := range families {
		if family.GetName() != "procurecore_service_operations_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			counts[labels["operation"]+"/"+labels["outcome"]] = m.GetCounter().GetValue()
		}
	}
	if counts["create_project/success"] != 1 || counts["create_project/error"] != 1 {
		t.Fatalf("unexpected operation counters %v", counts)
	}
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestLoggerAuditRecorderWritesEntries(t *testing.T) {
	logger := &captureLogger{}
	svc := newTestService(t, WithAuditRecorder(NewLoggerAuditRecorder(logger)))
	mustProject(t, svc)
	if _, _, err := svc.CreateProject(context.Background(), domain.Project{}); err == nil {
		t.Fatal("expected validation failure")
	}
	if !logger.contains("INFO audit") || !logger.contains("WARN audit") {
		t.Fatalf("expected success and failure audit lines, got %v", logger.lines)
	}
}

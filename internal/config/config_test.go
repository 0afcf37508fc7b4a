package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"procurecore/internal/blob"
	"procurecore/internal/core"
	"procurecore/pkg/domain"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.Storage.Driver != core.StorageSQLite || cfg.Blob.Driver != blob.DriverFilesystem {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if len(cfg.ServiceOptions()) != 4 {
		t.Fatal("expected weights, milestones, precheck and timing options")
	}
	if cfg.Timing.DiscountRate != 0 || len(cfg.Timing.PeriodWeights) != 1 {
		t.Fatalf("unexpected default timing %+v", cfg.Timing)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	t.Setenv(EnvHTTPAddr, "")
	t.Setenv(EnvLogLevel, "")
	t.Setenv(core.EnvStorageDriver, "")
	path := filepath.Join(t.TempDir(), "procurecore.yaml")
	raw := `
server:
  addr: ":9090"
  shutdown_timeout: 3s
log:
  level: debug
  format: json
storage:
  driver: memory
weights:
  price: 0.6
  time: 0.2
  quality: 0.2
milestones:
  - name: advance
    percentage: 20
  - name: balance
    percentage: 80
precheck:
  required:
    financial: false
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9090" || cfg.Server.ShutdownTimeout != 3*time.Second {
		t.Fatalf("server not read: %+v", cfg.Server)
	}
	if level, _ := cfg.SlogLevel(); level != slog.LevelDebug {
		t.Fatalf("unexpected level %v", level)
	}
	if cfg.Storage.Driver != core.StorageMemory || cfg.Weights.Price != 0.6 {
		t.Fatalf("unexpected storage/weights %+v %+v", cfg.Storage, cfg.Weights)
	}
	if len(cfg.Milestones) != 2 || !cfg.Milestones[1].Percentage.Equal(domain.MoneyFromFloat(80)) {
		t.Fatalf("milestones not replaced: %+v", cfg.Milestones)
	}
	if cfg.PreCheck.Required[domain.PreCheckFinancial] {
		t.Fatal("precheck override not applied")
	}
	if !cfg.PreCheck.Required[domain.PreCheckDURC] {
		t.Fatal("precheck defaults must survive a partial override")
	}
	if cfg.Blob.Root != "artifacts" {
		t.Fatalf("blob defaults lost: %+v", cfg.Blob)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv(EnvHTTPAddr, "127.0.0.1:7000")
	t.Setenv(core.EnvStorageDriver, "postgres")
	t.Setenv(core.EnvPostgresDSN, "postgres://procure@db/procure")
	t.Setenv(blob.EnvDriver, "memory")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:7000" || cfg.Storage.Target != "postgres://procure@db/procure" || cfg.Blob.Driver != blob.DriverMemory {
		t.Fatalf("env not applied: %+v", cfg)
	}
}

func TestTimingFromFileAndEnvironment(t *testing.T) {
	t.Setenv(EnvDiscountRate, "")
	cfg, err := Parse([]byte("timing:\n  discount_rate: 0.05\n  period_weights: [1, 2, 1]\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Timing.DiscountRate != 0.05 || len(cfg.Timing.PeriodWeights) != 3 || cfg.Timing.PeriodWeights[1] != 2 {
		t.Fatalf("timing not read: %+v", cfg.Timing)
	}

	t.Setenv(EnvDiscountRate, "0.12")
	cfg = cfg.ApplyEnv()
	if cfg.Timing.DiscountRate != 0.12 || len(cfg.Timing.PeriodWeights) != 3 {
		t.Fatalf("env rate not applied: %+v", cfg.Timing)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid timing rejected: %v", err)
	}
}

func TestInvalidTimingRejected(t *testing.T) {
	t.Setenv(EnvDiscountRate, "seven percent")
	cfg := Default().ApplyEnv()
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "timing.discount_rate") {
		t.Fatalf("expected discount rate error, got %v", err)
	}

	t.Setenv(EnvDiscountRate, "")
	cfg = Default()
	cfg.Timing.PeriodWeights = []float64{0, 0}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "timing.period_weights") {
		t.Fatalf("expected period weights error, got %v", err)
	}
	cfg.Timing = domain.Timing{DiscountRate: -1.5}
	if err := cfg.Validate(); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	if _, err := Parse([]byte("sever:\n  addr: x\n")); err == nil {
		t.Fatal("expected unknown key error")
	}
	if _, err := Parse(nil); err != nil {
		t.Fatalf("empty document must yield defaults: %v", err)
	}
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "loud"
	cfg.Log.Format = "xml"
	cfg.Storage.Driver = core.StoragePostgres
	cfg.Storage.Target = ""
	cfg.Blob.Driver = blob.DriverS3
	cfg.Weights = domain.ScoringWeights{Price: 1, Time: 1}
	cfg.Milestones = []domain.MilestoneTemplate{{Name: "all", Percentage: domain.MoneyFromFloat(90)}}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"log.level", "log.format", "postgres DSN", "blob.s3.bucket", "weights", "milestones"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %q in %v", want, err)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected read error")
	}
}

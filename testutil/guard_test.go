package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInternalImportForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"procurecore/internal/scoring", true},
		{"procurecore/pkg/domain", false},
	}
	for _, c := range cases {
		if got := InternalImportForbidden(c.in); got != c.want {
			t.Fatalf("InternalImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestOuterLayerForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"procurecore/internal/infra/persistence/sqlite", true},
		{"procurecore/internal/adapters/api", true},
		{"procurecore/internal/blob", true},
		{"procurecore/internal/blob/core", true},
		{"procurecore/internal/core", true},
		{"procurecore/internal/config", true},
		{"procurecore/internal/sal", false},
		{"procurecore/internal/scoring", false},
		{"procurecore/pkg/domain", false},
	}
	for _, c := range cases {
		if got := OuterLayerForbidden(c.in); got != c.want {
			t.Fatalf("OuterLayerForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestDriverImportForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"database/sql", true},
		{"database/sql/driver", true},
		{"github.com/jackc/pgx/v5", true},
		{"modernc.org/sqlite", true},
		{"github.com/aws/aws-sdk-go-v2/service/s3", true},
		{"net/http", true},
		{"net/http/httptest", true},
		{"net/url", false},
		{"github.com/shopspring/decimal", false},
	}
	for _, c := range cases {
		if got := DriverImportForbidden(c.in); got != c.want {
			t.Fatalf("DriverImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestAnyCombinesPredicates(t *testing.T) {
	pred := Any(InternalImportForbidden, DriverImportForbidden)
	if !pred("modernc.org/sqlite") || !pred("x/internal/y") || pred("fmt") {
		t.Fatal("unexpected combined predicate result")
	}
}

func TestDirectImportViolationsIgnoresTestsAndDirs(t *testing.T) {
	dir := t.TempDir()
	write := func(name, src string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("ok.go", "package tmp\nimport \"fmt\"\nfunc X() { fmt.Println(1) }\n")
	write("ok_test.go", "package tmp\nimport \"database/sql\"\nvar _ = sql.ErrNoRows\n")
	if err := os.Mkdir(filepath.Join(dir, "nested.go"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	viols, err := directImportViolations(dir, DriverImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 0 {
		t.Fatalf("expected no violations, got %v", viols)
	}

	write("bad.go", "package tmp\nimport (\n\t\"database/sql\"\n\t\"net/http\"\n)\nvar _ = sql.ErrNoRows\nvar _ = http.MethodGet\n")
	viols, err = directImportViolations(dir, DriverImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 2 || !strings.Contains(viols[0], "bad.go") {
		t.Fatalf("expected two violations in bad.go, got %v", viols)
	}
}

func TestDirectImportViolationsParseError(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.go"), []byte("package"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := directImportViolations(dir, DriverImportForbidden); err == nil {
		t.Fatal("expected a parse error")
	}
}

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestFailIfViolationsReportsReason(t *testing.T) {
	rec := &recordingFatal{}
	failIfViolations(rec, "engines stay pure", nil)
	if rec.msg != "" {
		t.Fatalf("no violations must not fail, got %q", rec.msg)
	}
	failIfViolations(rec, "engines stay pure", []string{"database/sql (in x.go)"})
	if !strings.Contains(rec.msg, "engines stay pure") || !strings.Contains(rec.msg, "x.go") {
		t.Fatalf("unexpected failure message %q", rec.msg)
	}
}

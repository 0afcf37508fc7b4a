package validation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestIsMoneyName(t *testing.T) {
	cases := map[string]bool{
		"Price":          true,
		"UnitPrice":      true,
		"ContractAmount": true,
		"TotalCost":      true,
		"PaidToDate":     true,
		"PriceScore":     false,
		"TotalScore":     false,
		"SpreadPricePct": false,
		"PriceMAD":       false,
		"Margin":         false,
		"Quality":        false,
	}
	for name, want := range cases {
		if got := IsMoneyName(name); got != want {
			t.Fatalf("IsMoneyName(%q)=%v want %v", name, got, want)
		}
	}
}

func TestValidateMoneyFieldsFlagsFloatAmounts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "pkg", "bill.go"), `package pkg

type Bill struct {
	Amount   float64
	Fees     []float64
	Costs    map[string]*float32
	Label    string
	Discount float64
}

type Weights struct {
	Price float64
}
`)
	writeFile(t, filepath.Join(dir, "pkg", "bill_test.go"), "package pkg\n\ntype fixture struct{ Price float64 }\n")

	allowlist := MoneyAllowlist{Version: 1, Entries: []MoneyAllowlistEntry{{Path: "pkg/bill.go", Types: []string{"Weights"}, Rationale: "ratios"}}}
	violations, err := ValidateMoneyFields(allowlist, dir, []string{"pkg"})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(violations) != 3 {
		t.Fatalf("expected 3 violations, got %+v", violations)
	}
	if violations[0].File != "pkg/bill.go" || violations[0].Line != 4 || !strings.Contains(violations[0].Message, "Bill.Amount") {
		t.Fatalf("unexpected first violation %+v", violations[0])
	}
	if violations[0].Code != "Amount   float64" {
		t.Fatalf("expected source line in violation, got %q", violations[0].Code)
	}
}

func TestValidateMoneyFieldsHonoursFileEntriesAndGlobs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a", "legacy.go"), "package a\n\ntype Old struct{ Price float64 }\n")
	writeFile(t, filepath.Join(dir, "a", "testdata", "gen.go"), "package testdata\n\ntype Gen struct{ Cost float64 }\n")
	allowlist := MoneyAllowlist{
		Version:      1,
		ExcludeGlobs: []string{"**/testdata/**"},
		Entries:      []MoneyAllowlistEntry{{Path: "./a/legacy.go", Rationale: "imported schema"}},
	}
	violations, err := ValidateMoneyFields(allowlist, dir, []string{"a"})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(violations) != 0 {
		t.Fatalf("expected no violations, got %+v", violations)
	}
}

func TestValidateMoneyFieldsErrors(t *testing.T) {
	dir := t.TempDir()
	valid := MoneyAllowlist{Version: 1}
	if _, err := ValidateMoneyFields(valid, dir, nil); err == nil {
		t.Fatal("expected error for missing roots")
	}
	if _, err := ValidateMoneyFields(valid, dir, []string{"missing"}); err == nil {
		t.Fatal("expected error for missing root")
	}
	writeFile(t, filepath.Join(dir, "file.go"), "package x\n")
	if _, err := ValidateMoneyFields(valid, dir, []string{"file.go"}); err == nil {
		t.Fatal("expected error for non-directory root")
	}
	writeFile(t, filepath.Join(dir, "broken", "x.go"), "package")
	if _, err := ValidateMoneyFields(valid, dir, []string{"broken"}); err == nil {
		t.Fatal("expected parse error")
	}
	for name, list := range map[string]MoneyAllowlist{
		"version":   {},
		"path":      {Version: 1, Entries: []MoneyAllowlistEntry{{Rationale: "x"}}},
		"rationale": {Version: 1, Entries: []MoneyAllowlistEntry{{Path: "a.go"}}},
	} {
		if _, err := ValidateMoneyFields(list, dir, []string{"."}); err == nil {
			t.Fatalf("expected allowlist error for %s", name)
		}
	}
}

func TestLoadMoneyAllowlist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "allow.yaml")
	writeFile(t, path, "version: 1\nentries:\n  - path: a.go\n    types: [\" W \", \"\"]\n    rationale: weights\n")
	list, err := LoadMoneyAllowlist(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(list.Entries) != 1 || len(list.Entries[0].Types) != 1 || list.Entries[0].Types[0] != "W" {
		t.Fatalf("unexpected allowlist %+v", list)
	}

	writeFile(t, path, "version: 1\nowner: nobody\n")
	if _, err := LoadMoneyAllowlist(path); err == nil {
		t.Fatal("expected unknown field error")
	}
	if _, err := LoadMoneyAllowlist(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("expected read error")
	}
}

// TestRepositoryMoneyFields runs the guard over the real tree with the
// checked-in allowlist.
func TestRepositoryMoneyFields(t *testing.T) {
	base := filepath.Join("..", "..")
	violations, err := ValidateMoneyFieldsFromFile(filepath.Join("..", "ci", "money_allowlist.yaml"), base, []string{"pkg", "internal"})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	for _, v := range violations {
		t.Errorf("%s:%d %s", v.File, v.Line, v.Message)
	}
}

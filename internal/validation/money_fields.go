// Package validation holds repository lint checks run from scripts/ and CI.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Error is a single lint finding.
type Error struct {
	File    string
	Line    int
	Message string
	Code    string
}

// MoneyAllowlist records struct types whose money-named fields are allowed
// to be floating point, such as scoring weights.
type MoneyAllowlist struct {
	Version      int                   `yaml:"version"`
	ExcludeGlobs []string              `yaml:"exclude_globs"`
	Entries      []MoneyAllowlistEntry `yaml:"entries"`
}

// MoneyAllowlistEntry exempts the listed types in one file. An entry without
// types exempts the whole file.
type MoneyAllowlistEntry struct {
	Path      string   `yaml:"path"`
	Types     []string `yaml:"types,omitempty"`
	Rationale string   `yaml:"rationale"`
}

var (
	moneyWords  = []string{"price", "amount", "cost", "revenue", "budget", "fee", "payable", "paid", "total"}
	ratioSuffix = []string{"score", "pct", "percent", "median", "mad", "weight", "weights"}
)

// IsMoneyName reports whether a field name denotes a monetary quantity.
func IsMoneyName(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range ratioSuffix {
		if strings.HasSuffix(lower, suffix) {
			return false
		}
	}
	for _, word := range moneyWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// LoadMoneyAllowlist reads and validates the allowlist file.
func LoadMoneyAllowlist(listPath string) (MoneyAllowlist, error) {
	// #nosec G304 -- allowlist path is provided by repo tooling during linting
	data, err := os.ReadFile(listPath)
	if err != nil {
		return MoneyAllowlist{}, fmt.Errorf("read money allowlist: %w", err)
	}
	var allowlist MoneyAllowlist
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&allowlist); err != nil {
		return MoneyAllowlist{}, fmt.Errorf("parse money allowlist: %w", err)
	}
	if err := validateAllowlist(&allowlist); err != nil {
		return MoneyAllowlist{}, err
	}
	return allowlist, nil
}

// ValidateMoneyFieldsFromFile loads the allowlist and scans the roots.
func ValidateMoneyFieldsFromFile(listPath, baseDir string, roots []string) ([]Error, error) {
	allowlist, err := LoadMoneyAllowlist(listPath)
	if err != nil {
		return nil, err
	}
	return ValidateMoneyFields(allowlist, baseDir, roots)
}

// ValidateMoneyFields reports struct fields with monetary names declared as
// float32 or float64 outside the allowlist. Test files are skipped.
func ValidateMoneyFields(allowlist MoneyAllowlist, baseDir string, roots []string) ([]Error, error) {
	if len(roots) == 0 {
		return nil, errors.New("no roots provided for money field validation")
	}
	if err := validateAllowlist(&allowlist); err != nil {
		return nil, err
	}
	baseAbs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base dir: %w", err)
	}
	index := buildAllowlistIndex(allowlist)
	var violations []Error

	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		rootPath := root
		if !filepath.IsAbs(rootPath) {
			rootPath = filepath.Join(baseAbs, rootPath)
		}
		info, err := os.Stat(rootPath)
		if err != nil {
			return nil, fmt.Errorf("stat root %s: %w", root, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("root %s is not a directory", root)
		}
		err = filepath.WalkDir(rootPath, func(path string, entry fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if entry.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
				return nil
			}
			rel, err := filepath.Rel(baseAbs, path)
			if err != nil {
				return err
			}
			rel = normalizePath(rel)
			if shouldExclude(rel, allowlist.ExcludeGlobs) || index.allowAll[rel] {
				return nil
			}
			found, err := validateMoneyFile(path, rel, index)
			if err != nil {
				return err
			}
			violations = append(violations, found...)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.SliceStable(violations, func(i, j int) bool {
		if violations[i].File != violations[j].File {
			return violations[i].File < violations[j].File
		}
		return violations[i].Line < violations[j].Line
	})
	return violations, nil
}

func validateAllowlist(allowlist *MoneyAllowlist) error {
	if allowlist.Version <= 0 {
		return errors.New("money allowlist version must be >= 1")
	}
	for i, entry := range allowlist.Entries {
		entry.Path = strings.TrimSpace(entry.Path)
		if entry.Path == "" {
			return fmt.Errorf("money allowlist entry %d missing path", i)
		}
		entry.Path = normalizePath(entry.Path)
		entry.Rationale = strings.TrimSpace(entry.Rationale)
		if entry.Rationale == "" {
			return fmt.Errorf("money allowlist entry %d missing rationale", i)
		}
		types := entry.Types[:0]
		for _, typ := range entry.Types {
			if typ = strings.TrimSpace(typ); typ != "" {
				types = append(types, typ)
			}
		}
		entry.Types = types
		allowlist.Entries[i] = entry
	}
	for i, glob := range allowlist.ExcludeGlobs {
		allowlist.ExcludeGlobs[i] = strings.TrimSpace(glob)
	}
	return nil
}

type allowlistIndex struct {
	allowAll map[string]bool
	types    map[string]map[string]struct{}
}

func buildAllowlistIndex(allowlist MoneyAllowlist) allowlistIndex {
	index := allowlistIndex{allowAll: map[string]bool{}, types: map[string]map[string]struct{}{}}
	for _, entry := range allowlist.Entries {
		if len(entry.Types) == 0 {
			index.allowAll[entry.Path] = true
			continue
		}
		set, ok := index.types[entry.Path]
		if !ok {
			set = map[string]struct{}{}
			index.types[entry.Path] = set
		}
		for _, typ := range entry.Types {
			set[typ] = struct{}{}
		}
	}
	return index
}

func (index allowlistIndex) isAllowed(relPath, typeName string) bool {
	if index.allowAll[relPath] {
		return true
	}
	_, ok := index.types[relPath][typeName]
	return ok
}

func validateMoneyFile(path, relPath string, index allowlistIndex) ([]Error, error) {
	// #nosec G304 -- path is derived from repo walk and validated roots
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, content, 0)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(content), "\n")
	var violations []Error
	ast.Inspect(file, func(n ast.Node) bool {
		spec, ok := n.(*ast.TypeSpec)
		if !ok {
			return true
		}
		st, ok := spec.Type.(*ast.StructType)
		if !ok || index.isAllowed(relPath, spec.Name.Name) {
			return true
		}
		for _, field := range st.Fields.List {
			if !isFloat(field.Type) {
				continue
			}
			for _, name := range field.Names {
				if !IsMoneyName(name.Name) {
					continue
				}
				pos := fset.Position(name.Pos())
				code := ""
				if pos.Line > 0 && pos.Line <= len(lines) {
					code = strings.TrimSpace(lines[pos.Line-1])
				}
				violations = append(violations, Error{
					File:    relPath,
					Line:    pos.Line,
					Message: fmt.Sprintf("%s.%s is floating point; use decimal.Decimal for money or add an allowlist entry", spec.Name.Name, name.Name),
					Code:    code,
				})
			}
		}
		return true
	})
	return violations, nil
}

func isFloat(expr ast.Expr) bool {
	switch node := expr.(type) {
	case *ast.Ident:
		return node.Name == "float64" || node.Name == "float32"
	case *ast.StarExpr:
		return isFloat(node.X)
	case *ast.ArrayType:
		return isFloat(node.Elt)
	case *ast.MapType:
		return isFloat(node.Value)
	}
	return false
}

func normalizePath(p string) string {
	cleaned := filepath.ToSlash(filepath.Clean(strings.TrimSpace(p)))
	return strings.TrimPrefix(cleaned, "./")
}

func shouldExclude(relPath string, globs []string) bool {
	for _, glob := range globs {
		if glob == "" {
			continue
		}
		if matched, err := matchGlob(glob, relPath); err == nil && matched {
			return true
		}
	}
	return false
}

func matchGlob(pattern, value string) (bool, error) {
	escaped := regexp.QuoteMeta(normalizePath(pattern))
	escaped = strings.ReplaceAll(escaped, `\*\*`, "<<ANY>>")
	escaped = strings.ReplaceAll(escaped, `\*`, `[^/]*`)
	escaped = strings.ReplaceAll(escaped, `\?`, `[^/]`)
	escaped = strings.ReplaceAll(escaped, "<<ANY>>", ".*")
	re, err := regexp.Compile("^" + escaped + "$")
	if err != nil {
		return false, err
	}
	return re.MatchString(normalizePath(value)), nil
}

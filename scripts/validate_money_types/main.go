// Command validate_money_types rejects floating point money fields outside the
// allowlist.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"procurecore/internal/validation"
)

const (
	defaultAllowlistPath = "internal/ci/money_allowlist.yaml"
	defaultRoots         = "pkg/domain,internal"
)

var (
	exitFunc     = os.Exit
	getwd        = os.Getwd
	validateFunc = validation.ValidateMoneyFieldsFromFile
)

func main() {
	exitFunc(run(os.Args, os.Stderr, validateFunc))
}

func run(args []string, stderr io.Writer, validate func(string, string, []string) ([]validation.Error, error)) int {
	if len(args) == 0 {
		return 1
	}
	flags := flag.NewFlagSet(args[0], flag.ContinueOnError)
	flags.SetOutput(stderr)
	allowlist := flags.String("allowlist", defaultAllowlistPath, "path to the money field allowlist")
	rootsFlag := flags.String("roots", defaultRoots, "comma-separated roots to scan")
	if err := flags.Parse(args[1:]); err != nil {
		return 1
	}

	roots := splitRoots(*rootsFlag)
	if len(roots) == 0 {
		_, _ = fmt.Fprintln(stderr, "no roots provided for money field validation")
		return 1
	}
	baseDir, err := getwd()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "resolve working directory: %v\n", err)
		return 1
	}

	violations, err := validate(*allowlist, baseDir, roots)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "money field guard failed: %v\n", err)
		return 1
	}
	if len(violations) == 0 {
		return 0
	}
	_, _ = fmt.Fprintf(stderr, "Found %d floating point money fields:\n\n", len(violations))
	for _, v := range violations {
		_, _ = fmt.Fprintf(stderr, "%s:%d\n  %s\n", v.File, v.Line, v.Message)
		if v.Code != "" {
			_, _ = fmt.Fprintf(stderr, "  Code: %s\n", v.Code)
		}
		_, _ = fmt.Fprintln(stderr)
	}
	return 1
}

func splitRoots(value string) []string {
	var out []string
	for _, entry := range strings.Split(value, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			out = append(out, entry)
		}
	}
	return out
}

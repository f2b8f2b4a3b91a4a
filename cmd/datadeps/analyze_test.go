// analyze_test.go tests the 'datadeps analyze' command.
package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kolkov/datadeps/deps"
	"github.com/kolkov/datadeps/internal/config"
	"github.com/kolkov/datadeps/internal/report"
)

// copyTrace stores 7 in rax, copies it through rbx into memory and loads it
// back into rcx.
const copyTrace = `#datadeps-trace v1.0.0 arch=amd64
ins 0x401000 img=/bin/app off=0x1000 bytes=48c7c007000000
ins 0x401007 img=/bin/app off=0x1007 bytes=4889c3
ins 0x40100a img=/bin/app off=0x100a bytes=48891e
ins 0x40100d img=/bin/app off=0x100d bytes=488b0e
thread 1 sp=0x7ff000
x 1 0x401000
x 1 0x401007
x 1 0x40100a m0=0x5000
x 1 0x40100d m0=0x5000
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestParseAnalyzeArgs_Defaults tests that a bare trace path keeps the
// default configuration.
func TestParseAnalyzeArgs_Defaults(t *testing.T) {
	ac, err := parseAnalyzeArgs([]string{"app.trace"}, io.Discard)
	if err != nil {
		t.Fatalf("parseAnalyzeArgs() error: %v", err)
	}
	if ac.tracePath != "app.trace" {
		t.Errorf("Expected app.trace, got %s", ac.tracePath)
	}
	if ac.cfg.CSVPrefix != config.DefaultCSVPrefix || !ac.cfg.IgnoreNops || ac.cfg.Shortcuts {
		t.Errorf("Unexpected config: %+v", ac.cfg)
	}
	if ac.verbosity != 3 || ac.pretty {
		t.Errorf("Unexpected verbosity/pretty: %d/%v", ac.verbosity, ac.pretty)
	}
}

// TestParseAnalyzeArgs_ConfigOverride tests that explicit flags win over
// the configuration file and unset flags keep its values.
func TestParseAnalyzeArgs_ConfigOverride(t *testing.T) {
	cfgPath := writeTemp(t, "datadeps.yaml", "shortcuts: true\nignore_sp: true\ncsv_prefix: from-file\n")

	ac, err := parseAnalyzeArgs([]string{
		"-config", cfgPath,
		"-csv-prefix", "from-flag",
		"-shortcuts=false",
		"-ignore-nops=false",
		"-pretty",
		"-verbosity", "5",
		"app.trace",
	}, io.Discard)
	if err != nil {
		t.Fatalf("parseAnalyzeArgs() error: %v", err)
	}

	if ac.cfg.CSVPrefix != "from-flag" {
		t.Errorf("CSVPrefix = %q, want flag value", ac.cfg.CSVPrefix)
	}
	if ac.cfg.Shortcuts {
		t.Error("-shortcuts=false did not override the file")
	}
	if !ac.cfg.IgnoreSP {
		t.Error("ignore_sp from the file was lost")
	}
	if ac.cfg.IgnoreNops {
		t.Error("-ignore-nops=false ignored")
	}
	if !ac.pretty || ac.verbosity != 5 {
		t.Errorf("pretty/verbosity = %v/%d", ac.pretty, ac.verbosity)
	}
}

// TestParseAnalyzeArgs_Errors tests argument validation.
func TestParseAnalyzeArgs_Errors(t *testing.T) {
	badConfig := writeTemp(t, "bad.yaml", "csv_prefix: \"\"\n")

	tests := []struct {
		name string
		args []string
	}{
		{"no trace", nil},
		{"two traces", []string{"a.trace", "b.trace"}},
		{"verbosity", []string{"-verbosity", "9", "a.trace"}},
		{"unknown flag", []string{"-frobnicate", "a.trace"}},
		{"invalid config", []string{"-config", badConfig, "a.trace"}},
		{"missing syscall file", []string{"-syscall-file", filepath.Join(t.TempDir(), "none"), "a.trace"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseAnalyzeArgs(tt.args, io.Discard)
			if err == nil {
				t.Fatal("Expected an error")
			}
			t.Logf("%s: %v", tt.name, err)
		})
	}
}

func analyzeConfigFor(t *testing.T, trace string, shortcuts bool) *analyzeConfig {
	t.Helper()
	cfg := config.Default()
	cfg.Shortcuts = shortcuts
	cfg.CSVPrefix = filepath.Join(t.TempDir(), "out", "app")
	return &analyzeConfig{cfg: cfg, tracePath: writeTemp(t, "app.trace", trace), pretty: true, verbosity: 3}
}

// TestRunAnalyze tests a full analysis: reports, summary and pretty output.
func TestRunAnalyze(t *testing.T) {
	ac := analyzeConfigFor(t, copyTrace, true)

	var out bytes.Buffer
	if err := runAnalyze(context.Background(), ac, &out); err != nil {
		t.Fatalf("runAnalyze() error: %v", err)
	}
	t.Logf("output:\n%s", out.String())

	tables, err := report.ReadFiles(ac.cfg.CSVPrefix)
	if err != nil {
		t.Fatalf("ReadFiles: %v", err)
	}
	if len(tables.Registers) != 2 || len(tables.Memory) != 8 || len(tables.Syscalls) != 0 {
		t.Errorf("Unexpected report sizes: %d/%d/%d", len(tables.Registers), len(tables.Memory), len(tables.Syscalls))
	}
	// With shortcuts the load depends on the mov of the immediate.
	if w := tables.Memory[0].Writer; w != (report.Location{Image: "app", Offset: 0x1000}) {
		t.Errorf("Memory writer = %v, want app+0x1000", w)
	}

	for _, want := range []string{"Dependencies:", "2 register, 8 memory", "MEMORY DEPENDENCIES", ac.cfg.CSVPrefix + ".memory_dependencies.csv"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Output lacks %q", want)
		}
	}
}

// TestRunAnalyze_PartialOnInvariant tests that an invariant violation still
// flushes the dependencies found before it.
func TestRunAnalyze_PartialOnInvariant(t *testing.T) {
	ac := analyzeConfigFor(t, copyTrace+"x 1 0x402000\n", false)

	err := runAnalyze(context.Background(), ac, io.Discard)
	var inv *deps.InvariantError
	if !errors.As(err, &inv) {
		t.Fatalf("runAnalyze() error = %v, want InvariantError", err)
	}
	t.Logf("invariant: %v", err)

	tables, err := report.ReadFiles(ac.cfg.CSVPrefix)
	if err != nil {
		t.Fatalf("ReadFiles: %v", err)
	}
	if len(tables.Registers) != 2 {
		t.Errorf("Expected the 2 register edges replayed before the violation, got %d", len(tables.Registers))
	}
}

// TestRunAnalyze_Cancelled tests that an interrupted analysis still writes
// its reports.
func TestRunAnalyze_Cancelled(t *testing.T) {
	ac := analyzeConfigFor(t, copyTrace, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runAnalyze(ctx, ac, io.Discard)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("runAnalyze() error = %v, want context.Canceled", err)
	}
	if _, err := os.Stat(ac.cfg.CSVPrefix + report.RegisterSuffix); err != nil {
		t.Errorf("Reports not written after cancellation: %v", err)
	}
}

// TestRunAnalyze_MissingTrace tests that no reports are written when the
// trace cannot be opened.
func TestRunAnalyze_MissingTrace(t *testing.T) {
	ac := analyzeConfigFor(t, copyTrace, false)
	ac.tracePath = filepath.Join(t.TempDir(), "missing.trace")

	if err := runAnalyze(context.Background(), ac, io.Discard); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("runAnalyze() error = %v, want os.ErrNotExist", err)
	}
	if _, err := os.Stat(ac.cfg.CSVPrefix + report.RegisterSuffix); err == nil {
		t.Error("Reports written for a missing trace")
	}
}

// TestPrintSummary tests the plain summary layout.
func TestPrintSummary(t *testing.T) {
	var out bytes.Buffer
	printSummary(&out,
		deps.Summary{Lines: 12, Incomplete: 1},
		deps.Stats{Instructions: 4, Executions: 4, Threads: 1, RegisterEdges: 2, MemoryEdges: 8},
		report.PathsFor("p"), false)

	got := out.String()
	for _, want := range []string{
		"Trace:        12 lines, 4 instructions, 4 executions, 1 threads\n",
		"Dependencies: 2 register, 8 memory, 0 merge nodes (0 reused)\n",
		"Warning: 1 instructions have implicit operands that are not modelled\n",
		"Reports:      p.register_dependencies.csv\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Summary lacks %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "\x1b[") {
		t.Error("Plain summary contains escape sequences")
	}
}

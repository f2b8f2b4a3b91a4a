package deps

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/log"

	"github.com/kolkov/datadeps/internal/arch/amd64"
	"github.com/kolkov/datadeps/internal/config"
	"github.com/kolkov/datadeps/internal/deps/engine"
	"github.com/kolkov/datadeps/internal/report"
	"github.com/kolkov/datadeps/internal/trace"
)

// Config holds the analysis settings. See the config file format in
// [LoadConfig].
type Config = config.Config

// Syscall is one syscall allow-list entry of a Config.
type Syscall = config.Syscall

// Stats are the engine counters of an analysis.
type Stats = engine.Stats

// Summary counts the records of a replayed trace.
type Summary = trace.Summary

// Tables is the flattened dependency graph.
type Tables = report.Tables

// Paths names the CSV files written by WriteCSV.
type Paths = report.Paths

// InvariantError reports a trace that breaks the engine's event ordering
// or identity rules.
type InvariantError = engine.InvariantError

// DefaultConfig returns the defaults of the Pin ddl tool: NOPs ignored,
// shortcuts off, CSV prefix "data_dependencies".
func DefaultConfig() Config {
	return config.Default()
}

// LoadConfig reads and validates a YAML configuration file:
//
//	shortcuts: true
//	ignore_sp: true
//	csv_prefix: out/app
//	syscalls:
//	  - {syscall: read, index: 0, bytes: 16}
func LoadConfig(path string) (Config, error) {
	return config.Load(path)
}

// Analyzer accumulates the dependency graph of one program run.
//
// Thread Safety: Analyze must not be called concurrently. Stats may be
// called at any time, for example from a progress reporter.
type Analyzer struct {
	cfg      Config
	engine   *engine.Engine
	replayer *trace.Replayer
	log      log.Logger
}

// New validates cfg and returns an amd64 analyzer. A nil logger means
// log.Root().
func New(cfg Config, logger log.Logger) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Root()
	}
	opts, err := cfg.EngineOptions(logger)
	if err != nil {
		return nil, err
	}
	e, err := engine.New(amd64.Arch{}, opts)
	if err != nil {
		return nil, err
	}

	ropts := trace.Options{Logger: logger}
	if cfg.Shortcuts {
		ropts.Shortcuts = cfg.ShortcutClasses()
	}
	return &Analyzer{
		cfg:      cfg,
		engine:   e,
		replayer: trace.NewReplayer(e, ropts),
		log:      logger,
	}, nil
}

// Config returns the settings the analyzer was created with.
func (a *Analyzer) Config() Config { return a.cfg }

// Analyze replays one trace into the analyzer.
//
// On error (malformed trace, invariant violation wrapping *InvariantError,
// cancelled ctx) everything replayed before the failure stays in the
// graph, so WriteCSV still reports the partial result.
func (a *Analyzer) Analyze(ctx context.Context, r io.Reader) (Summary, error) {
	return a.replayer.Replay(ctx, r)
}

// AnalyzeFile replays the trace at path. The path "-" reads standard input.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string) (Summary, error) {
	if path == "-" {
		return a.Analyze(ctx, os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("open trace: %w", err)
	}
	defer f.Close()
	return a.Analyze(ctx, f)
}

// Stats returns the engine counters.
func (a *Analyzer) Stats() Stats { return a.engine.Stats() }

// Tables returns a snapshot of the dependency graph.
func (a *Analyzer) Tables() *Tables {
	return report.FromGraph(a.engine.Snapshot())
}

// WriteCSV writes the current graph to the three CSV files named by the
// configured prefix:
//
//	<prefix>.register_dependencies.csv
//	<prefix>.memory_dependencies.csv
//	<prefix>.syscall_instructions.csv
func (a *Analyzer) WriteCSV(ctx context.Context) (Paths, error) {
	paths, err := report.WriteFiles(ctx, a.Tables(), a.cfg.CSVPrefix)
	if err != nil {
		return paths, err
	}
	a.log.Debug("Wrote reports", "prefix", a.cfg.CSVPrefix)
	return paths, nil
}

// Print renders the current graph for humans.
func (a *Analyzer) Print(w io.Writer, colored bool) error {
	return report.NewPrinter(colored).Print(w, a.Tables())
}

// analyze.go implements the 'datadeps analyze' command.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/fatih/color"

	"github.com/kolkov/datadeps/deps"
	"github.com/kolkov/datadeps/internal/config"
)

// verbosityLevels maps -verbosity values to log levels.
var verbosityLevels = []slog.Level{
	log.LevelCrit,
	log.LevelError,
	log.LevelWarn,
	log.LevelInfo,
	log.LevelDebug,
	log.LevelTrace,
}

// analyzeConfig holds the parsed arguments of 'datadeps analyze'.
type analyzeConfig struct {
	cfg       config.Config
	tracePath string
	pretty    bool
	verbosity int
}

// analyzeCommand implements the 'datadeps analyze' command.
//
// Flow:
//  1. Parse flags and merge them over the optional configuration file
//  2. Replay the trace until its end, an error or an interrupt
//  3. Write the CSV reports of everything replayed so far
//  4. Print a summary and, with -pretty, the dependencies
//
// Example:
//
//	datadeps analyze -shortcuts -csv-prefix out/app app.trace
func analyzeCommand(args []string) {
	ac, err := parseAnalyzeArgs(args, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	setupLogging(os.Stderr, ac.verbosity, !color.NoColor)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = runAnalyze(ctx, ac, os.Stdout)
	var inv *deps.InvariantError
	switch {
	case err == nil:
	case errors.As(err, &inv):
		log.Crit("Trace violates engine invariants, partial reports written", "op", inv.Op, "thread", inv.Thread, "ip", inv.IP, "err", err)
	case errors.Is(err, context.Canceled):
		log.Warn("Analysis interrupted, partial reports written")
		stop()
		os.Exit(130)
	default:
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseAnalyzeArgs parses the analyze flags. Flags given explicitly
// override values from -config; unset flags keep the file's values.
func parseAnalyzeArgs(args []string, output io.Writer) (*analyzeConfig, error) {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.SetOutput(output)

	configPath := fs.String("config", "", "YAML configuration file")
	csvPrefix := fs.String("csv-prefix", config.DefaultCSVPrefix, "report file prefix")
	shortcuts := fs.Bool("shortcuts", false, "forward last writers through move-like instructions")
	ignoreNops := fs.Bool("ignore-nops", true, "ignore NOP instructions")
	ignoreSP := fs.Bool("ignore-sp", false, "ignore stack pointer accesses")
	ignoreIP := fs.Bool("ignore-ip", false, "ignore instruction pointer accesses")
	ignoreFP := fs.Bool("ignore-fp-stack", false, "ignore frame pointer reads addressing the stack frame")
	syscallFile := fs.String("syscall-file", "", "syscall allow-list file")
	waitStart := fs.Bool("wait-start", false, "ignore events outside start/stop records")
	pretty := fs.Bool("pretty", false, "print dependencies after writing the reports")
	verbosity := fs.Int("verbosity", 3, "log level 0-5")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		return nil, fmt.Errorf("analyze: expected one trace path, got %d arguments", fs.NArg())
	}
	if *verbosity < 0 || *verbosity >= len(verbosityLevels) {
		return nil, fmt.Errorf("analyze: -verbosity %d out of range 0-%d", *verbosity, len(verbosityLevels)-1)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return nil, err
		}
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "csv-prefix":
			cfg.CSVPrefix = *csvPrefix
		case "shortcuts":
			cfg.Shortcuts = *shortcuts
		case "ignore-nops":
			cfg.IgnoreNops = *ignoreNops
		case "ignore-sp":
			cfg.IgnoreSP = *ignoreSP
		case "ignore-ip":
			cfg.IgnoreIP = *ignoreIP
		case "ignore-fp-stack":
			cfg.IgnoreFPStack = *ignoreFP
		case "syscall-file":
			cfg.SyscallFile = *syscallFile
		case "wait-start":
			cfg.WaitForStart = *waitStart
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &analyzeConfig{
		cfg:       cfg,
		tracePath: fs.Arg(0),
		pretty:    *pretty,
		verbosity: *verbosity,
	}, nil
}

// setupLogging installs the terminal handler as the default logger.
func setupLogging(w io.Writer, verbosity int, useColor bool) {
	h := log.NewTerminalHandlerWithLevel(w, verbosityLevels[verbosity], useColor)
	log.SetDefault(log.NewLogger(h))
}

// runAnalyze replays the trace and writes the reports. The reports are
// written even when the replay fails, so the returned error is the replay
// error unless writing fails too.
func runAnalyze(ctx context.Context, ac *analyzeConfig, stdout io.Writer) error {
	a, err := deps.New(ac.cfg, log.Root())
	if err != nil {
		return err
	}

	in := io.Reader(os.Stdin)
	if ac.tracePath != "-" {
		f, err := os.Open(ac.tracePath)
		if err != nil {
			return fmt.Errorf("open trace: %w", err)
		}
		defer f.Close()
		in = f
	}

	log.Info("Analyzing trace", "path", ac.tracePath, "shortcuts", ac.cfg.Shortcuts, "prefix", ac.cfg.CSVPrefix)
	sum, replayErr := a.Analyze(ctx, in)

	paths, err := a.WriteCSV(context.WithoutCancel(ctx))
	if err != nil {
		return errors.Join(replayErr, err)
	}

	useColor := !color.NoColor
	printSummary(stdout, sum, a.Stats(), paths, useColor)
	if ac.pretty {
		if err := a.Print(stdout, useColor); err != nil {
			return errors.Join(replayErr, err)
		}
	}
	return replayErr
}

// printSummary writes the run statistics and report paths.
func printSummary(w io.Writer, sum deps.Summary, st deps.Stats, paths deps.Paths, useColor bool) {
	label := color.New(color.Bold)
	count := color.New(color.FgCyan)
	if !useColor {
		label.DisableColor()
		count.DisableColor()
	}
	n := func(v any) string { return count.Sprint(v) }

	fmt.Fprintf(w, "%s %s lines, %s instructions, %s executions, %s threads\n",
		label.Sprint("Trace:       "), n(sum.Lines), n(st.Instructions), n(st.Executions), n(st.Threads))
	fmt.Fprintf(w, "%s %s register, %s memory, %s merge nodes (%s reused)\n",
		label.Sprint("Dependencies:"), n(st.RegisterEdges), n(st.MemoryEdges), n(st.MergeNodes), n(st.MergeReused))
	fmt.Fprintf(w, "%s %s forwarded, %s zero idioms, %s filtered, %s nops\n",
		label.Sprint("Accesses:    "), n(st.Forwarded), n(st.ZeroSkipped), n(st.Filtered), n(st.NopsSkipped))
	fmt.Fprintf(w, "%s %s seen, %s tracked\n",
		label.Sprint("Syscalls:    "), n(st.Syscalls), n(st.TrackedSyscalls))
	if sum.Incomplete > 0 {
		warn := color.New(color.FgYellow)
		if !useColor {
			warn.DisableColor()
		}
		fmt.Fprintf(w, "%s\n", warn.Sprintf("Warning: %d instructions have implicit operands that are not modelled", sum.Incomplete))
	}
	fmt.Fprintf(w, "%s %s\n              %s\n              %s\n",
		label.Sprint("Reports:     "), paths.Registers, paths.Memory, paths.Syscalls)
}

// classify.go implements the 'datadeps classify' command.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/kolkov/datadeps/internal/arch/amd64"
	"github.com/kolkov/datadeps/internal/config"
	"github.com/kolkov/datadeps/internal/deps/shortcut"
	"github.com/kolkov/datadeps/internal/trace"
)

// classifyCommand implements the 'datadeps classify' command: it decodes
// each hex argument and shows the class, the operand list the analyzer
// derives and the shortcut overrides that apply.
//
// Example:
//
//	datadeps classify 4889c3 "f3 a4"
func classifyCommand(args []string) {
	fs := flag.NewFlagSet("classify", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML configuration with extra shortcut classes")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(1)
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: classify needs at least one hex instruction")
		os.Exit(1)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	if err := classify(os.Stdout, fs.Args(), cfg.ShortcutClasses()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// classify writes one block per instruction. It stops at the first
// instruction that cannot be decoded.
func classify(w io.Writer, hexes []string, table shortcut.Table) error {
	for i, h := range hexes {
		if i > 0 {
			fmt.Fprintln(w)
		}
		d, err := amd64.DecodeHex(h)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s  %s\n", strings.ReplaceAll(h, " ", ""), d)
		fmt.Fprintf(w, "  class:     %s\n", d.Class)
		if d.Nop {
			fmt.Fprintf(w, "  nop:       yes\n")
		}
		if d.ZeroIdiom {
			fmt.Fprintf(w, "  zeroes:    %s (no read dependency)\n", amd64.RegisterName(amd64.Canonical(d.ZeroReg)))
		}

		ops, err := d.Operands()
		switch {
		case errors.Is(err, amd64.ErrImplicitOperands):
			fmt.Fprintf(w, "  operands:  %s (implicit operands not modelled)\n", trace.FormatOperands(ops))
			continue
		case err != nil:
			return err
		}
		fmt.Fprintf(w, "  operands:  %s\n", trace.FormatOperands(ops))

		pairs, ok := table.Lookup(d.Class)
		if !ok {
			continue
		}
		ov, err := shortcut.Resolve(pairs, ops)
		if err != nil {
			return fmt.Errorf("%s: %w", d.Class, err)
		}
		if len(ov) == 0 {
			fmt.Fprintf(w, "  shortcut:  none applicable\n")
			continue
		}
		writes := make([]int, 0, len(ov))
		for k := range ov {
			writes = append(writes, k)
		}
		sort.Ints(writes)
		for _, k := range writes {
			fmt.Fprintf(w, "  shortcut:  %d <- %d (%s)\n", k, ov[k].Read, ov[k].Combination)
		}
	}
	return nil
}

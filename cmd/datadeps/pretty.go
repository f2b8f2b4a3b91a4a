// pretty.go implements the 'datadeps pretty' command.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/kolkov/datadeps/internal/config"
	"github.com/kolkov/datadeps/internal/report"
)

// prettyCommand prints the three CSV reports written for a prefix.
//
// Example:
//
//	datadeps pretty out/app
func prettyCommand(args []string) {
	fs := flag.NewFlagSet("pretty", flag.ContinueOnError)
	plain := fs.Bool("plain", false, "disable colours")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(1)
	}

	prefix := config.DefaultCSVPrefix
	switch fs.NArg() {
	case 0:
	case 1:
		prefix = fs.Arg(0)
	default:
		fmt.Fprintln(os.Stderr, "Error: pretty takes at most one report prefix")
		os.Exit(1)
	}

	tables, err := report.ReadFiles(prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := report.NewPrinter(!*plain && !color.NoColor).Print(os.Stdout, tables); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

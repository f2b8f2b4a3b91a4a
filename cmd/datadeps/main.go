// Package main implements the datadeps CLI tool.
//
// datadeps reconstructs read-after-write data dependencies of a program
// run from an instruction trace. It works by:
//
//  1. Reading the static instruction records of the trace and decoding
//     their operands
//  2. Replaying every dynamic execution against per-thread register and
//     per-byte memory last-writer tables
//  3. Writing the dependency graph as CSV files in the layout of the
//     Pin ddl tool
//
// Usage:
//
//	datadeps analyze app.trace            # Analyze a trace
//	datadeps classify 4889c3 0f05         # Decode instruction bytes
//	datadeps pretty data_dependencies     # Print existing CSV reports
package main

import (
	"fmt"
	"os"

	"github.com/kolkov/datadeps/deps"
	"github.com/kolkov/datadeps/internal/trace"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "analyze":
		analyzeCommand(os.Args[2:])
	case "classify":
		classifyCommand(os.Args[2:])
	case "pretty":
		prettyCommand(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("datadeps version %s (trace format %s)\n", deps.Version, trace.CurrentVersion)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`datadeps - Data Dependency Analyzer

USAGE:
    datadeps <command> [arguments]

COMMANDS:
    analyze    Reconstruct data dependencies from a trace
    classify   Decode amd64 instruction bytes and show their operands
    pretty     Print the CSV reports of an earlier analysis
    version    Show version information
    help       Show this help message

ANALYZE FLAGS (before the trace path):
    -config file          YAML configuration, overridden by explicit flags
    -csv-prefix prefix    Report file prefix (default "data_dependencies")
    -shortcuts            Forward last writers through move-like instructions
    -ignore-nops          Ignore NOP instructions (default true)
    -ignore-sp            Ignore stack pointer reads and writes
    -ignore-ip            Ignore instruction pointer reads and writes
    -ignore-fp-stack      Ignore frame pointer reads addressing the stack frame
    -syscall-file file    Syscall allow-list, one "name,index,bytes" per line
    -wait-start           Ignore events outside start/stop trace records
    -pretty               Print the dependencies after writing the reports
    -verbosity n          Log level 0-5: crit, error, warn, info, debug, trace (default 3)

EXAMPLES:
    # Analyze a trace with shortcuts, reports under out/
    datadeps analyze -shortcuts -csv-prefix out/app app.trace

    # Track the 16 bytes read by the first read(2)
    echo "read,0,16" > syscalls.txt
    datadeps analyze -syscall-file syscalls.txt app.trace

    # Read the trace from standard input
    tracer ./app | datadeps analyze -

    # Show how an instruction is modelled
    datadeps classify 48891e f3a4

OUTPUT:
    <prefix>.register_dependencies.csv   Write_img,Write_off,Register,Read_img,Read_off
    <prefix>.memory_dependencies.csv     Write_img,Write_off,Memory,Read_img,Read_off
    <prefix>.syscall_instructions.csv    image_name,image_offset,index,thread_id,syscall_id

    On interrupt or a trace error the dependencies found so far are still
    written.

`)
}

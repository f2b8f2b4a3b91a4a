// Package deps reconstructs read-after-write data dependencies from
// instruction traces.
//
// For every executed instruction the analyzer determines which earlier
// instruction last wrote each register and each memory byte it reads. The
// result is a dependency graph between static instructions, labelled with
// their image and offset, that can be written as CSV files or printed.
//
// # Quick Start
//
//	cfg := deps.DefaultConfig()
//	cfg.CSVPrefix = "out/app"
//
//	a, err := deps.New(cfg, nil)
//	if err != nil {
//		return err
//	}
//	f, _ := os.Open("app.trace")
//	defer f.Close()
//
//	if _, err := a.Analyze(ctx, f); err != nil {
//		return err
//	}
//	paths, err := a.WriteCSV(ctx)
//
// The same workflow is available from the command line:
//
//	$ datadeps analyze -csv-prefix out/app app.trace
//
// # Traces
//
// A trace is a line-oriented text file. It registers every static
// instruction once (address, image label, raw bytes or an explicit operand
// list) and then lists dynamic executions with their effective addresses:
//
//	#datadeps-trace v1.0.0 arch=amd64
//	ins 0x401000 img=/bin/app off=0x1000 bytes=4889c3
//	thread 1 sp=0x7ffc0000
//	x 1 0x401000
//
// Tracers that cannot provide operand lists send instruction bytes; the
// amd64 frontend decodes them and derives explicit and implicit operands.
//
// # Options
//
// Config mirrors the knobs of the Pin ddl tool:
//   - Shortcuts forwards last writers through move-like instructions, so
//     that a copy does not become a dependency node of its own.
//   - IgnoreNops (default) drops NOP and ENDBR instructions.
//   - IgnoreSP, IgnoreIP and IgnoreFPStack drop stack pointer,
//     instruction pointer and frame-pointer stack reads.
//   - Syscalls attributes bytes written by selected syscall occurrences
//     (read, pread64, recvfrom, getrandom) to a synthetic writer.
//   - WaitForStart ignores everything outside start/stop trace records.
//
// # Output
//
// WriteCSV produces the three files of the Pin ddl tool, see
// [Analyzer.WriteCSV]. Print renders the same tables for humans.
package deps

// Package trace reads instruction traces and replays them into the
// dependency engine.
//
// A trace is UTF-8 text, one record per line. Lines starting with '#' are
// comments, except the mandatory first line:
//
//	#datadeps-trace v1.0.0 arch=amd64
//
// The version is a semantic version; readers accept any v1.x trace.
//
// # Records
//
//	ins <ip> img=<path> off=<hex> [sec=<name>] [rtn=<name>] [class=<NAME>] [bytes=<hex>] [ops=<operands>]
//	thread <tid> sp=<hex>
//	x <tid> <ip> [m<k>=<hex>]... [sp=<hex>] [nt]
//	sys <tid> <ip> <nr> [<arg0> ... <arg5>]
//	start
//	stop
//
// Addresses and offsets are hexadecimal with an optional 0x prefix; thread
// ids and syscall numbers are decimal.
//
// An ins record describes a static instruction and must precede its first
// execution. With bytes= the instruction is decoded to derive its class,
// NOP and zeroing-idiom flags and, unless ops= is given, its operands.
//
// Operands are separated by ';', fields by '/':
//
//	r/<reg>/<r|w|rw>
//	m/<k>/<r|w|rw|->/<size>[/base=<reg>][/index=<reg>]
//	i
//
// An x record executes an instruction once. m<k> gives the effective
// address of memory operand k; nt marks a predicated instruction whose
// predicate was false.
//
// # Usage
//
//	e, _ := engine.New(amd64.Arch{}, engine.DefaultOptions())
//	rp := trace.NewReplayer(e, trace.Options{Shortcuts: amd64.DefaultShortcuts()})
//	sum, err := rp.Replay(ctx, f)
package trace

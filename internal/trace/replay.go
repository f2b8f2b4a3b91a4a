package trace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/time/rate"

	"github.com/kolkov/datadeps/internal/arch/amd64"
	"github.com/kolkov/datadeps/internal/deps/engine"
	"github.com/kolkov/datadeps/internal/deps/shortcut"
)

// cancelCheckEvery is how many records are replayed between context checks.
const cancelCheckEvery = 4096

// ErrArchMismatch is returned when the trace architecture differs from the
// engine's.
var ErrArchMismatch = errors.New("trace architecture does not match engine")

// Options configures a Replayer.
type Options struct {
	// Shortcuts is the class table used to mark move-like instructions.
	// Nil disables shortcut resolution even if the engine enables it.
	Shortcuts shortcut.Table
	// Logger receives progress and warnings. Defaults to log.Root().
	Logger log.Logger
	// ProgressInterval throttles progress logs. Zero means 10 seconds.
	ProgressInterval time.Duration
}

// Summary counts the records of a replayed trace.
type Summary struct {
	Lines        int
	Instructions int
	Executions   int
	Threads      int
	Syscalls     int
	Windows      int
	// Incomplete counts decoded instructions whose implicit operands are
	// not modelled.
	Incomplete int
}

// Replayer drives an engine from a trace, playing the role of the
// instrumentation layer.
type Replayer struct {
	e        *engine.Engine
	opts     Options
	log      log.Logger
	progress *rate.Sometimes
	warn     *rate.Sometimes
}

// NewReplayer returns a replayer feeding e.
func NewReplayer(e *engine.Engine, opts Options) *Replayer {
	logger := opts.Logger
	if logger == nil {
		logger = log.Root()
	}
	interval := opts.ProgressInterval
	if interval == 0 {
		interval = 10 * time.Second
	}
	return &Replayer{
		e:        e,
		opts:     opts,
		log:      logger,
		progress: &rate.Sometimes{Interval: interval},
		warn:     &rate.Sometimes{First: 5, Interval: interval},
	}
}

// Replay reads the whole trace from r into the engine.
//
// Replay stops at the first malformed record, at the first engine invariant
// violation (returned as an error wrapping *engine.InvariantError, annotated
// with the trace line) or when ctx is cancelled. The engine keeps
// everything delivered before the stop, so the caller can still report the
// partial graph.
func (rp *Replayer) Replay(ctx context.Context, r io.Reader) (Summary, error) {
	var sum Summary
	tr, err := NewReader(r)
	if err != nil {
		return sum, err
	}
	if arch := rp.e.Arch().Name(); tr.Header().Arch != arch {
		return sum, fmt.Errorf("%w: trace %s, engine %s", ErrArchMismatch, tr.Header().Arch, arch)
	}
	rp.log.Debug("Replaying trace", "version", tr.Header().Version, "arch", tr.Header().Arch)

	for n := 0; ; n++ {
		if n%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return sum, fmt.Errorf("replay interrupted at line %d: %w", tr.line, err)
			}
		}
		rec, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sum, err
		}
		sum.Lines = rec.Line()
		if err := rp.apply(rec, &sum); err != nil {
			return sum, fmt.Errorf("trace line %d: %w", rec.Line(), err)
		}
		rp.progress.Do(func() {
			rp.log.Info("Replaying trace", "line", sum.Lines, "executions", sum.Executions, "syscalls", sum.Syscalls)
		})
	}
	sum.Lines = tr.line
	return sum, nil
}

// apply delivers one record, converting invariant violations into errors.
func (rp *Replayer) apply(rec Record, sum *Summary) (err error) {
	defer engine.Recover(&err)

	switch rec := rec.(type) {
	case *Ins:
		st, complete, err := rp.static(rec)
		if err != nil {
			return err
		}
		rp.e.RegisterInstruction(rec.IP, st)
		sum.Instructions++
		if !complete {
			sum.Incomplete++
		}
	case *Thread:
		rp.e.OnThreadStart(rec.TID, rec.SP)
		sum.Threads++
	case *Exec:
		rp.e.Step(rec.TID, rec.IP, engine.Exec{EA: rec.EA, SP: rec.SP, Skipped: rec.Skipped})
		sum.Executions++
	case *Syscall:
		rp.e.OnSyscall(rec.TID, rec.IP, rec.Number, rec.Args)
		sum.Syscalls++
	case *Window:
		if rec.Start {
			rp.e.Start()
		} else {
			rp.e.Stop()
		}
		sum.Windows++
	default:
		return fmt.Errorf("unexpected record %T", rec)
	}
	return nil
}

// Static builds the engine description of an ins record.
//
// Bytes, when present, are decoded for the class, the NOP and zeroing idiom
// flags and, without an explicit operand list, the operands. Without bytes
// the zeroing idiom is recognised from the class and operand list. An explicit
// class= overrides the decoded one. Move-like classes get their shortcut
// overrides resolved against the operand list.
func (rp *Replayer) Static(rec *Ins) (engine.Static, error) {
	st, _, err := rp.static(rec)
	return st, err
}

func (rp *Replayer) static(rec *Ins) (engine.Static, bool, error) {
	st := engine.Static{Label: rec.Label, Class: rec.Class, Operands: rec.Ops}
	complete := true

	if len(rec.Bytes) > 0 {
		d, err := amd64.Decode(rec.Bytes)
		if err != nil {
			return engine.Static{}, false, err
		}
		if st.Class == "" {
			st.Class = d.Class
		}
		st.Nop = d.Nop
		st.ZeroIdiom, st.ZeroReg = d.ZeroIdiom, d.ZeroReg
		if !rec.HasOps {
			ops, err := d.Operands()
			switch {
			case errors.Is(err, amd64.ErrImplicitOperands):
				complete = false
				rp.warn.Do(func() {
					rp.log.Warn("Implicit operands not modelled", "ip", rec.IP, "insn", d.String())
				})
			case err != nil:
				return engine.Static{}, false, err
			}
			st.Operands = ops
		}
	}
	if len(rec.Bytes) == 0 {
		st.ZeroIdiom, st.ZeroReg = amd64.ZeroIdiomOperands(st.Class, st.Operands)
	}
	switch st.Class {
	case "NOP", "ENDBR64", "ENDBR32", "PAUSE":
		st.Nop = true
	}

	if pairs, ok := rp.opts.Shortcuts.Lookup(st.Class); ok {
		ov, err := shortcut.Resolve(pairs, st.Operands)
		if err != nil {
			return engine.Static{}, false, fmt.Errorf("%s at %s: %w", st.Class, rec.IP, err)
		}
		st.MoveLike, st.Overrides = true, ov
	}
	return st, complete, nil
}

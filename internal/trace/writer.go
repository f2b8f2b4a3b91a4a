package trace

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kolkov/datadeps/internal/arch/amd64"
	"github.com/kolkov/datadeps/internal/deps/instr"
)

// Writer emits traces in the text format read by Reader. Errors are sticky:
// after the first failed write every method is a no-op and Flush returns
// the error.
type Writer struct {
	w   *bufio.Writer
	err error
}

// NewWriter writes the header for arch and returns a Writer.
func NewWriter(w io.Writer, arch string) *Writer {
	tw := &Writer{w: bufio.NewWriter(w)}
	tw.printf("%s\n", Header{Version: CurrentVersion, Arch: arch})
	return tw
}

func (w *Writer) printf(format string, args ...any) {
	if w.err != nil {
		return
	}
	_, w.err = fmt.Fprintf(w.w, format, args...)
}

// Ins writes a static instruction record.
func (w *Writer) Ins(rec *Ins) {
	var b strings.Builder
	fmt.Fprintf(&b, "ins %#x img=%s", uint64(rec.IP), rec.Label.Image)
	if rec.Label.Offset >= 0 {
		fmt.Fprintf(&b, " off=%#x", rec.Label.Offset)
	}
	if rec.Label.Section != "" {
		b.WriteString(" sec=" + rec.Label.Section)
	}
	if rec.Label.Routine != "" {
		b.WriteString(" rtn=" + rec.Label.Routine)
	}
	if rec.Class != "" {
		b.WriteString(" class=" + rec.Class)
	}
	if len(rec.Bytes) > 0 {
		b.WriteString(" bytes=" + hex.EncodeToString(rec.Bytes))
	}
	if rec.HasOps {
		b.WriteString(" ops=" + FormatOperands(rec.Ops))
	}
	w.printf("%s\n", b.String())
}

// Thread writes a thread start record.
func (w *Writer) Thread(tid instr.ThreadID, sp uint64) {
	w.printf("thread %d sp=%#x\n", tid, sp)
}

// Exec writes an execution record.
func (w *Writer) Exec(rec *Exec) {
	var b strings.Builder
	fmt.Fprintf(&b, "x %d %#x", rec.TID, uint64(rec.IP))
	for k, ea := range rec.EA {
		fmt.Fprintf(&b, " m%d=%#x", k, ea)
	}
	if rec.SP != 0 {
		fmt.Fprintf(&b, " sp=%#x", rec.SP)
	}
	if rec.Skipped {
		b.WriteString(" nt")
	}
	w.printf("%s\n", b.String())
}

// Syscall writes a syscall record with all six arguments.
func (w *Writer) Syscall(rec *Syscall) {
	var b strings.Builder
	fmt.Fprintf(&b, "sys %d %#x %d", rec.TID, uint64(rec.IP), rec.Number)
	for _, a := range rec.Args {
		fmt.Fprintf(&b, " %#x", a)
	}
	w.printf("%s\n", b.String())
}

// Start writes a window open record.
func (w *Writer) Start() { w.printf("start\n") }

// Stop writes a window close record.
func (w *Writer) Stop() { w.printf("stop\n") }

// Comment writes a comment line.
func (w *Writer) Comment(text string) { w.printf("# %s\n", text) }

// Flush writes buffered data and returns the first error encountered.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	return w.w.Flush()
}

// FormatOperands renders amd64 operands in the ops= syntax.
func FormatOperands(ops []instr.Operand) string {
	parts := make([]string, 0, len(ops))
	for _, op := range ops {
		switch op.Kind {
		case instr.OperandReg:
			parts = append(parts, "r/"+amd64.RegisterName(op.Reg)+"/"+op.Access.String())
		case instr.OperandMem:
			s := "m/" + strconv.Itoa(op.Mem) + "/" + op.Access.String() + "/" + strconv.FormatUint(uint64(op.Size), 10)
			if op.Base != instr.RegNone {
				s += "/base=" + amd64.RegisterName(op.Base)
			}
			if op.Index != instr.RegNone {
				s += "/index=" + amd64.RegisterName(op.Index)
			}
			parts = append(parts, s)
		default:
			parts = append(parts, "i")
		}
	}
	return strings.Join(parts, ";")
}

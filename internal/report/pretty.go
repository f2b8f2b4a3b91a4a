package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Printer renders Tables in a human-readable form: one section per table,
// one block per row.
type Printer struct {
	heading *color.Color
	writer  *color.Color
	reader  *color.Color
	value   *color.Color
}

// NewPrinter returns a Printer. With colored false the output is plain text
// regardless of the terminal; with colored true it follows fatih/color's
// terminal detection.
func NewPrinter(colored bool) *Printer {
	p := &Printer{
		heading: color.New(color.Bold),
		writer:  color.New(color.FgYellow),
		reader:  color.New(color.FgGreen),
		value:   color.New(color.FgCyan),
	}
	if !colored {
		for _, c := range []*color.Color{p.heading, p.writer, p.reader, p.value} {
			c.DisableColor()
		}
	}
	return p
}

// Print writes the syscall, register and memory sections to w.
//
// Example output:
//
//	REGISTER DEPENDENCIES
//	=====================
//
//	Instructions: app+0x1139 <- app+0x1140
//	Register:     rax
func (p *Printer) Print(w io.Writer, t *Tables) error {
	ew := &errWriter{w: w}

	p.section(ew, "SYSTEM CALL INSTRUCTIONS")
	for _, r := range t.Syscalls {
		fmt.Fprintf(ew, "Instruction: %s (syscall index %d, thread %d, call %d)\n",
			p.writer.Sprint(r.Instruction), r.Index, r.Thread, r.SyscallID)
	}

	p.section(ew, "REGISTER DEPENDENCIES")
	for _, r := range t.Registers {
		fmt.Fprintf(ew, "Instructions: %s <- %s\n", p.writer.Sprint(r.Writer), p.reader.Sprint(r.Reader))
		fmt.Fprintf(ew, "Register:     %s\n\n", p.value.Sprint(r.Register))
	}

	p.section(ew, "MEMORY DEPENDENCIES")
	for _, r := range t.Memory {
		fmt.Fprintf(ew, "Instructions:   %s <- %s\n", p.writer.Sprint(r.Writer), p.reader.Sprint(r.Reader))
		fmt.Fprintf(ew, "Memory address: %s\n\n", p.value.Sprintf("%#x", r.Addr))
	}
	return ew.err
}

func (p *Printer) section(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s\n%s\n\n", p.heading.Sprint(title), strings.Repeat("=", len(title)))
}

// errWriter remembers the first write error and drops later writes.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(b []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(b)
	e.err = err
	return n, err
}

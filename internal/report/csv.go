package report

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Column headers of the three report files.
var (
	RegisterHeader = []string{"Write_img", "Write_off", "Register", "Read_img", "Read_off"}
	MemoryHeader   = []string{"Write_img", "Write_off", "Memory", "Read_img", "Read_off"}
	SyscallHeader  = []string{"image_name", "image_offset", "index", "thread_id", "syscall_id"}
)

// ErrFormat is wrapped by every error about malformed report files.
var ErrFormat = errors.New("malformed report")

// Paths holds the three report file names for a prefix.
type Paths struct {
	Registers string
	Memory    string
	Syscalls  string
}

// PathsFor returns the report file names for prefix.
func PathsFor(prefix string) Paths {
	return Paths{
		Registers: prefix + RegisterSuffix,
		Memory:    prefix + MemorySuffix,
		Syscalls:  prefix + SyscallSuffix,
	}
}

// WriteFiles writes the three CSV files for prefix concurrently, creating
// the prefix directory if needed. A file that fails to write is removed so
// that a stale partial report is never left behind.
func WriteFiles(ctx context.Context, t *Tables, prefix string) (Paths, error) {
	p := PathsFor(prefix)
	if dir := filepath.Dir(prefix); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return p, fmt.Errorf("create report directory: %w", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, job := range []struct {
		path  string
		write func(io.Writer) error
	}{
		{p.Registers, t.WriteRegisters},
		{p.Memory, t.WriteMemory},
		{p.Syscalls, t.WriteSyscalls},
	} {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return writeFile(job.path, job.write)
		})
	}
	return p, g.Wait()
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
			err = fmt.Errorf("write %s: %w", path, err)
		}
	}()
	return write(f)
}

// rowWriter emits CSV lines in the exact layout of the Pin ddl tool. Image
// names are quoted unconditionally, which encoding/csv cannot express.
type rowWriter struct {
	w   *bufio.Writer
	err error
}

func newRowWriter(w io.Writer, header []string) *rowWriter {
	rw := &rowWriter{w: bufio.NewWriter(w)}
	rw.line(strings.Join(header, ","))
	return rw
}

func (rw *rowWriter) line(s string) {
	if rw.err != nil {
		return
	}
	if _, err := rw.w.WriteString(s); err != nil {
		rw.err = err
		return
	}
	rw.err = rw.w.WriteByte('\n')
}

func (rw *rowWriter) flush() error {
	if rw.err != nil {
		return rw.err
	}
	return rw.w.Flush()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func (l Location) fields() string {
	return quote(l.Image) + "," + strconv.FormatInt(l.Offset, 10)
}

// WriteRegisters writes the register dependency CSV to w.
func (t *Tables) WriteRegisters(w io.Writer) error {
	rw := newRowWriter(w, RegisterHeader)
	for _, r := range t.Registers {
		rw.line(r.Writer.fields() + "," + r.Register + "," + r.Reader.fields())
	}
	return rw.flush()
}

// WriteMemory writes the memory dependency CSV to w.
func (t *Tables) WriteMemory(w io.Writer) error {
	rw := newRowWriter(w, MemoryHeader)
	for _, r := range t.Memory {
		rw.line(r.Writer.fields() + "," + strconv.FormatUint(r.Addr, 10) + "," + r.Reader.fields())
	}
	return rw.flush()
}

// WriteSyscalls writes the tracked syscall CSV to w.
func (t *Tables) WriteSyscalls(w io.Writer) error {
	rw := newRowWriter(w, SyscallHeader)
	for _, r := range t.Syscalls {
		rw.line(r.Instruction.fields() + "," +
			strconv.FormatUint(r.Index, 10) + "," +
			strconv.FormatUint(r.Thread, 10) + "," +
			strconv.FormatUint(r.SyscallID, 10))
	}
	return rw.flush()
}

// ReadFiles loads the three report files written for prefix.
func ReadFiles(prefix string) (*Tables, error) {
	p := PathsFor(prefix)
	t := &Tables{}
	for _, job := range []struct {
		path string
		read func(io.Reader) error
	}{
		{p.Syscalls, t.readSyscalls},
		{p.Registers, t.readRegisters},
		{p.Memory, t.readMemory},
	} {
		if err := readFile(job.path, job.read); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func readFile(path string, read func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open report: %w", err)
	}
	defer f.Close()
	if err := read(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// ReadTables parses the three CSV streams. Nil readers leave the
// corresponding table empty.
func ReadTables(registers, memory, syscalls io.Reader) (*Tables, error) {
	t := &Tables{}
	if registers != nil {
		if err := t.readRegisters(registers); err != nil {
			return nil, fmt.Errorf("registers: %w", err)
		}
	}
	if memory != nil {
		if err := t.readMemory(memory); err != nil {
			return nil, fmt.Errorf("memory: %w", err)
		}
	}
	if syscalls != nil {
		if err := t.readSyscalls(syscalls); err != nil {
			return nil, fmt.Errorf("syscalls: %w", err)
		}
	}
	return t, nil
}

// readRows checks the header and calls fn for every record. Line numbers
// in errors are 1-based and count the header.
func readRows(r io.Reader, header []string, fn func(rec []string) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(header)
	cr.ReuseRecord = true

	got, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: missing header", ErrFormat)
		}
		return fmt.Errorf("%w: %w", ErrFormat, err)
	}
	if strings.Join(got, ",") != strings.Join(header, ",") {
		return fmt.Errorf("%w: header %q, want %q", ErrFormat, strings.Join(got, ","), strings.Join(header, ","))
	}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrFormat, err)
		}
		if err := fn(rec); err != nil {
			return fmt.Errorf("%w: line %d: %w", ErrFormat, line, err)
		}
	}
}

func parseLocation(img, off string) (Location, error) {
	n, err := strconv.ParseInt(off, 10, 64)
	if err != nil {
		return Location{}, fmt.Errorf("offset %q: %w", off, err)
	}
	return Location{Image: img, Offset: n}, nil
}

func (t *Tables) readRegisters(r io.Reader) error {
	return readRows(r, RegisterHeader, func(rec []string) error {
		w, err := parseLocation(rec[0], rec[1])
		if err != nil {
			return err
		}
		rd, err := parseLocation(rec[3], rec[4])
		if err != nil {
			return err
		}
		t.Registers = append(t.Registers, RegisterRow{Writer: w, Register: rec[2], Reader: rd})
		return nil
	})
}

func (t *Tables) readMemory(r io.Reader) error {
	return readRows(r, MemoryHeader, func(rec []string) error {
		w, err := parseLocation(rec[0], rec[1])
		if err != nil {
			return err
		}
		addr, err := strconv.ParseUint(rec[2], 10, 64)
		if err != nil {
			return fmt.Errorf("address %q: %w", rec[2], err)
		}
		rd, err := parseLocation(rec[3], rec[4])
		if err != nil {
			return err
		}
		t.Memory = append(t.Memory, MemoryRow{Writer: w, Addr: addr, Reader: rd})
		return nil
	})
}

func (t *Tables) readSyscalls(r io.Reader) error {
	return readRows(r, SyscallHeader, func(rec []string) error {
		loc, err := parseLocation(rec[0], rec[1])
		if err != nil {
			return err
		}
		var nums [3]uint64
		for i, s := range rec[2:] {
			if nums[i], err = strconv.ParseUint(s, 10, 64); err != nil {
				return fmt.Errorf("%s %q: %w", SyscallHeader[i+2], s, err)
			}
		}
		t.Syscalls = append(t.Syscalls, SyscallRow{
			Instruction: loc,
			Index:       nums[0],
			Thread:      nums[1],
			SyscallID:   nums[2],
		})
		return nil
	})
}

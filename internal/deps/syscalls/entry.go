package syscalls

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// maxArgs is the number of syscall arguments passed to the injector.
const maxArgs = 6

type signature struct {
	Number uint64
	BufArg int
}

// ErrBadEntry is returned for allow-list entries that cannot be tracked.
var ErrBadEntry = errors.New("invalid syscall entry")

// Entry is one allow-list entry.
type Entry struct {
	Name   string // Syscall name, empty when given by number
	Number uint64 // Syscall number
	Index  uint64 // Occurrence index of Number, from 0
	Bytes  uint32 // Bytes attributed to the syscall
	BufArg int    // Argument holding the output buffer address
}

// String formats the entry in the legacy line format.
func (e Entry) String() string {
	name := e.Name
	if name == "" {
		name = strconv.FormatUint(e.Number, 10)
	}
	return fmt.Sprintf("%s,%d,%d", name, e.Index, e.Bytes)
}

// Lookup resolves a syscall name to its number and buffer argument.
func Lookup(name string) (number uint64, bufArg int, ok bool) {
	s, ok := known[name]
	return s.Number, s.BufArg, ok
}

// Name returns the name of a known syscall number.
func Name(number uint64) (string, bool) {
	for name, s := range known {
		if s.Number == number {
			return name, true
		}
	}
	return "", false
}

// NewEntry builds an entry from a syscall name or decimal number.
// Numeric syscalls use argument 1 as their buffer, like read.
func NewEntry(syscall string, index uint64, bytes uint32) (Entry, error) {
	syscall = strings.TrimSpace(syscall)
	if nr, bufArg, ok := Lookup(syscall); ok {
		return Entry{Name: syscall, Number: nr, Index: index, Bytes: bytes, BufArg: bufArg}, nil
	}
	nr, err := strconv.ParseUint(syscall, 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: unrecognised system call %q", ErrBadEntry, syscall)
	}
	e := Entry{Number: nr, Index: index, Bytes: bytes, BufArg: 1}
	if name, ok := Name(nr); ok {
		e.Name = name
		_, e.BufArg, _ = Lookup(name)
	}
	return e, nil
}

// ParseEntry parses one "name,index,bytes" line.
func ParseEntry(line string) (Entry, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != 3 {
		return Entry{}, fmt.Errorf("%w: %q: expected format syscall,index,size", ErrBadEntry, line)
	}
	index, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %q: index: %v", ErrBadEntry, line, err)
	}
	bytes, err := strconv.ParseUint(strings.TrimSpace(parts[2]), 10, 32)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %q: size: %v", ErrBadEntry, line, err)
	}
	return NewEntry(parts[0], index, uint32(bytes))
}

// ParseFile reads a legacy allow-list. Blank lines and lines starting with
// '#' are skipped. The returned entries are validated.
func ParseFile(r io.Reader) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		e, err := ParseEntry(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read syscall file: %w", err)
	}
	if err := Validate(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Validate rejects zero sizes, out-of-range buffer arguments and duplicate
// (number, index) pairs. The whole list is rejected on the first bad entry.
func Validate(entries []Entry) error {
	type key struct{ nr, index uint64 }
	seen := make(map[key]struct{}, len(entries))
	for _, e := range entries {
		if e.Bytes == 0 {
			return fmt.Errorf("%w: %s: byte count must be positive", ErrBadEntry, e)
		}
		if e.BufArg < 0 || e.BufArg >= maxArgs {
			return fmt.Errorf("%w: %s: buffer argument %d out of range", ErrBadEntry, e, e.BufArg)
		}
		k := key{e.Number, e.Index}
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%w: %s: duplicate occurrence", ErrBadEntry, e)
		}
		seen[k] = struct{}{}
	}
	return nil
}

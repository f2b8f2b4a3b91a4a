package trace

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/kolkov/datadeps/internal/arch/amd64"
	"github.com/kolkov/datadeps/internal/deps/instr"
)

// HeaderPrefix starts the first line of every trace.
const HeaderPrefix = "#datadeps-trace"

// CurrentVersion is the format version written by this package's tools.
const CurrentVersion = "v1.0.0"

var (
	// ErrBadHeader is returned when the first line is not a valid header or
	// names an unsupported major version.
	ErrBadHeader = errors.New("bad trace header")
	// ErrUnsupportedArch is returned for traces of unknown architectures.
	ErrUnsupportedArch = errors.New("unsupported trace architecture")
	// ErrSyntax is wrapped by every *SyntaxError.
	ErrSyntax = errors.New("trace syntax error")
)

// SyntaxError reports a malformed trace line.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("trace line %d: %s", e.Line, e.Msg)
}

func (e *SyntaxError) Unwrap() error { return ErrSyntax }

// registerParsers resolves register names per architecture.
var registerParsers = map[string]func(string) (instr.Reg, bool){
	"amd64": amd64.ParseRegister,
}

// Header is the parsed first line of a trace.
type Header struct {
	Version string
	Arch    string
}

// String formats the header line.
func (h Header) String() string {
	return fmt.Sprintf("%s %s arch=%s", HeaderPrefix, h.Version, h.Arch)
}

// Reader parses trace records.
//
// Thread Safety: NOT safe for concurrent use.
type Reader struct {
	sc       *bufio.Scanner
	header   Header
	line     int
	parseReg func(string) (instr.Reg, bool)
}

// NewReader reads and validates the trace header.
//
// Returns an error wrapping ErrBadHeader or ErrUnsupportedArch if the first
// line is not acceptable.
func NewReader(r io.Reader) (*Reader, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read trace header: %w", err)
		}
		return nil, fmt.Errorf("%w: empty trace", ErrBadHeader)
	}
	h, err := ParseHeader(sc.Text())
	if err != nil {
		return nil, err
	}
	return &Reader{sc: sc, header: h, line: 1, parseReg: registerParsers[h.Arch]}, nil
}

// ParseHeader parses a header line such as
// "#datadeps-trace v1.0.0 arch=amd64".
func ParseHeader(line string) (Header, error) {
	f := strings.Fields(line)
	if len(f) < 2 || f[0] != HeaderPrefix {
		return Header{}, fmt.Errorf("%w: want %q, got %q", ErrBadHeader, HeaderPrefix+" <version> arch=<arch>", line)
	}
	h := Header{Version: f[1], Arch: "amd64"}
	if !semver.IsValid(h.Version) {
		return Header{}, fmt.Errorf("%w: invalid version %q", ErrBadHeader, h.Version)
	}
	if major := semver.Major(h.Version); major != semver.Major(CurrentVersion) {
		return Header{}, fmt.Errorf("%w: version %s not supported (want %s.x)", ErrBadHeader, h.Version, semver.Major(CurrentVersion))
	}
	for _, kv := range f[2:] {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return Header{}, fmt.Errorf("%w: bad attribute %q", ErrBadHeader, kv)
		}
		if k == "arch" {
			h.Arch = v
		}
	}
	if _, ok := registerParsers[h.Arch]; !ok {
		return Header{}, fmt.Errorf("%w: %q", ErrUnsupportedArch, h.Arch)
	}
	return h, nil
}

// Header returns the trace header.
func (r *Reader) Header() Header { return r.header }

// Next returns the next record, or io.EOF at the end of the trace.
func (r *Reader) Next() (Record, error) {
	for r.sc.Scan() {
		r.line++
		text := strings.TrimSpace(r.sc.Text())
		if text == "" || text[0] == '#' {
			continue
		}
		return r.parse(text)
	}
	if err := r.sc.Err(); err != nil {
		return nil, fmt.Errorf("trace line %d: %w", r.line+1, err)
	}
	return nil, io.EOF
}

func (r *Reader) errorf(format string, args ...any) error {
	return &SyntaxError{Line: r.line, Msg: fmt.Sprintf(format, args...)}
}

func (r *Reader) parse(text string) (Record, error) {
	f := strings.Fields(text)
	switch f[0] {
	case "ins":
		return r.parseIns(f[1:])
	case "thread":
		return r.parseThread(f[1:])
	case "x":
		return r.parseExec(f[1:])
	case "sys":
		return r.parseSyscall(f[1:])
	case "start", "stop":
		if len(f) != 1 {
			return nil, r.errorf("%s takes no arguments", f[0])
		}
		return &Window{LineNo: r.line, Start: f[0] == "start"}, nil
	}
	return nil, r.errorf("unknown record %q", f[0])
}

func (r *Reader) parseIns(f []string) (Record, error) {
	if len(f) < 1 {
		return nil, r.errorf("ins: missing address")
	}
	ip, err := parseHex(f[0])
	if err != nil {
		return nil, r.errorf("ins: address: %v", err)
	}
	rec := &Ins{LineNo: r.line, IP: instr.ID(ip), Label: instr.UnknownLabel}
	for _, kv := range f[1:] {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, r.errorf("ins: bad attribute %q", kv)
		}
		switch k {
		case "img":
			rec.Label.Image = v
		case "off":
			off, err := parseHex(v)
			if err != nil {
				return nil, r.errorf("ins: off: %v", err)
			}
			rec.Label.Offset = int64(off)
		case "sec":
			rec.Label.Section = v
		case "rtn":
			rec.Label.Routine = v
		case "class":
			rec.Class = strings.ToUpper(v)
		case "bytes":
			b, err := hex.DecodeString(v)
			if err != nil || len(b) == 0 {
				return nil, r.errorf("ins: bytes: invalid hex %q", v)
			}
			rec.Bytes = b
		case "ops":
			ops, err := r.parseOperands(v)
			if err != nil {
				return nil, err
			}
			rec.Ops, rec.HasOps = ops, true
		default:
			return nil, r.errorf("ins: unknown attribute %q", k)
		}
	}
	return rec, nil
}

func (r *Reader) parseOperands(s string) ([]instr.Operand, error) {
	if s == "" {
		return nil, nil
	}
	var ops []instr.Operand
	for i, item := range strings.Split(s, ";") {
		op, err := r.parseOperand(item)
		if err != nil {
			return nil, r.errorf("ins: operand %d %q: %v", i, item, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func (r *Reader) parseOperand(s string) (instr.Operand, error) {
	f := strings.Split(s, "/")
	switch f[0] {
	case "i":
		if len(f) != 1 {
			return instr.Operand{}, errors.New("immediate takes no fields")
		}
		return instr.Operand{Kind: instr.OperandImm, Mem: -1}, nil
	case "r":
		if len(f) != 3 {
			return instr.Operand{}, errors.New("want r/<reg>/<access>")
		}
		reg, err := r.register(f[1])
		if err != nil {
			return instr.Operand{}, err
		}
		acc, err := parseAccess(f[2])
		if err != nil {
			return instr.Operand{}, err
		}
		return instr.Operand{Kind: instr.OperandReg, Access: acc, Reg: reg, Mem: -1}, nil
	case "m":
		if len(f) < 4 {
			return instr.Operand{}, errors.New("want m/<k>/<access>/<size>")
		}
		k, err := strconv.Atoi(f[1])
		if err != nil || k < 0 {
			return instr.Operand{}, fmt.Errorf("bad memory operand index %q", f[1])
		}
		acc, err := parseAccess(f[2])
		if err != nil {
			return instr.Operand{}, err
		}
		size, err := strconv.ParseUint(f[3], 10, 32)
		if err != nil || size == 0 {
			return instr.Operand{}, fmt.Errorf("bad size %q", f[3])
		}
		op := instr.Operand{Kind: instr.OperandMem, Access: acc, Mem: k, Size: uint32(size)}
		for _, kv := range f[4:] {
			key, name, ok := strings.Cut(kv, "=")
			if !ok {
				return instr.Operand{}, fmt.Errorf("bad field %q", kv)
			}
			reg, err := r.register(name)
			if err != nil {
				return instr.Operand{}, err
			}
			switch key {
			case "base":
				op.Base = reg
			case "index":
				op.Index = reg
			default:
				return instr.Operand{}, fmt.Errorf("unknown field %q", key)
			}
		}
		return op, nil
	}
	return instr.Operand{}, fmt.Errorf("unknown operand kind %q", f[0])
}

func (r *Reader) register(name string) (instr.Reg, error) {
	reg, ok := r.parseReg(name)
	if !ok {
		return instr.RegNone, fmt.Errorf("unknown %s register %q", r.header.Arch, name)
	}
	return reg, nil
}

func parseAccess(s string) (instr.Access, error) {
	switch s {
	case "r":
		return instr.Read, nil
	case "w":
		return instr.Write, nil
	case "rw":
		return instr.ReadWrite, nil
	case "-":
		return 0, nil
	}
	return 0, fmt.Errorf("bad access %q", s)
}

func (r *Reader) parseThread(f []string) (Record, error) {
	if len(f) != 2 || !strings.HasPrefix(f[1], "sp=") {
		return nil, r.errorf("thread: want thread <tid> sp=<hex>")
	}
	tid, err := parseTID(f[0])
	if err != nil {
		return nil, r.errorf("thread: %v", err)
	}
	sp, err := parseHex(strings.TrimPrefix(f[1], "sp="))
	if err != nil {
		return nil, r.errorf("thread: sp: %v", err)
	}
	return &Thread{LineNo: r.line, TID: tid, SP: sp}, nil
}

func (r *Reader) parseExec(f []string) (Record, error) {
	if len(f) < 2 {
		return nil, r.errorf("x: want x <tid> <ip>")
	}
	tid, err := parseTID(f[0])
	if err != nil {
		return nil, r.errorf("x: %v", err)
	}
	ip, err := parseHex(f[1])
	if err != nil {
		return nil, r.errorf("x: address: %v", err)
	}
	rec := &Exec{LineNo: r.line, TID: tid, IP: instr.ID(ip)}
	var seen []bool
	for _, tok := range f[2:] {
		if tok == "nt" {
			rec.Skipped = true
			continue
		}
		k, v, ok := strings.Cut(tok, "=")
		if !ok {
			return nil, r.errorf("x: bad field %q", tok)
		}
		n, err := parseHex(v)
		if err != nil {
			return nil, r.errorf("x: %s: %v", k, err)
		}
		if k == "sp" {
			rec.SP = n
			continue
		}
		idx, err := strconv.Atoi(strings.TrimPrefix(k, "m"))
		if !strings.HasPrefix(k, "m") || err != nil || idx < 0 || idx > 64 {
			return nil, r.errorf("x: unknown field %q", k)
		}
		for len(rec.EA) <= idx {
			rec.EA = append(rec.EA, 0)
			seen = append(seen, false)
		}
		rec.EA[idx], seen[idx] = n, true
	}
	for i, ok := range seen {
		if !ok {
			return nil, r.errorf("x: missing m%d", i)
		}
	}
	return rec, nil
}

func (r *Reader) parseSyscall(f []string) (Record, error) {
	if len(f) < 3 || len(f) > 9 {
		return nil, r.errorf("sys: want sys <tid> <ip> <nr> [args...]")
	}
	tid, err := parseTID(f[0])
	if err != nil {
		return nil, r.errorf("sys: %v", err)
	}
	ip, err := parseHex(f[1])
	if err != nil {
		return nil, r.errorf("sys: address: %v", err)
	}
	nr, err := strconv.ParseUint(f[2], 10, 64)
	if err != nil {
		return nil, r.errorf("sys: number: %v", err)
	}
	rec := &Syscall{LineNo: r.line, TID: tid, IP: instr.ID(ip), Number: nr}
	for i, a := range f[3:] {
		if rec.Args[i], err = parseHex(a); err != nil {
			return nil, r.errorf("sys: arg%d: %v", i, err)
		}
	}
	return rec, nil
}

func parseHex(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return strconv.ParseUint(s, 16, 64)
}

func parseTID(s string) (instr.ThreadID, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad thread id %q", s)
	}
	return instr.ThreadID(n), nil
}

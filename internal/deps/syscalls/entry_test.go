package syscalls

import (
	"errors"
	"strings"
	"testing"
)

// TestParseEntry verifies the legacy "name,index,bytes" format.
func TestParseEntry(t *testing.T) {
	readNr, _, _ := Lookup("read")

	tests := []struct {
		name    string
		line    string
		want    Entry
		wantErr bool
	}{
		{
			name: "read by name",
			line: "read,0,16",
			want: Entry{Name: "read", Number: readNr, Index: 0, Bytes: 16, BufArg: 1},
		},
		{
			name: "spaces tolerated",
			line: " read , 3 , 4096 ",
			want: Entry{Name: "read", Number: readNr, Index: 3, Bytes: 4096, BufArg: 1},
		},
		{
			name: "numeric syscall",
			line: "9999,1,8",
			want: Entry{Number: 9999, Index: 1, Bytes: 8, BufArg: 1},
		},
		{name: "unknown name", line: "frobnicate,0,1", wantErr: true},
		{name: "too few fields", line: "read,0", wantErr: true},
		{name: "bad index", line: "read,x,1", wantErr: true},
		{name: "negative size", line: "read,0,-1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEntry(tt.line)
			if tt.wantErr {
				if !errors.Is(err, ErrBadEntry) {
					t.Errorf("ParseEntry(%q) error = %v, want ErrBadEntry", tt.line, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseEntry(%q) error = %v", tt.line, err)
			}
			if got != tt.want {
				t.Errorf("ParseEntry(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

// TestParseFile verifies comments, blank lines and eager validation.
func TestParseFile(t *testing.T) {
	entries, err := ParseFile(strings.NewReader("# tracked reads\nread,0,16\n\nread,1,8\n"))
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("ParseFile() = %d entries, want 2", len(entries))
	}

	_, err = ParseFile(strings.NewReader("read,0,16\nbogus\n"))
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("ParseFile() error = %v, want line 2 failure", err)
	}

	_, err = ParseFile(strings.NewReader("read,0,16\nread,0,8\n"))
	if !errors.Is(err, ErrBadEntry) {
		t.Errorf("ParseFile() duplicate error = %v, want ErrBadEntry", err)
	}
}

// TestValidate verifies rejection of unusable entries.
func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
	}{
		{"zero bytes", Entry{Number: 0, Bytes: 0, BufArg: 1}},
		{"buffer argument too large", Entry{Number: 0, Bytes: 1, BufArg: 6}},
		{"negative buffer argument", Entry{Number: 0, Bytes: 1, BufArg: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Validate([]Entry{tt.entry}); !errors.Is(err, ErrBadEntry) {
				t.Errorf("Validate() error = %v, want ErrBadEntry", err)
			}
		})
	}
}

// TestName verifies reverse lookup of syscall numbers.
func TestName(t *testing.T) {
	nr, _, ok := Lookup("getrandom")
	if !ok {
		t.Fatal("Lookup(getrandom) failed")
	}
	if name, ok := Name(nr); !ok || name != "getrandom" {
		t.Errorf("Name(%d) = %q, %v", nr, name, ok)
	}
	if _, ok := Name(1 << 40); ok {
		t.Error("Name() resolved an impossible number")
	}
}

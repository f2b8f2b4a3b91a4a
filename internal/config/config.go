// Package config loads analysis settings from YAML files.
//
// A configuration file mirrors the command line flags:
//
//	shortcuts: true
//	ignore_nops: true
//	ignore_sp: false
//	ignore_ip: false
//	ignore_fp_stack_memory: false
//	wait_for_start: false
//	csv_prefix: out/app
//	syscall_file: syscalls.txt
//	syscalls:
//	  - {syscall: read, index: 0, bytes: 16}
//	shortcut_table:
//	  MOVAPD: [{write: 0, read: 1}]
//
// Unknown keys are rejected. Relative syscall_file paths are resolved
// against the directory of the configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/kolkov/datadeps/internal/arch/amd64"
	"github.com/kolkov/datadeps/internal/deps/engine"
	"github.com/kolkov/datadeps/internal/deps/filter"
	"github.com/kolkov/datadeps/internal/deps/shortcut"
	"github.com/kolkov/datadeps/internal/deps/syscalls"
)

// DefaultCSVPrefix names the report files when no prefix is configured.
const DefaultCSVPrefix = "data_dependencies"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Syscall is one allow-list entry: the index-th call of Syscall writes Bytes
// bytes into its buffer argument.
type Syscall struct {
	Syscall string `yaml:"syscall"`
	Index   uint64 `yaml:"index"`
	Bytes   uint32 `yaml:"bytes"`
}

// Config holds every analysis setting.
type Config struct {
	Shortcuts     bool `yaml:"shortcuts"`
	IgnoreNops    bool `yaml:"ignore_nops"`
	IgnoreSP      bool `yaml:"ignore_sp"`
	IgnoreIP      bool `yaml:"ignore_ip"`
	IgnoreFPStack bool `yaml:"ignore_fp_stack_memory"`
	WaitForStart  bool `yaml:"wait_for_start"`

	CSVPrefix string `yaml:"csv_prefix"`

	// SyscallFile is a legacy "syscall,index,bytes" file merged with
	// Syscalls.
	SyscallFile string    `yaml:"syscall_file"`
	Syscalls    []Syscall `yaml:"syscalls"`

	// ShortcutTable adds classes to, or replaces classes of, the built-in
	// shortcut table.
	ShortcutTable shortcut.Table `yaml:"shortcut_table"`
}

// Default returns the settings used without a configuration file.
func Default() Config {
	return Config{IgnoreNops: true, CSVPrefix: DefaultCSVPrefix}
}

// Load reads the YAML file at path on top of Default and validates it.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	if cfg.SyscallFile != "" && !filepath.IsAbs(cfg.SyscallFile) {
		cfg.SyscallFile = filepath.Join(filepath.Dir(path), cfg.SyscallFile)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode reads YAML settings from r on top of Default. It does not
// validate.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings eagerly: the report prefix, the shortcut
// table and the complete syscall allow-list.
func (c Config) Validate() error {
	if c.CSVPrefix == "" {
		return fmt.Errorf("%w: csv_prefix is empty", ErrInvalid)
	}
	if err := c.ShortcutTable.Validate(); err != nil {
		return fmt.Errorf("%w: shortcut_table: %w", ErrInvalid, err)
	}
	if _, err := c.SyscallEntries(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// SyscallEntries returns the allow-list from Syscalls and SyscallFile.
func (c Config) SyscallEntries() ([]syscalls.Entry, error) {
	var entries []syscalls.Entry
	for i, s := range c.Syscalls {
		e, err := syscalls.NewEntry(s.Syscall, s.Index, s.Bytes)
		if err != nil {
			return nil, fmt.Errorf("syscalls[%d]: %w", i, err)
		}
		entries = append(entries, e)
	}
	if c.SyscallFile != "" {
		f, err := os.Open(c.SyscallFile)
		if err != nil {
			return nil, fmt.Errorf("syscall file: %w", err)
		}
		defer f.Close()
		more, err := syscalls.ParseFile(f)
		if err != nil {
			return nil, fmt.Errorf("syscall file %s: %w", c.SyscallFile, err)
		}
		entries = append(entries, more...)
	}
	if err := syscalls.Validate(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ShortcutClasses returns the built-in amd64 table extended by ShortcutTable.
func (c Config) ShortcutClasses() shortcut.Table {
	return amd64.DefaultShortcuts().With(c.ShortcutTable)
}

// EngineOptions converts the settings into engine options.
func (c Config) EngineOptions(logger log.Logger) (engine.Options, error) {
	entries, err := c.SyscallEntries()
	if err != nil {
		return engine.Options{}, err
	}
	return engine.Options{
		Shortcuts:  c.Shortcuts,
		IgnoreNops: c.IgnoreNops,
		Filters: filter.Options{
			IgnoreStackPointer:       c.IgnoreSP,
			IgnoreInstructionPointer: c.IgnoreIP,
			IgnoreFramePointerStack:  c.IgnoreFPStack,
		},
		Syscalls:     entries,
		WaitForStart: c.WaitForStart,
		Logger:       logger,
	}, nil
}

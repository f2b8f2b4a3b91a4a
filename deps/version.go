package deps

import (
	"golang.org/x/mod/semver"

	"github.com/kolkov/datadeps/internal/trace"
)

// Version information for the data dependency analyzer.
const (
	// Version is the current version of the analyzer.
	Version = "0.1.0"

	// VersionMajor is the major version number.
	VersionMajor = 0

	// VersionMinor is the minor version number.
	VersionMinor = 1

	// VersionPatch is the patch version number.
	VersionPatch = 0
)

// Info describes the analyzer build.
type Info struct {
	// Version is the analyzer version string.
	Version string

	// TraceFormat is the trace format version written by this build.
	TraceFormat string

	// Architectures lists the supported instruction sets.
	Architectures []string
}

// GetInfo returns information about the analyzer.
//
// Example:
//
//	info := deps.GetInfo()
//	fmt.Printf("datadeps %s (trace %s)\n", info.Version, info.TraceFormat)
func GetInfo() Info {
	return Info{
		Version:       Version,
		TraceFormat:   trace.CurrentVersion,
		Architectures: []string{"amd64"},
	}
}

// SupportsTrace reports whether traces declaring the given format version
// can be read. Versions may omit the leading "v".
func SupportsTrace(version string) bool {
	if len(version) > 0 && version[0] != 'v' {
		version = "v" + version
	}
	return semver.IsValid(version) && semver.Major(version) == semver.Major(trace.CurrentVersion)
}

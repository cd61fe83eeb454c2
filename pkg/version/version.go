// Package version exposes build metadata stamped via -ldflags.
package version

import "runtime/debug"

// Populated at build time with:
//
//	-ldflags "-X .../pkg/version.Version=v1.2.3 -X .../pkg/version.Commit=abc123 -X .../pkg/version.Date=2026-08-25"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Init backfills Commit from embedded VCS build info when the ldflags were
// not provided, e.g. for `go install` builds.
func Init() {
	if Commit != "unknown" {
		return
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			Commit = setting.Value
		}
	}
}

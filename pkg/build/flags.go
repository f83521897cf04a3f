// SPDX-License-Identifier: MIT
//
// Package build carries metadata stamped into the binary at compile time:
// application name, build timestamp, Git commit, and semantic version.
// Release builds inject the values with linker flags, for example:
//
//	go build -ldflags "-X keydetect/pkg/build.buildName=keydetect \
//	    -X keydetect/pkg/build.buildVersion=0.3.0 ..."
package build

import "fmt"

type ldFlags struct {
	Name    string
	Time    string
	Commit  string
	Version string
}

// Package-level variables populated by -ldflags during compilation.
// Development builds that skip the flags keep the "unknown" defaults.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &ldFlags{
		Name:    "unknown",
		Time:    "unknown",
		Commit:  "unknown",
		Version: "unknown",
	}
)

// Initialize validates the injected values and copies them into the
// buildFlags struct; call it early in startup. It returns an error naming
// the first missing flag, in which case the defaults stay in place.
func Initialize() error {
	if buildName == "" {
		return fmt.Errorf("BuildName is required")
	}
	if buildTime == "" {
		return fmt.Errorf("BuildTime is required")
	}
	if buildCommit == "" {
		return fmt.Errorf("BuildCommit is required")
	}
	if buildVersion == "" {
		return fmt.Errorf("BuildVersion is required")
	}

	buildFlags.Name = buildName
	buildFlags.Time = buildTime
	buildFlags.Commit = buildCommit
	buildFlags.Version = buildVersion

	return nil
}

// GetBuildFlags returns the current build information. Values are only
// meaningful after Initialize has succeeded.
func GetBuildFlags() *ldFlags {
	return buildFlags
}

// Summary renders the build information on one line for startup logs and
// version output.
func Summary() string {
	return fmt.Sprintf("%s %s (%s, built %s)",
		buildFlags.Name, buildFlags.Version, buildFlags.Commit, buildFlags.Time)
}

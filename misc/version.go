// Package misc keeps build time information.
package misc

import (
	"runtime/debug"
)

// Set with -ldflags "-X cssapply/misc.version=... -X cssapply/misc.githash=..."
var (
	version = "dev"
	githash = ""
)

const appName = "cssapply"

func GetAppName() string {
	return appName
}

func GetVersion() string {
	return version
}

// GetGitHash returns commit program was built from. When not set at link
// time VCS information recorded by the toolchain is used.
func GetGitHash() string {
	if githash != "" {
		return githash
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return "unknown"
}

// Package version holds the storygraph release string.
package version

import "runtime/debug"

// Version is the release version of storygraph. Release builds set it with:
//
//	go build -ldflags "-X github.com/AaronLay10/storygraph/internal/version.Version=x.y.z"
var Version = "0.1.0"

// String returns Version followed by the VCS revision when the binary
// carries build info for one.
func String() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Version
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 7 {
			return Version + " (" + s.Value[:7] + ")"
		}
	}
	return Version
}

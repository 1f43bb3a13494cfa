// Package version exposes the build version, either stamped into
// version.txt by the release tooling or recovered from module build
// info for go install builds.
package version

import (
	"embed"
	"io"
	"runtime/debug"
	"strings"
)

//go:embed version.*
var stamped embed.FS

// Version reported by -version.
var Version = "unable to get version"

func init() {
	f, err := stamped.Open("version.txt")
	if err != nil {
		// no stamped version.txt, recover it from module build info
		inf, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		Version = inf.Main.Version
		return
	}
	b, err := io.ReadAll(f)
	if err != nil {
		return
	}
	Version = strings.TrimSpace(string(b))
}

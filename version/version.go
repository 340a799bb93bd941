// Package version reports build information for the quotesearch binary.
package version

import (
	"fmt"
	"runtime"

	"github.com/teranos/quotesearch/protocol"
)

// Build information. These variables are set at build time via ldflags:
//
//	-X github.com/teranos/quotesearch/version.Version=v1.2.0
var (
	// CommitHash is the git commit hash when the binary was built
	CommitHash = "dev"

	// BuildTime is when the binary was built
	BuildTime = "unknown"

	// Version is the semantic version (if tagged)
	Version = "dev"
)

// Info contains version and build information
type Info struct {
	CommitHash      string `json:"commit_hash"`
	BuildTime       string `json:"build_time"`
	Version         string `json:"version"`
	GoVersion       string `json:"go_version"`
	Platform        string `json:"platform"`
	ProtocolVersion string `json:"protocol_version"`
}

// Get returns the current version information
func Get() Info {
	return Info{
		CommitHash:      CommitHash,
		BuildTime:       BuildTime,
		Version:         Version,
		GoVersion:       runtime.Version(),
		Platform:        fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		ProtocolVersion: protocol.Version,
	}
}

// String returns a human-readable version string
func (i Info) String() string {
	return fmt.Sprintf("quotesearch %s (commit %s, built %s)", i.Version, i.CommitHash, i.BuildTime)
}

// Short returns a short version string with just the commit hash
func (i Info) Short() string {
	if len(i.CommitHash) >= 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}

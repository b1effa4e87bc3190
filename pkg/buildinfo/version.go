// Package buildinfo holds version information stamped in at build time:
//
//	go build -ldflags "-X github.com/matzehuels/atlaspack/pkg/buildinfo.Version=v1.0.0 \
//	    -X github.com/matzehuels/atlaspack/pkg/buildinfo.Commit=$(git rev-parse HEAD) \
//	    -X github.com/matzehuels/atlaspack/pkg/buildinfo.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)" \
//	    ./cmd/atlaspack
package buildinfo

import "fmt"

// Stamped via -ldflags; the defaults mark a development build.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Template returns the cobra version template.
func Template() string {
	return fmt.Sprintf("{{.Name}} version %s\ncommit: %s\nbuilt: %s\n", Version, Commit, Date)
}

// UserAgent identifies atlaspack in outgoing HTTP requests, for example
// when fetching sources from an http store.
func UserAgent() string {
	return "atlaspack/" + Version
}

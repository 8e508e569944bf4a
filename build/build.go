// Package build carries build-time metadata, set via -ldflags at release
// time, e.g.
//
//	go build -ldflags "-X gavel/build.Version=$(git describe) -X gavel/build.Date=$(date -u +%F)"
package build

var (
	Version = "unknown"
	Date    = "unknown"
)

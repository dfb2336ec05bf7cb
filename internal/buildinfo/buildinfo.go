// Package buildinfo carries version metadata stamped in at link time:
//
//	go build -ldflags "-X github.com/varsilias/siap-chat/internal/buildinfo.Version=v1.2.0 \
//	  -X github.com/varsilias/siap-chat/internal/buildinfo.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/varsilias/siap-chat/internal/buildinfo.BuiltAt=$(date -u +%FT%TZ)"
package buildinfo

var (
	Version = "dev"
	Commit  = "none"
	BuiltAt = "unknown"
)

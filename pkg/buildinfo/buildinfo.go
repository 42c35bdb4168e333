// Package buildinfo reports which petmig build produced a run. The values are
// stamped into every report and shown by `petmig version`.
package buildinfo

import (
	"runtime"
)

// Set at link time:
// -X github.com/vicentefritzen/petsys-migracao/pkg/buildinfo.Version=v1.3.0
// -X github.com/vicentefritzen/petsys-migracao/pkg/buildinfo.Commit=4e1d0c2
// -X github.com/vicentefritzen/petsys-migracao/pkg/buildinfo.BuildTime=2025-04-02T18:00:00Z
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the build info of the running binary.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// IsRelease reports whether the binary was stamped with a version.
func (i Info) IsRelease() bool {
	return i.Version != "dev" && i.Version != ""
}

// String returns a one-liner like "v1.3.0 (4e1d0c2, 2025-04-02T18:00:00Z)".
func String() string {
	return Version + " (" + Commit + ", " + BuildTime + ")"
}

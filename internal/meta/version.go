package meta

import (
	"fmt"
	"runtime"
)

// Info describes the build an x11-client binary came from. Most fields are
// set by the linker, see the vars below.
type Info struct {
	Version   string `json:"version"`
	Build     string `json:"build"`
	Branch    string `json:"branch"`
	BuildTime string `json:"build_time"`
	Platform  string `json:"platform"`
	GoVersion string `json:"go_version"`
	GoTag     string `json:"go_tag"`
}

// Set with -ldflags "-X github.com/mokomull/x11-client/internal/meta.Version=..."
var (
	Version string

	// Git sha
	Build string

	Branch string

	// UTC, year/month/day hour:min:sec
	BuildTimeUTC string

	// Build tags, https://golang.org/pkg/go/build/#hdr-Build_Constraints
	GoTag string

	platform = fmt.Sprintf("%s %s", runtime.GOOS, runtime.GOARCH)
)

func GetInfo() Info {
	version := Version
	if version == "" {
		version = "dev"
	}

	return Info{
		GoVersion: runtime.Version(),
		Version:   version,
		Build:     Build,
		Branch:    Branch,
		BuildTime: BuildTimeUTC,
		GoTag:     GoTag,
		Platform:  platform,
	}
}

func (i Info) String() string {
	s := fmt.Sprintf("x11-client %s (%s)", i.Version, i.Platform)
	if i.Build != "" {
		s += fmt.Sprintf(" build %s", i.Build)
		if i.Branch != "" {
			s += fmt.Sprintf(" on %s", i.Branch)
		}
	}
	if i.BuildTime != "" {
		s += fmt.Sprintf(" at %s", i.BuildTime)
	}

	return s + ", " + i.GoVersion
}

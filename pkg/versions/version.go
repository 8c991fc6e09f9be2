// Package versions reports the build of the item browser.
package versions

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const (
	unknown      = "unknown"
	devVersion   = "dev"
	releaseBuild = "release"

	// commitPrefixLen is how much of the commit a development version shows
	commitPrefixLen = 8
	buildDateLayout = "2006-01-02 15:04:05 MST"
)

// Build metadata, set with -ldflags "-X .../pkg/versions.Version=v1.2.3"
var (
	Version   = devVersion
	Commit    = unknown
	BuildDate = unknown
	// BuildType is "release" for published binaries only
	BuildType = "development"
)

// VersionInfo describes the running binary
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	Release   bool   `json:"release"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersionInfo returns the build metadata, filling gaps of a development
// build from the module's VCS stamp
func GetVersionInfo() VersionInfo {
	info := VersionInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		Release:   BuildType == releaseBuild,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if strings.HasPrefix(info.Version, devVersion) {
		if bi, ok := debug.ReadBuildInfo(); ok {
			info = info.withVCS(bi.Settings)
		}
	}
	return info.normalized()
}

// withVCS takes the commit and build time from vcs.* build settings when the
// linker did not set them
func (v VersionInfo) withVCS(settings []debug.BuildSetting) VersionInfo {
	for _, s := range settings {
		switch {
		case s.Key == "vcs.revision" && v.Commit == unknown:
			v.Commit = s.Value
		case s.Key == "vcs.time" && v.BuildDate == unknown:
			v.BuildDate = s.Value
		}
	}
	return v
}

// normalized formats an RFC 3339 build date and turns the bare "dev" version
// into "build-<commit prefix>"
func (v VersionInfo) normalized() VersionInfo {
	if t, err := time.Parse(time.RFC3339, v.BuildDate); err == nil {
		v.BuildDate = t.UTC().Format(buildDateLayout)
	}
	if v.Version == devVersion {
		v.Version = fmt.Sprintf("build-%.*s", commitPrefixLen, v.Commit)
	}
	return v
}

// String is the multi-line form printed by the version command
func (v VersionInfo) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "itembrowser %s", v.Version)
	if !v.Release {
		b.WriteString(" (development build)")
	}
	fmt.Fprintf(&b, "\n  commit:   %s\n  built:    %s\n  go:       %s\n  platform: %s\n",
		v.Commit, v.BuildDate, v.GoVersion, v.Platform)
	return b.String()
}

// UserAgent returns the User-Agent header value sent to the items API
func UserAgent() string {
	info := GetVersionInfo()
	return fmt.Sprintf("itembrowser/%s (%s)", info.Version, info.Platform)
}

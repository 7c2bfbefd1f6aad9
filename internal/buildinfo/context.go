// Package buildinfo carries build-time metadata separate from user configuration
package buildinfo

import (
	"runtime"
	"runtime/debug"
)

// UnknownValue is reported for metadata that was not injected at build time
const UnknownValue = "unknown"

// AppName is used in telemetry releases and User-Agent headers
const AppName = "healthmon"

// Context contains build-time metadata that is not user-configurable.
// It is injected at startup from ldflags and never read from config.
type Context struct {
	version   string
	buildDate string
	commit    string
}

// NewContext creates build metadata. An empty commit is filled from the
// VCS stamp the Go toolchain embeds, when present.
func NewContext(version, buildDate, commit string) *Context {
	if commit == "" {
		commit = vcsRevision()
	}
	return &Context{version: version, buildDate: buildDate, commit: commit}
}

// Version returns the build version string
func (c *Context) Version() string {
	if c == nil || c.version == "" {
		return UnknownValue
	}
	return c.version
}

// BuildDate returns the build date string
func (c *Context) BuildDate() string {
	if c == nil || c.buildDate == "" {
		return UnknownValue
	}
	return c.buildDate
}

// Commit returns the short VCS revision
func (c *Context) Commit() string {
	if c == nil || c.commit == "" {
		return UnknownValue
	}
	return c.commit
}

// Release is the release identifier reported to Sentry
func (c *Context) Release() string {
	return AppName + "@" + c.Version()
}

// UserAgent is sent by outbound HTTP probes and webhooks
func (c *Context) UserAgent() string {
	return AppName + "/" + c.Version()
}

// Info is the serializable form used by the version command
type Info struct {
	Version   string `json:"version" yaml:"version"`
	BuildDate string `json:"build_date" yaml:"build_date"`
	Commit    string `json:"commit" yaml:"commit"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

// Info returns the metadata together with the runtime platform
func (c *Context) Info() Info {
	return Info{
		Version:   c.Version(),
		BuildDate: c.BuildDate(),
		Commit:    c.Commit(),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func vcsRevision() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 7 {
			return s.Value[:7]
		}
	}
	return ""
}

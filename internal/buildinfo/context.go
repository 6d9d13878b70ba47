// Package buildinfo carries build-time metadata injected at startup.
package buildinfo

import (
	"os"

	"github.com/google/uuid"
)

// UnknownValue is reported for metadata that was not injected.
const UnknownValue = "unknown"

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	Version   string // git tag from -ldflags
	BuildDate string
	// InstanceID identifies this process in published events and error
	// reports. It is random per run, never derived from the host.
	InstanceID string
}

// NewContext creates a Context with a fresh instance ID.
func NewContext(version, buildDate string) *Context {
	return &Context{
		Version:    version,
		BuildDate:  buildDate,
		InstanceID: uuid.NewString(),
	}
}

func orUnknown(s string) string {
	if s == "" {
		return UnknownValue
	}
	return s
}

// GetVersion returns the version, or UnknownValue.
func (c *Context) GetVersion() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.Version)
}

// GetBuildDate returns the build date, or UnknownValue.
func (c *Context) GetBuildDate() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.BuildDate)
}

// Release is the Sentry release name.
func (c *Context) Release() string {
	return "jupiter@" + c.GetVersion()
}

// SourceName names this instance in published events: the hostname when
// available, otherwise the instance ID.
func (c *Context) SourceName() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	if c == nil || c.InstanceID == "" {
		return UnknownValue
	}
	return c.InstanceID
}

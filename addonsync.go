// Package addonsync reconciles the add-on components installed on a host
// against a declared required set fetched from a remote catalog, and drives
// installation and upgrades until the host has converged.
package addonsync

import (
	"context"
	"errors"
	"time"
)

// Dependency declares one add-on the host must (or may) run.
// Identity is the Name; MinVersion and Optional qualify it.
type Dependency struct {
	Name       string
	MinVersion Version // zero value means any installed version satisfies
	Optional   bool
}

// Require declares a mandatory add-on with no version floor.
func Require(name string) Dependency {
	return Dependency{Name: name}
}

// RequireAtLeast declares a mandatory add-on with a minimum version.
func RequireAtLeast(name, version string) Dependency {
	return Dependency{Name: name, MinVersion: ParseVersion(version)}
}

// Optional declares an add-on that is never installed on its own, but is
// upgraded to the minimum version when already present.
func Optional(name, version string) Dependency {
	return Dependency{Name: name, MinVersion: ParseVersion(version), Optional: true}
}

// DefaultRequirements is the built-in declaration table. It is the single
// place the managed add-on set is spelled out; config may override it.
func DefaultRequirements() []Dependency {
	return []Dependency{
		Require("agent-credentials"),
		Require("agent-registration"),
		RequireAtLeast("agent-license", "2.6"),
		RequireAtLeast("metrics-collector", "1.3"),
		Optional("debug-console", "2.6"),
		RequireAtLeast("log-forwarder", "2.1"),
		Require("backup-uploader"),
		Require("usage-tracker"),
	}
}

// InstalledComponent is the host's view of one installed add-on.
type InstalledComponent struct {
	Version Version // zero when the host reports no version
	Enabled bool
}

// Installed is a point-in-time snapshot of installed add-ons keyed by name.
type Installed map[string]InstalledComponent

// Component is one entry offered by the catalog.
type Component struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName"`
	Version     string   `json:"version"`
	Image       string   `json:"image"`
	Ports       []string `json:"ports,omitempty"`
}

// Catalog is the remote metadata source. Calls may fail transiently and
// must never crash the caller.
type Catalog interface {
	// HasMetadata reports whether catalog data has been fetched at least once.
	HasMetadata() bool
	// Resolve maps an add-on name to its catalog entry. The error is
	// errdefs.IsNotFound when the catalog does not offer the component.
	Resolve(ctx context.Context, name string) (Resolved, error)
}

// Resolved is one catalog component bound to the local install substrate.
type Resolved interface {
	DisplayName() string
	Version() Version
	// InstalledAndEnabled reports whether the component is already installed
	// and enabled on this host.
	InstalledAndEnabled(ctx context.Context) bool
	// Deploy installs or upgrades the component and blocks until the
	// operation completes. No timeout is applied.
	Deploy(ctx context.Context) error
}

// InstalledSource reads the host's installed add-ons.
type InstalledSource interface {
	Snapshot(ctx context.Context) (Installed, error)
	Lookup(ctx context.Context, name string) (InstalledComponent, bool)
}

// ErrRestartUnsupported is returned by a Restarter when the host cannot
// restart itself. It downgrades to an informational status, never an error.
var ErrRestartUnsupported = errors.New("restart not supported by this host")

// Restarter requests a host restart once convergence is reached.
// The request is fire-and-forget.
type Restarter interface {
	RequestRestart() error
}

// ConvergenceStore persists the single "converged as of version X" fact.
type ConvergenceStore interface {
	// Load returns the persisted version, or "" when none is recorded.
	Load() (string, error)
	Save(version string) error
	Clear() error
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

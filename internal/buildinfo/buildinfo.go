// Package buildinfo carries the version stamped at build time.
package buildinfo

// Version is the orchestrator's own version, overridden via
// -ldflags "-X addonsync/internal/buildinfo.Version=...". The development
// default sorts before every release so convergence is always re-checked.
var Version = "0.0.0-dev"

// Package catalog fetches and caches the remote add-on catalog: a JSON
// document listing the components a host may install, their versions, and
// the images that deliver them.
package catalog

import (
	"context"
	"time"

	"addonsync"
)

// Deployer is the install substrate a resolved component binds to. The
// Docker adapter satisfies it.
type Deployer interface {
	InstalledAndEnabled(ctx context.Context, name string) bool
	Deploy(ctx context.Context, c addonsync.Component) error
}

// Document is the catalog wire format.
type Document struct {
	ID         string                `json:"id"`
	Generated  time.Time             `json:"generated"`
	Components []addonsync.Component `json:"components"`
}

// resolved binds one catalog entry to the local install substrate.
type resolved struct {
	entry addonsync.Component
	host  Deployer
}

func (r resolved) DisplayName() string {
	if r.entry.DisplayName != "" {
		return r.entry.DisplayName
	}
	return r.entry.Name
}

func (r resolved) Version() addonsync.Version {
	return addonsync.ParseVersion(r.entry.Version)
}

func (r resolved) InstalledAndEnabled(ctx context.Context) bool {
	return r.host.InstalledAndEnabled(ctx, r.entry.Name)
}

func (r resolved) Deploy(ctx context.Context) error {
	return r.host.Deploy(ctx, r.entry)
}

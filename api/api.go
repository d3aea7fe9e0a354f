// Package api defines the wire types the daemon serves over its local
// socket and the SDK client decodes.
package api

import "time"

// StatusResponse is the daemon's view of the reconcile state.
type StatusResponse struct {
	Version          string    `json:"version"`
	Converged        bool      `json:"converged"`
	Phase            string    `json:"phase"`
	Pending          int       `json:"pending"`
	Message          string    `json:"message,omitempty"`
	MessageImportant bool      `json:"messageImportant,omitempty"`
	CatalogFetchedAt time.Time `json:"catalogFetchedAt,omitzero"`
}

// Requirement is one declared add-on.
type Requirement struct {
	Name       string `json:"name"`
	MinVersion string `json:"minVersion,omitempty"`
	Optional   bool   `json:"optional,omitempty"`

	// Installed state, filled when the host snapshot is available.
	Installed        bool   `json:"installed"`
	InstalledVersion string `json:"installedVersion,omitempty"`
	Enabled          bool   `json:"enabled,omitempty"`
}

// RequirementsResponse lists the declared add-ons and their installed state.
type RequirementsResponse struct {
	Requirements []Requirement `json:"requirements"`
}

// HistoryEntry is one recorded deploy.
type HistoryEntry struct {
	Name        string    `json:"name"`
	DisplayName string    `json:"displayName"`
	Version     string    `json:"version"`
	Upgrade     bool      `json:"upgrade"`
	OK          bool      `json:"ok"`
	At          time.Time `json:"at"`
}

// HistoryResponse lists recent deploys, newest first.
type HistoryResponse struct {
	Events []HistoryEntry `json:"events"`
}

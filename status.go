package addonsync

import "fmt"

// StatusKind enumerates the closed set of reconcile progress messages.
type StatusKind uint8

const (
	StatusFetchingMetadata StatusKind = iota + 1
	StatusInstalling
	StatusInstalled
	StatusUpgrading
	StatusUpgraded
	StatusRestartScheduled
	StatusRestartUnavailable
)

func (k StatusKind) String() string {
	switch k {
	case StatusFetchingMetadata:
		return "fetching_metadata"
	case StatusInstalling:
		return "installing"
	case StatusInstalled:
		return "installed"
	case StatusUpgrading:
		return "upgrading"
	case StatusUpgraded:
		return "upgraded"
	case StatusRestartScheduled:
		return "restart_scheduled"
	case StatusRestartUnavailable:
		return "restart_unavailable"
	default:
		return "unknown"
	}
}

// Status is one human-readable progress message. The current status is
// process-wide, last write wins.
type Status struct {
	Kind        StatusKind
	DisplayName string
	Version     string
}

// Message renders the status for humans.
func (s Status) Message() string {
	switch s.Kind {
	case StatusFetchingMetadata:
		return "Fetching add-on catalog metadata"
	case StatusInstalling:
		return fmt.Sprintf("Installing %s", s.DisplayName)
	case StatusInstalled:
		return fmt.Sprintf("Installed %s %s", s.DisplayName, s.Version)
	case StatusUpgrading:
		return fmt.Sprintf("Upgrading %s to %s", s.DisplayName, s.Version)
	case StatusUpgraded:
		return fmt.Sprintf("Upgraded %s to %s", s.DisplayName, s.Version)
	case StatusRestartScheduled:
		return "Restart scheduled to activate new add-ons"
	case StatusRestartUnavailable:
		return "Restart required to activate new add-ons"
	default:
		return ""
	}
}

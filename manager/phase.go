package manager

import "addonsync/internal/check"

// Phase is the reconcile worker's lifecycle state.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseWaitingForMetadata
	PhaseDraining
	PhaseSleeping
	PhaseStoppingForRestart
	PhaseTerminated
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseWaitingForMetadata:
		return "waiting_for_metadata"
	case PhaseDraining:
		return "draining"
	case PhaseSleeping:
		return "sleeping"
	case PhaseStoppingForRestart:
		return "stopping_for_restart"
	case PhaseTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Transition validates the edge and returns the next phase. The worker is
// the only writer; any phase may terminate (process shutdown).
func (p Phase) Transition(to Phase) Phase {
	ok := to == PhaseTerminated
	switch p {
	case PhaseIdle:
		ok = ok || to == PhaseWaitingForMetadata
	case PhaseWaitingForMetadata:
		ok = ok || to == PhaseWaitingForMetadata || to == PhaseDraining
	case PhaseDraining:
		// Draining -> Waiting happens when a pass fails mid-drain and the
		// next pass starts over.
		ok = ok || to == PhaseSleeping || to == PhaseStoppingForRestart || to == PhaseWaitingForMetadata
	case PhaseSleeping:
		ok = ok || to == PhaseWaitingForMetadata
	case PhaseStoppingForRestart:
		// only terminate
	case PhaseTerminated:
		ok = false
	}
	check.Assertf(ok, "worker phase transition: %s -> %s", p, to)
	if !ok {
		return p
	}
	return to
}

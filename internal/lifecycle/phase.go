package lifecycle

// Phase is a lifecycle phase. Phases only move forward.
type Phase int32

const (
	// PhaseInitializing is the phase before dependencies are connected.
	PhaseInitializing Phase = iota
	// PhaseDependenciesReady means every dependency is connected.
	PhaseDependenciesReady
	// PhaseServing means the listener is bound and accepting requests.
	PhaseServing
	// PhaseDraining means a shutdown was requested and in-flight requests
	// are completing.
	PhaseDraining
	// PhaseTerminated is the final phase.
	PhaseTerminated
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseDependenciesReady:
		return "dependencies-ready"
	case PhaseServing:
		return "serving"
	case PhaseDraining:
		return "draining"
	case PhaseTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

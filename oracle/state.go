package oracle

// State is the position of the push loop within one tick.
type State int32

const (
	StateIdle State = iota
	StateSubmitting
	StateConfirming
	StateRecording
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateConfirming:
		return "confirming"
	case StateRecording:
		return "recording"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

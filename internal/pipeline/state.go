package pipeline

// State is the current phase of the orchestrator. There is exactly one
// instance, owned and mutated only by the orchestrator's run loop.
type State int

const (
	// StateStarting launches the frame source and then the encoder sink.
	StateStarting State = iota
	// StateStreaming drives the cadence loop.
	StateStreaming
	// StateReloading performs an operator-requested in-place page reload.
	StateReloading
	// StateRetrying tears both subprocesses down and waits out the backoff.
	StateRetrying
	// StateFailed is terminal; retries are exhausted.
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateStreaming:
		return "streaming"
	case StateReloading:
		return "reloading"
	case StateRetrying:
		return "retrying"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

package process

// State represents the current lifecycle state of a managed process.
// Transitions are monotonic: a state is never re-entered.
type State string

// Process states.
const (
	StateIdle     State = "idle"     // Not yet started
	StateStarting State = "starting" // Running pre / spawning run
	StateRunning  State = "running"  // Started; daemons have a live child
	StateStopping State = "stopping" // Stop in progress
	StateStopped  State = "stopped"  // Shut down cleanly
	StateFailed   State = "failed"   // Startup or shutdown failed
)

// Outcome classifies the termination of a daemon's run child.
type Outcome string

// Outcomes.
const (
	// CompletedNormally: the child exited cleanly, or exited for any
	// reason after the supervisor asked it to stop.
	CompletedNormally Outcome = "completed-normally"

	// CompletedAbnormally: the child exited non-zero (or was killed)
	// before any stop was requested.
	CompletedAbnormally Outcome = "completed-abnormally"
)

package orchestrator

// State is the current step of a sync cycle.
type State string

const (
	StateIdle        State = "IDLE"
	StateFetching    State = "FETCHING"
	StateReconciling State = "RECONCILING"
	StateMutating    State = "MUTATING"
	StateVerifying   State = "VERIFYING"
	StateDone        State = "DONE"
	StateFailed      State = "FAILED"
)

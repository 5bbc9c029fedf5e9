package vbforge

// StageState is the observable lifecycle state of a stage agent.
// Completed and Failed are terminal for a run; agents are reset to
// Idle only at the start of a new run.
type StageState string

const (
	StateIdle      StageState = "Idle"
	StateRunning   StageState = "Running"
	StateCompleted StageState = "Completed"
	StateFailed    StageState = "Failed"
)

// Terminal reports whether the state ends a stage's lifecycle for the
// current run.
func (s StageState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

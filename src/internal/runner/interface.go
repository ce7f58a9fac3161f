package runner

type RunnerInterface interface {
	// Initialize the runner with necessary context and data
	Initialize() error

	// Main routine to process the runner.
	// Returns ErrCheckFailed when the check ran and its verdict is fail.
	Process() error
}

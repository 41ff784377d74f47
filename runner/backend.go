package runner

// Backend runs callables in parallel. It is the seam between the snapshot
// core and whatever actually hosts the jobs: an in-process pool here, a
// cluster submission elsewhere. The core sits entirely upstream of it.
type Backend interface {
	// Dispatch schedules fn and returns a handle to track it. The backend
	// owns PENDING and the end states; fn reports its own progress
	// (PREPARING, RUNNING) through the report callback it is handed.
	Dispatch(fn func(report func(JobState)) Result) Handle
}

// Handle is a pending dispatched callable.
type Handle interface {
	// Status returns the callable's current state.
	Status() JobState

	// Wait blocks until the callable finishes and returns its Result.
	Wait() Result
}

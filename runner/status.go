package runner

import (
	"fmt"
)

type JobState int

const (
	// An unambiguous 0-value.
	UNKNOWN JobState = iota
	// Waiting for backend capacity.
	PENDING
	// Preparing to run (capturing the revision, provisioning the view).
	PREPARING
	// Task is executing.
	RUNNING

	// States below are end states.

	// Task returned without error.
	COMPLETE
	// Task returned an error.
	FAILED
)

func (s JobState) IsDone() bool {
	return s == COMPLETE || s == FAILED
}

func (s JobState) String() string {
	switch s {
	case UNKNOWN:
		return "UNKNOWN"
	case PENDING:
		return "PENDING"
	case PREPARING:
		return "PREPARING"
	case RUNNING:
		return "RUNNING"
	case COMPLETE:
		return "COMPLETE"
	case FAILED:
		return "FAILED"
	default:
		panic(fmt.Sprintf("Unexpected JobState %v", int(s)))
	}
}

// Result is what one job hands back to the scheduler.
type Result struct {
	JobID string
	State JobState

	// Value is whatever the task returned.
	Value interface{}

	// Err is the task's own failure, if any.
	Err error

	// IsolationErr records an isolation-infrastructure failure that forced
	// this job to run against the live tree. Kept separate from Err so a job
	// that failed in its own logic stays diagnosable apart from one that
	// lost isolation.
	IsolationErr error
}

// Isolated reports whether the job ran inside its own view.
func (r Result) Isolated() bool {
	return r.IsolationErr == nil
}

func CompleteResult(jobID string, value interface{}) Result {
	return Result{JobID: jobID, State: COMPLETE, Value: value}
}

func FailedResult(jobID string, err error) Result {
	return Result{JobID: jobID, State: FAILED, Err: err}
}

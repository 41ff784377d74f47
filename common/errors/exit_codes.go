package errors

type ExitCode int

const (
	// Snapshot/isolation exit codes.
	// NotAVersionedTree and SnapshotCreationFailure are batch-level: the
	// launcher decides whether to abort the batch or run every job without
	// isolation. WorktreeCreationFailure and SymlinkConflict are job-level:
	// only the affected job falls back. PushFailure and CleanupFailure never
	// change a job's outcome.
	NotAVersionedTreeExitCode ExitCode = 80

	SnapshotCreationFailureExitCode = 81
	WorktreeCreationFailureExitCode = 82
	SymlinkConflictExitCode         = 83
	PushFailureExitCode             = 84
	CleanupFailureExitCode          = 85

	CouldNotExecExitCode = 110
)

// BatchLevel reports whether code fails the whole batch rather than one job.
func (c ExitCode) BatchLevel() bool {
	return c == NotAVersionedTreeExitCode || c == SnapshotCreationFailureExitCode
}

// NonFatal reports whether code must never alter a job's reported outcome.
func (c ExitCode) NonFatal() bool {
	return c == PushFailureExitCode || c == CleanupFailureExitCode
}

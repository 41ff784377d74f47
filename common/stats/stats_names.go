package stats

const (
	/****************** Snapshotter stats ***************************/

	// Number of revisions captured.
	SnapshotCreates = "snapshotCreates"

	// Number of failed revision captures.
	SnapshotCreateFailures = "snapshotCreateFailures"

	// Time to capture a revision.
	SnapshotCreateLatency_ms = "snapshotCreateLatency_ms"

	// Number of failed pushes of a revision branch to the remote (non-fatal).
	SnapshotPushFailures = "snapshotPushFailures"

	/****************** Provisioner stats ***************************/

	// Number of views provisioned.
	ViewProvisions = "viewProvisions"

	// Number of failed view provisions.
	ViewProvisionFailures = "viewProvisionFailures"

	// Time to provision a view.
	ViewProvisionLatency_ms = "viewProvisionLatency_ms"

	// Number of views released.
	ViewReleases = "viewReleases"

	// Number of failed view releases (non-fatal to the job).
	ViewCleanupFailures = "viewCleanupFailures"

	/****************** Launcher stats ******************************/

	// Number of jobs that fell back to running against the live tree.
	JobIsolationFallbacks = "jobIsolationFallbacks"

	// Number of jobs whose task completed without error.
	JobCompletions = "jobCompletions"

	// Number of jobs whose task returned an error.
	JobFailures = "jobFailures"
)

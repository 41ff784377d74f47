package runner

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/snapbatch/snapbatch/common/stats"
	"github.com/snapbatch/snapbatch/config"
	"github.com/snapbatch/snapbatch/os/temp"
	"github.com/snapbatch/snapbatch/snapshot"
	"github.com/snapbatch/snapbatch/snapshot/git/repo"
	"github.com/snapbatch/snapbatch/snapshot/git/snapshotter"
	"github.com/snapbatch/snapbatch/snapshot/git/worktree"
)

// JobSpec is one job as handed to the launcher by the caller.
type JobSpec struct {
	ID   string
	Task TaskFn
}

// Launcher drives a batch: one revision capture, then per job a view, a run
// and a release. Isolation failures degrade to running against the live
// tree; batch-level failures (no versioned tree, capture failure) degrade
// every job, job-level failures (view, links) only the affected one.
type Launcher struct {
	cfg     *config.Config
	root    string // live tree root, used for non-isolated runs
	snap    snapshot.Snapshotter
	prov    snapshot.Provisioner
	backend Backend
	stat    stats.StatsReceiver

	// The revision is captured at most once per batch regardless of job
	// count; every job shares the outcome.
	once   sync.Once
	rev    *snapshot.Revision
	revErr error
}

// NewLauncher wires a Launcher from explicit collaborators. root is where
// non-isolated runs execute.
func NewLauncher(cfg *config.Config, root string, snap snapshot.Snapshotter, prov snapshot.Provisioner, backend Backend, stat stats.StatsReceiver) *Launcher {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	return &Launcher{cfg: cfg, root: root, snap: snap, prov: prov, backend: backend, stat: stat}
}

// NewGitLauncher wires a Launcher over the versioned tree enclosing dir,
// with git-backed snapshotting and provisioning. When cfg.Enabled is false
// no repo lookup happens at all and tasks run in dir as-is.
func NewGitLauncher(cfg *config.Config, dir string, backend Backend, stat stats.StatsReceiver) (*Launcher, error) {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	if !cfg.Enabled {
		return &Launcher{cfg: cfg, root: dir, backend: backend, stat: stat}, nil
	}
	r, err := repo.NewRepository(dir)
	if err != nil {
		return nil, err
	}
	// Capture scratch lands next to the views when the operator redirected
	// them; an empty worktree_dir means the system default temp location.
	tmp, err := temp.NewTempDir(cfg.WorktreeDir, "snapbatch-tmp-")
	if err != nil {
		return nil, err
	}
	snap := snapshotter.New(r, tmp, cfg.PushToRemote, stat.Scope("snapshotter"))
	prov := worktree.NewProvisioner(r, cfg.WorktreeDir, stat.Scope("worktree"))
	return &Launcher{cfg: cfg, root: r.Dir(), snap: snap, prov: prov, backend: backend, stat: stat}, nil
}

// Launch dispatches every job to the backend and waits for all results.
// Jobs share this process, so each task gets its work root threaded
// explicitly; the ambient switch is never used on this path.
func (l *Launcher) Launch(jobs []JobSpec) []Result {
	handles := make([]Handle, len(jobs))
	for i, job := range jobs {
		job := job
		handles[i] = l.backend.Dispatch(func(report func(JobState)) Result {
			return l.runJob(job, false, report)
		})
	}
	results := make([]Result, len(handles))
	for i, h := range handles {
		results[i] = h.Wait()
	}
	return results
}

// RunOne provisions and runs a single job using the ambient working-location
// switch, for deployments that give each job its own process (a cluster
// array task exec'ing snapbatch, say). Must not be used when several jobs
// share this process.
func (l *Launcher) RunOne(job JobSpec) Result {
	return l.runJob(job, true, nil)
}

func (l *Launcher) runJob(job JobSpec, ambient bool, report func(JobState)) Result {
	if report == nil {
		report = func(JobState) {}
	}
	if !l.cfg.Enabled {
		return l.runAgainstLiveTree(job, nil, report)
	}

	report(PREPARING)
	rev, err := l.revision()
	if err != nil {
		// Batch-level fallback.
		log.Errorf("launcher: isolation unavailable for the batch; job %v runs against the live tree: %v", job.ID, err)
		return l.runAgainstLiveTree(job, err, report)
	}

	view, err := l.prov.Provision(rev, job.ID, l.cfg.SymlinkPaths)
	if err != nil {
		// Job-level fallback; other jobs' views are unaffected.
		log.Errorf("launcher: isolation failed for job %v; falling back to the live tree: %v", job.ID, err)
		return l.runAgainstLiveTree(job, err, report)
	}
	// Release happens however the task ends, panics included. A failed
	// release is logged and never changes the job's outcome.
	defer func() {
		if relErr := view.Release(); relErr != nil {
			log.Warnf("launcher: cleanup failed for job %v (job outcome unchanged): %v", job.ID, relErr)
		}
	}()

	report(RUNNING)
	value, taskErr := safeRun(view.Path(), job.Task, ambient)
	return l.finish(job, value, taskErr, nil)
}

func (l *Launcher) runAgainstLiveTree(job JobSpec, isolationErr error, report func(JobState)) Result {
	if isolationErr != nil {
		l.stat.Counter(stats.JobIsolationFallbacks).Inc(1)
	}
	report(RUNNING)
	value, taskErr := safeRun(l.liveRoot(), job.Task, false)
	return l.finish(job, value, taskErr, isolationErr)
}

// safeRun invokes the task and converts a panic into that job's own failure,
// so one panicking task cannot take the rest of the batch down with it.
func safeRun(workRoot string, task TaskFn, ambient bool) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("launcher: task panicked in %v: %v", workRoot, r)
			err = errors.Errorf("task panicked: %v", r)
		}
	}()
	if ambient {
		return Run(workRoot, task)
	}
	return RunIdentity(workRoot, task)
}

func (l *Launcher) finish(job JobSpec, value interface{}, taskErr, isolationErr error) Result {
	var r Result
	if taskErr != nil {
		l.stat.Counter(stats.JobFailures).Inc(1)
		r = FailedResult(job.ID, taskErr)
	} else {
		l.stat.Counter(stats.JobCompletions).Inc(1)
		r = CompleteResult(job.ID, value)
	}
	r.IsolationErr = isolationErr
	return r
}

// revision memoizes the batch's single revision capture.
func (l *Launcher) revision() (*snapshot.Revision, error) {
	l.once.Do(func() {
		l.rev, l.revErr = l.snap.CreateRevision(l.cfg.BranchPrefix)
	})
	return l.rev, l.revErr
}

func (l *Launcher) liveRoot() string {
	if l.root != "" {
		return l.root
	}
	wd, err := os.Getwd()
	if err != nil {
		log.Errorf("launcher: could not determine working location: %v", err)
		return "."
	}
	return wd
}

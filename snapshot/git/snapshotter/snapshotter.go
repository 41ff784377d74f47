// Package snapshotter captures the full current state of a working tree,
// including uncommitted and untracked files, into an immutable named
// revision branch. The capture happens in a throwaway side worktree so the
// user's checkout, branch and index are never disturbed.
package snapshotter

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	sberrors "github.com/snapbatch/snapbatch/common/errors"
	"github.com/snapbatch/snapbatch/common/stats"
	"github.com/snapbatch/snapbatch/os/temp"
	"github.com/snapbatch/snapbatch/snapshot"
	"github.com/snapbatch/snapbatch/snapshot/git/repo"
)

// DefaultRemote is where revision branches get published.
const DefaultRemote = "origin"

// How many finer-grained names to try when a generated branch name collides.
const maxNameAttempts = 4

// Snapshotter captures the originating tree into revision branches.
// It implements snapshot.Snapshotter.
type Snapshotter struct {
	repo   *repo.Repository
	tmp    *temp.TempDir
	push   bool
	remote string
	stat   stats.StatsReceiver
}

// New creates a Snapshotter for the originating tree wrapped by r.
// Temporary capture worktrees are created under tmp. If push is set, each
// revision branch is also published to DefaultRemote; publication failure is
// logged and never fails the capture.
func New(r *repo.Repository, tmp *temp.TempDir, push bool, stat stats.StatsReceiver) *Snapshotter {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	return &Snapshotter{repo: r, tmp: tmp, push: push, remote: DefaultRemote, stat: stat}
}

// CreateRevision captures the current tree state into a new branch named
// "<prefix>-<utc timestamp>" and returns its Revision. The user's active
// branch and index are left untouched. Failures other than publication are
// returned as SnapshotCreationFailure.
func (s *Snapshotter) CreateRevision(prefix string) (rev *snapshot.Revision, err error) {
	defer s.stat.Latency(stats.SnapshotCreateLatency_ms).Time().Stop()
	defer func() {
		if err != nil {
			s.stat.Counter(stats.SnapshotCreateFailures).Inc(1)
		} else {
			s.stat.Counter(stats.SnapshotCreates).Inc(1)
		}
	}()

	name, err := s.pickBranchName(prefix)
	if err != nil {
		return nil, err
	}

	side, err := s.tmp.TempDir("capture-")
	if err != nil {
		return nil, creationFailure(err, "could not create side location")
	}
	defer os.RemoveAll(side.Dir)
	capturePath := filepath.Join(side.Dir, "capture")

	if _, err := s.repo.Run("worktree", "add", "-b", name, capturePath); err != nil {
		return nil, creationFailure(err, "could not add capture worktree %v", capturePath)
	}
	// The branch stays behind in the originating repo; only the throwaway
	// worktree is removed.
	defer func() {
		if _, rmErr := s.repo.Run("worktree", "remove", "--force", capturePath); rmErr != nil {
			log.Warnf("snapshotter: could not remove capture worktree %v: %v", capturePath, rmErr)
		}
	}()

	if err := s.mirrorTree(capturePath); err != nil {
		return nil, err
	}

	capture, err := repo.NewRepository(capturePath)
	if err != nil {
		return nil, creationFailure(err, "capture worktree %v is not usable", capturePath)
	}

	if _, err := capture.Run("add", "-A"); err != nil {
		return nil, creationFailure(err, "could not stage tree state")
	}

	// diff --cached --quiet exits non-zero iff something is staged.
	// A clean tree yields a revision pointing at the base commit.
	if _, err := capture.Run("diff", "--cached", "--quiet"); err != nil {
		msg := fmt.Sprintf("Snapshot %v", time.Now().UTC().Format(timestampFormat))
		if _, err := capture.Run("commit", "-m", msg, "--no-verify"); err != nil {
			return nil, creationFailure(err, "could not commit tree state")
		}
	}

	sha, err := capture.RunSha("rev-parse", "HEAD")
	if err != nil {
		return nil, creationFailure(err, "could not resolve revision commit")
	}

	if s.push {
		s.publish(name)
	}

	log.Infof("snapshotter: created revision %v (commit %.8v)", name, sha)
	return &snapshot.Revision{ID: name, SHA: sha, Root: s.repo.Dir(), Created: time.Now()}, nil
}

// mirrorTree copies the live tree (tracked, unstaged and untracked content,
// minus ignored files) into the capture worktree.
func (s *Snapshotter) mirrorTree(capturePath string) error {
	cmd := exec.Command("rsync",
		"-a", "--delete",
		"--exclude=.git",
		"--filter=:- .gitignore",
		s.repo.Dir()+"/",
		capturePath+"/")
	if out, err := cmd.CombinedOutput(); err != nil {
		return creationFailure(errors.Wrapf(err, "rsync: %s", out), "could not mirror tree into capture worktree")
	}
	return nil
}

// publish pushes the revision branch to the remote, retrying transient
// failures. Publication failure is non-fatal: the local revision remains
// valid either way.
func (s *Snapshotter) publish(name string) {
	op := func() error {
		_, err := s.repo.Run("push", "-u", s.remote, name)
		return err
	}
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2)
	if err := backoff.Retry(op, b); err != nil {
		s.stat.Counter(stats.SnapshotPushFailures).Inc(1)
		pushErr := sberrors.NewError(
			errors.Wrapf(err, "could not push revision %v to %v", name, s.remote),
			sberrors.PushFailureExitCode)
		log.Warnf("snapshotter: %v; the revision was created locally but won't be visible to other users", pushErr)
		return
	}
	log.Infof("snapshotter: pushed revision %v to %v", name, s.remote)
}

func creationFailure(err error, format string, args ...interface{}) error {
	return sberrors.NewError(
		errors.Wrapf(err, "snapshotter: "+format, args...),
		sberrors.SnapshotCreationFailureExitCode)
}

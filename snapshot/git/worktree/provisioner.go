// Package worktree materializes per-job views of a revision.
// Each view is a full clone of the revision branch at a unique path, with
// configured sub-paths replaced by links back into the originating tree so
// job output lands in one canonical location.
package worktree

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	uuid "github.com/nu7hatch/gouuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	sberrors "github.com/snapbatch/snapbatch/common/errors"
	"github.com/snapbatch/snapbatch/common/stats"
	"github.com/snapbatch/snapbatch/snapshot"
	"github.com/snapbatch/snapbatch/snapshot/git/repo"
)

// ViewDirPrefix names every view directory so an operator can identify (and
// safely remove) directories left behind if cleanup itself failed.
const ViewDirPrefix = "snapbatch-view-"

// Provisioner creates and releases views. It implements snapshot.Provisioner.
// Provision and Release may be called concurrently; the registry of live
// views is the shared metadata and is guarded by mu, while the bulk clone
// and removal I/O runs outside the lock.
type Provisioner struct {
	repo    *repo.Repository
	baseDir string
	stat    stats.StatsReceiver

	mu    sync.Mutex
	views map[string]*View // view path -> view
}

// NewProvisioner creates a Provisioner that materializes views under baseDir.
// An empty baseDir defaults to the parent of the originating tree.
func NewProvisioner(r *repo.Repository, baseDir string, stat stats.StatsReceiver) *Provisioner {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	if baseDir == "" {
		baseDir = filepath.Dir(r.Dir())
	}
	return &Provisioner{repo: r, baseDir: baseDir, stat: stat, views: make(map[string]*View)}
}

// Provision clones rev into a fresh unique directory for jobID and installs
// the redirect links. On any failure the partial clone is removed: either the
// view exists fully and usably, or it does not exist at all.
func (p *Provisioner) Provision(rev *snapshot.Revision, jobID string, redirectPaths []string) (snapshot.View, error) {
	defer p.stat.Latency(stats.ViewProvisionLatency_ms).Time().Stop()

	dir, err := p.viewDir(jobID)
	if err != nil {
		p.stat.Counter(stats.ViewProvisionFailures).Inc(1)
		return nil, err
	}

	if _, err := p.repo.Run("clone", "-b", rev.ID, rev.Root, dir); err != nil {
		os.RemoveAll(dir)
		p.stat.Counter(stats.ViewProvisionFailures).Inc(1)
		return nil, sberrors.NewError(
			errors.Wrapf(err, "worktree: could not clone revision %v to %v", rev.ID, dir),
			sberrors.WorktreeCreationFailureExitCode)
	}

	redirects, err := p.installRedirects(rev, dir, redirectPaths)
	if err != nil {
		os.RemoveAll(dir)
		p.stat.Counter(stats.ViewProvisionFailures).Inc(1)
		return nil, err
	}

	v := &View{path: dir, jobID: jobID, rev: rev, redirects: redirects, prov: p}
	p.mu.Lock()
	p.views[dir] = v
	p.mu.Unlock()

	p.stat.Counter(stats.ViewProvisions).Inc(1)
	log.Infof("worktree: provisioned view for job %v at %v (revision %v)", jobID, dir, rev.ID)
	return v, nil
}

// viewDir picks a unique directory under baseDir for one job's view.
func (p *Provisioner) viewDir(jobID string) (string, error) {
	uid, err := uuid.NewV4()
	if err != nil {
		return "", sberrors.NewError(
			errors.Wrap(err, "worktree: could not generate view suffix"),
			sberrors.WorktreeCreationFailureExitCode)
	}
	dir := filepath.Join(p.baseDir, fmt.Sprintf("%s%s-%.8s", ViewDirPrefix, jobID, uid.String()))
	if _, err := os.Lstat(dir); err == nil {
		return "", sberrors.NewError(
			errors.Errorf("worktree: view path collision at %v", dir),
			sberrors.WorktreeCreationFailureExitCode)
	}
	return dir, nil
}

// installRedirects replaces each redirect path inside the clone with a link
// to the corresponding absolute path in the originating tree, creating the
// target there first if needed. Removal is scoped strictly to the clone.
func (p *Provisioner) installRedirects(rev *snapshot.Revision, dir string, redirectPaths []string) (map[string]string, error) {
	redirects := make(map[string]string, len(redirectPaths))
	for _, rel := range redirectPaths {
		clean := filepath.Clean(rel)
		if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return nil, symlinkConflict(nil, "redirect path %v escapes the view", rel)
		}
		link := filepath.Join(dir, clean)
		target := filepath.Join(rev.Root, clean)

		// Content at the link path brought in by the clone is removed first.
		if _, err := os.Lstat(link); err == nil {
			if err := os.RemoveAll(link); err != nil {
				return nil, symlinkConflict(err, "could not clear %v inside the view", rel)
			}
		}
		if err := os.MkdirAll(target, 0777); err != nil {
			return nil, symlinkConflict(err, "could not create redirect target %v", target)
		}
		if err := os.MkdirAll(filepath.Dir(link), 0777); err != nil {
			return nil, symlinkConflict(err, "could not create parent of %v", link)
		}
		if err := os.Symlink(target, link); err != nil {
			return nil, symlinkConflict(err, "could not link %v to %v", link, target)
		}
		redirects[clean] = target
	}
	return redirects, nil
}

// release removes the view's checkout and deregisters it. Link targets live
// in the originating tree and are never touched; neither is the revision.
func (p *Provisioner) release(v *View) error {
	p.mu.Lock()
	_, live := p.views[v.path]
	delete(p.views, v.path)
	p.mu.Unlock()
	if !live {
		return nil
	}

	if err := os.RemoveAll(v.path); err != nil {
		p.stat.Counter(stats.ViewCleanupFailures).Inc(1)
		return sberrors.NewError(
			errors.Wrapf(err, "worktree: could not remove view %v", v.path),
			sberrors.CleanupFailureExitCode)
	}
	p.stat.Counter(stats.ViewReleases).Inc(1)
	log.Infof("worktree: released view for job %v at %v", v.jobID, v.path)
	return nil
}

// Live returns the number of views currently registered.
func (p *Provisioner) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.views)
}

func symlinkConflict(err error, format string, args ...interface{}) error {
	if err == nil {
		err = errors.Errorf("worktree: "+format, args...)
	} else {
		err = errors.Wrapf(err, "worktree: "+format, args...)
	}
	return sberrors.NewError(err, sberrors.SymlinkConflictExitCode)
}

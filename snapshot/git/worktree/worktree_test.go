package worktree

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
	"testing"

	sberrors "github.com/snapbatch/snapbatch/common/errors"
	"github.com/snapbatch/snapbatch/os/temp"
	"github.com/snapbatch/snapbatch/snapshot"
	"github.com/snapbatch/snapbatch/snapshot/git/repo"
	"github.com/snapbatch/snapbatch/snapshot/git/snapshotter"
)

func TestProvisionConcurrentViewsAreDistinct(t *testing.T) {
	f := makeFixture(t)
	defer f.close()

	var wg sync.WaitGroup
	views := make([]snapshot.View, 3)
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			views[i], errs[i] = f.prov.Provision(f.rev, fmt.Sprintf("job-%d", i), []string{"outputs"})
		}(i)
	}
	wg.Wait()

	paths := make(map[string]bool)
	for i := 0; i < 3; i++ {
		if errs[i] != nil {
			t.Fatalf("error provisioning view %d: %v", i, errs[i])
		}
		if paths[views[i].Path()] {
			t.Fatalf("views should have distinct paths, got %v twice", views[i].Path())
		}
		paths[views[i].Path()] = true
	}
	if f.prov.Live() != 3 {
		t.Fatalf("expected 3 live views, got %v", f.prov.Live())
	}

	for _, v := range views {
		if err := v.Release(); err != nil {
			t.Fatal(err)
		}
	}
	if f.prov.Live() != 0 {
		t.Fatalf("expected 0 live views after release, got %v", f.prov.Live())
	}
}

func TestRedirectsResolveIntoOriginatingTree(t *testing.T) {
	f := makeFixture(t)
	defer f.close()

	v, err := f.prov.Provision(f.rev, "job-0", []string{"outputs"})
	if err != nil {
		t.Fatal(err)
	}
	defer v.Release()

	// The revision brought its own outputs dir; the view must see a link,
	// not the captured copy.
	fi, err := os.Lstat(filepath.Join(v.Path(), "outputs"))
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode()&os.ModeSymlink == 0 {
		t.Fatalf("captured outputs dir should have been replaced by a link")
	}
	target, err := os.Readlink(filepath.Join(v.Path(), "outputs"))
	if err != nil {
		t.Fatal(err)
	}
	if target != filepath.Join(f.repo.Dir(), "outputs") {
		t.Fatalf("redirect resolves to %v, expected a path under the originating tree", target)
	}

	// A write inside the view lands in the originating tree.
	if err := ioutil.WriteFile(filepath.Join(v.Path(), "outputs", "result.txt"), []byte("data"), 0666); err != nil {
		t.Fatal(err)
	}
	data, err := ioutil.ReadFile(filepath.Join(f.repo.Dir(), "outputs", "result.txt"))
	if err != nil || string(data) != "data" {
		t.Fatalf("write inside view not visible in originating tree: %q %v", data, err)
	}

	// The untracked file captured in the revision is present in the view.
	data, err = ioutil.ReadFile(filepath.Join(v.Path(), "notes.txt"))
	if err != nil || string(data) != "untracked" {
		t.Fatalf("untracked capture missing from view: %q %v", data, err)
	}

	// Content added to the originating tree after capture, outside the
	// redirect set, is not visible from inside the view.
	if err := ioutil.WriteFile(filepath.Join(f.repo.Dir(), "late.txt"), []byte("late"), 0666); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(v.Path(), "late.txt")); err == nil {
		t.Fatalf("post-capture file should not be visible inside the view")
	}
}

func TestReleaseKeepsRevisionAndTargets(t *testing.T) {
	f := makeFixture(t)
	defer f.close()

	v, err := f.prov.Provision(f.rev, "job-0", []string{"outputs"})
	if err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(filepath.Join(v.Path(), "outputs", "kept.txt"), []byte("kept"), 0666); err != nil {
		t.Fatal(err)
	}

	if err := v.Release(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(v.Path()); !os.IsNotExist(err) {
		t.Fatalf("view dir %v should be gone after release", v.Path())
	}
	// Releasing twice is a no-op.
	if err := v.Release(); err != nil {
		t.Fatalf("double release should be a no-op, got %v", err)
	}

	// Neither the revision nor the redirect target is touched.
	if !f.repo.BranchExists(f.rev.ID) {
		t.Fatalf("revision branch %v should survive release", f.rev.ID)
	}
	data, err := ioutil.ReadFile(filepath.Join(f.repo.Dir(), "outputs", "kept.txt"))
	if err != nil || string(data) != "kept" {
		t.Fatalf("redirect target content lost on release: %q %v", data, err)
	}
}

func TestProvisionFailuresAreClassified(t *testing.T) {
	f := makeFixture(t)
	defer f.close()

	// An escaping redirect path is a symlink conflict.
	_, err := f.prov.Provision(f.rev, "job-bad", []string{"../escape"})
	if code := sberrors.GetExitCode(err); code != sberrors.SymlinkConflictExitCode {
		t.Fatalf("expected SymlinkConflict, got %v (%v)", code, err)
	}

	// A base dir nothing can be created under is a worktree creation failure.
	// A plain file stands in for an unwritable directory so the check holds
	// even when tests run as root.
	notADir := filepath.Join(f.tmp.Dir, "not-a-dir")
	if err := ioutil.WriteFile(notADir, []byte{}, 0666); err != nil {
		t.Fatal(err)
	}
	bad := NewProvisioner(f.repo, notADir, nil)
	_, err = bad.Provision(f.rev, "job-bad", nil)
	if code := sberrors.GetExitCode(err); code != sberrors.WorktreeCreationFailureExitCode {
		t.Fatalf("expected WorktreeCreationFailure, got %v (%v)", code, err)
	}

	// Failures leave no partial view behind.
	if f.prov.Live() != 0 || bad.Live() != 0 {
		t.Fatalf("failed provisions should not register views")
	}
}

type fixture struct {
	tmp  *temp.TempDir
	repo *repo.Repository
	rev  *snapshot.Revision
	prov *Provisioner
}

func (f *fixture) close() {
	os.RemoveAll(f.tmp.Dir)
}

// makeFixture builds an originating repo with a committed outputs/ dir, an
// uncommitted untracked file, captures a revision, and returns a provisioner
// materializing views under the fixture's temp dir.
func makeFixture(t *testing.T) *fixture {
	tmp, err := temp.TempDirDefault()
	if err != nil {
		t.Fatal(err)
	}

	dir, err := tmp.TempDir("repo-")
	if err != nil {
		t.Fatal(err)
	}
	r, err := repo.InitRepo(dir.Dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, args := range [][]string{
		{"config", "user.name", "Snapbatch Test"},
		{"config", "user.email", "test@snapbatch.github.io"},
	} {
		if _, err := r.Run(args...); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(filepath.Join(dir.Dir, "outputs"), 0777); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(filepath.Join(dir.Dir, "outputs", "stale.txt"), []byte("stale"), 0666); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(filepath.Join(dir.Dir, "app.py"), []byte("original"), 0666); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Run("add", "-A"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Run("commit", "-am", "first post"); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(filepath.Join(dir.Dir, "notes.txt"), []byte("untracked"), 0666); err != nil {
		t.Fatal(err)
	}

	s := snapshotter.New(r, tmp, false, nil)
	rev, err := s.CreateRevision("fixture")
	if err != nil {
		t.Fatal(err)
	}

	base, err := tmp.FixedDir("views")
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{tmp: tmp, repo: r, rev: rev, prov: NewProvisioner(r, base.Dir, nil)}
}

// Package repo provides utilities for operating on a git repo.
// Snapbatch ends up with multiple git repos: the originating tree the user
// edits, the throwaway capture worktree, and then each view is its own clone.
package repo

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	sberrors "github.com/snapbatch/snapbatch/common/errors"
)

// Repository represents a valid Git repository.
type Repository struct {
	dir string
}

// Where r lives on disk
func (r *Repository) Dir() string {
	return r.dir
}

// Run a git command in r
func (r *Repository) Run(args ...string) (string, error) {
	return r.RunCmd(r.Command(args...))
}

// Command creates an exec.Cmd to use to run in this Git Repo
func (r *Repository) Command(args ...string) *exec.Cmd {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.dir
	return cmd
}

// RunCmd runs cmd (that must have been created by Command), returning its output and error
func (r *Repository) RunCmd(cmd *exec.Cmd) (string, error) {
	log.Debugf("repo.Repository.Run: %v", cmd.Args[1:])
	data, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			log.Debugf("repo.Repository.Run error: %s", string(exitErr.Stderr))
		}
	}
	return string(data), err
}

// Run a git command that returns a sha.
func (r *Repository) RunSha(args ...string) (string, error) {
	out, err := r.Run(args...)
	if err != nil {
		return out, err
	}
	return validateSha(out)
}

// CurrentBranch returns the active branch name, or "HEAD" if the repo is in
// a detached-HEAD state.
func (r *Repository) CurrentBranch() (string, error) {
	out, err := r.Run("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// BranchExists checks whether name exists as a local branch.
func (r *Repository) BranchExists(name string) bool {
	_, err := r.Run("rev-parse", "--verify", "--quiet", "refs/heads/"+name)
	return err == nil
}

// validateSha trims and validates sha as a git sha, returning the valid sha xor an error
func validateSha(sha string) (string, error) {
	if len(sha) == 40 || len(sha) == 41 && sha[40] == '\n' {
		return sha[0:40], nil
	}
	return "", fmt.Errorf("sha not 40 or 41 (with a \\n) characters: %q", sha)
}

// NewRepository creates a Repository rooted at the top level of the versioned
// tree enclosing dir. Git itself walks upward from dir until it finds the
// repository marker. Fails with a NotAVersionedTree error if dir is not
// inside a versioned tree.
func NewRepository(dir string) (*Repository, error) {
	r := &Repository{dir}
	topLevel, err := r.Run("rev-parse", "--show-toplevel")
	if err != nil {
		return nil, sberrors.NewError(
			errors.Wrapf(err, "repo.NewRepository: %v is not in a versioned tree", dir),
			sberrors.NotAVersionedTreeExitCode)
	}
	topLevel = strings.Replace(topLevel, "\n", "", -1)
	log.Debugf("repo.NewRepository: %v -> %v", dir, topLevel)
	r.dir = topLevel
	return r, nil
}

// InitRepo initializes a new git repo in the given directory.
func InitRepo(dir string) (*Repository, error) {
	os.MkdirAll(dir, 0755)
	cmd := exec.Command("git", "init")
	cmd.Dir = dir
	if err := cmd.Run(); err != nil {
		return nil, err
	}
	return NewRepository(dir)
}

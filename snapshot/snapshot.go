// Package snapshot defines how snapbatch captures a working tree into an
// immutable revision and materializes per-job views of it.
//
// A Revision is a named capture of the complete tree state, including
// uncommitted and untracked content. A View is one job's independent
// filesystem materialization of a Revision, with selected sub-paths
// redirected back to the originating tree.
package snapshot

import (
	"time"
)

// Revision is an immutable capture of a complete tree state.
// It is shared read-only by every job in a batch and is never deleted by
// this subsystem; the branch it names stays in the originating repo as
// durable, inspectable history.
type Revision struct {
	// ID is the revision's unique name (a branch name, prefix + timestamp).
	ID string

	// SHA is the commit at the head of the revision branch. If the tree was
	// clean at capture time this is the base commit.
	SHA string

	// Root is the originating tree root the revision was captured from.
	Root string

	// Created is the capture time.
	Created time.Time
}

// Snapshotter captures the current state of a working tree into a Revision.
type Snapshotter interface {
	// CreateRevision captures tracked, staged, unstaged and untracked files
	// (respecting ignore rules) into a new revision named with prefix.
	// Two calls produce two distinct revisions even if content is identical;
	// callers memoize per batch.
	CreateRevision(prefix string) (*Revision, error)
}

// View is one job's materialization of a Revision.
// A View is owned exclusively by its job until released.
type View interface {
	// Path in the local filesystem to the view.
	Path() string

	// JobID of the owning job.
	JobID() string

	// Revision the view was materialized from.
	Revision() *Revision

	// Redirects maps each redirected relative sub-path to its absolute
	// target under the originating tree root.
	Redirects() map[string]string

	// Release removes the view's checkout and deregisters it. It never
	// removes redirect targets or the Revision. Releasing twice is a no-op.
	Release() error
}

// Provisioner materializes Views. Provision may be called concurrently for
// different jobs once the revision exists; each call yields a distinct,
// non-interfering View.
type Provisioner interface {
	Provision(rev *Revision, jobID string, redirectPaths []string) (View, error)
}

package worktree

import (
	"github.com/snapbatch/snapbatch/snapshot"
)

// View holds one job's clone of a revision. It implements snapshot.View.
type View struct {
	path      string
	jobID     string
	rev       *snapshot.Revision
	redirects map[string]string
	prov      *Provisioner
}

func (v *View) Path() string {
	return v.path
}

func (v *View) JobID() string {
	return v.jobID
}

func (v *View) Revision() *snapshot.Revision {
	return v.rev
}

func (v *View) Redirects() map[string]string {
	return v.redirects
}

// Release removes this view. After Release the job may not look at files
// under Path(). Releasing an already-released view is a no-op.
func (v *View) Release() error {
	return v.prov.release(v)
}

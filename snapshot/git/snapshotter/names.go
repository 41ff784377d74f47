package snapshotter

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	sberrors "github.com/snapbatch/snapbatch/common/errors"
)

const timestampFormat = "20060102-150405"

// branchName builds a revision branch name from prefix and a UTC timestamp.
func branchName(prefix string, t time.Time) string {
	return fmt.Sprintf("%s-%s", prefix, t.UTC().Format(timestampFormat))
}

// fineBranchName adds sub-second disambiguation for collision retries.
func fineBranchName(prefix string, t time.Time) string {
	return fmt.Sprintf("%s-%s-%09d", prefix, t.UTC().Format(timestampFormat), t.Nanosecond())
}

// pickBranchName generates a branch name that does not yet exist in the
// originating repo. On collision it retries with finer-grained names.
func (s *Snapshotter) pickBranchName(prefix string) (string, error) {
	name := branchName(prefix, time.Now())
	if !s.repo.BranchExists(name) {
		return name, nil
	}
	for i := 0; i < maxNameAttempts; i++ {
		name = fineBranchName(prefix, time.Now())
		if !s.repo.BranchExists(name) {
			return name, nil
		}
	}
	return "", sberrors.NewError(
		errors.Errorf("snapshotter: could not generate a unique revision name for prefix %v", prefix),
		sberrors.SnapshotCreationFailureExitCode)
}

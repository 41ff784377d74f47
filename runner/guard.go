package runner

import (
	"os"
	"sync/atomic"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// TaskFn is one job's work. It receives the root it should treat as its
// working tree: the view path when isolated, the live tree otherwise.
type TaskFn func(workRoot string) (interface{}, error)

var ambientActive int32

// Run switches this process's working directory to viewPath, invokes task,
// and restores the prior directory on every exit path, panics included.
// The switch is process-wide state, so at most one ambient run may be active
// per process; a second concurrent call fails rather than corrupting the
// first job's view of the world. Backends that run several jobs in one
// process must thread workRoot explicitly (RunIdentity) instead.
func Run(viewPath string, task TaskFn) (value interface{}, err error) {
	if !atomic.CompareAndSwapInt32(&ambientActive, 0, 1) {
		return nil, errors.New("runner.Run: ambient context switch already active in this process")
	}
	prev, err := os.Getwd()
	if err != nil {
		atomic.StoreInt32(&ambientActive, 0)
		return nil, errors.Wrap(err, "runner.Run: could not capture working location")
	}
	if err := os.Chdir(viewPath); err != nil {
		atomic.StoreInt32(&ambientActive, 0)
		return nil, errors.Wrapf(err, "runner.Run: could not enter view %v", viewPath)
	}
	defer func() {
		if chErr := os.Chdir(prev); chErr != nil {
			log.Errorf("runner.Run: could not restore working location to %v: %v", prev, chErr)
			if err == nil {
				err = errors.Wrapf(chErr, "runner.Run: could not restore working location to %v", prev)
			}
		}
		atomic.StoreInt32(&ambientActive, 0)
	}()
	value, err = task(viewPath)
	return value, err
}

// RunIdentity invokes task against workRoot with no context switch, for
// disabled or failed isolation and for shared-process backends.
func RunIdentity(workRoot string, task TaskFn) (interface{}, error) {
	return task(workRoot)
}

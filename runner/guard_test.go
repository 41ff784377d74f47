package runner

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
)

func TestRunRestoresWorkingLocationOnSuccess(t *testing.T) {
	view := makeViewDir(t)
	defer os.RemoveAll(view)

	before := getwd(t)
	value, err := Run(view, func(workRoot string) (interface{}, error) {
		if getwd(t) != mustResolve(t, view) {
			t.Fatalf("task should run inside the view, cwd is %v", getwd(t))
		}
		if workRoot != view {
			t.Fatalf("task work root %v, expected %v", workRoot, view)
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if value != "ok" {
		t.Fatalf("task value %v, expected ok", value)
	}
	if getwd(t) != before {
		t.Fatalf("working location %v after run, expected %v", getwd(t), before)
	}
}

func TestRunRestoresWorkingLocationOnError(t *testing.T) {
	view := makeViewDir(t)
	defer os.RemoveAll(view)

	before := getwd(t)
	_, err := Run(view, func(string) (interface{}, error) {
		return nil, fmt.Errorf("task exploded")
	})
	if err == nil || err.Error() != "task exploded" {
		t.Fatalf("expected the task's own error, got %v", err)
	}
	if getwd(t) != before {
		t.Fatalf("working location %v after failed run, expected %v", getwd(t), before)
	}
}

func TestRunRestoresWorkingLocationOnPanic(t *testing.T) {
	view := makeViewDir(t)
	defer os.RemoveAll(view)

	before := getwd(t)
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatalf("panic should propagate out of Run")
			}
		}()
		Run(view, func(string) (interface{}, error) {
			panic("task panicked")
		})
	}()
	if getwd(t) != before {
		t.Fatalf("working location %v after panicked run, expected %v", getwd(t), before)
	}
}

func TestRunRefusesConcurrentAmbientSwitch(t *testing.T) {
	view := makeViewDir(t)
	defer os.RemoveAll(view)

	inner := make(chan error)
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		Run(view, func(string) (interface{}, error) {
			_, err := Run(view, func(string) (interface{}, error) { return nil, nil })
			inner <- err
			<-release
			return nil, nil
		})
		close(done)
	}()

	if err := <-inner; err == nil {
		t.Fatalf("second ambient switch in one process should be refused")
	}
	close(release)
	<-done
}

func TestRunIdentityDoesNotSwitch(t *testing.T) {
	before := getwd(t)
	value, err := RunIdentity(before, func(workRoot string) (interface{}, error) {
		if workRoot != before {
			t.Fatalf("identity work root %v, expected %v", workRoot, before)
		}
		return 42, nil
	})
	if err != nil || value != 42 {
		t.Fatalf("identity run returned %v, %v", value, err)
	}
	if getwd(t) != before {
		t.Fatalf("identity run moved the working location to %v", getwd(t))
	}
}

func makeViewDir(t *testing.T) string {
	dir, err := ioutil.TempDir("", "guard_test")
	if err != nil {
		t.Fatal(err)
	}
	return dir
}

func getwd(t *testing.T) string {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	return mustResolve(t, wd)
}

func mustResolve(t *testing.T, path string) string {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		t.Fatal(err)
	}
	return resolved
}

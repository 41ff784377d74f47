package runner

import (
	"sync/atomic"
)

// LocalBackend runs dispatched callables in this process, at most capacity
// at a time. Jobs dispatched here share the process, so the launcher threads
// each job's work root explicitly rather than using the ambient switch.
type LocalBackend struct {
	sem chan struct{}
}

func NewLocalBackend(capacity int) *LocalBackend {
	if capacity < 1 {
		capacity = 1
	}
	return &LocalBackend{sem: make(chan struct{}, capacity)}
}

func (b *LocalBackend) Dispatch(fn func(report func(JobState)) Result) Handle {
	h := &localHandle{done: make(chan Result, 1)}
	h.report(PENDING)
	go func() {
		b.sem <- struct{}{}
		defer func() { <-b.sem }()
		r := fn(h.report)
		h.report(r.State)
		h.done <- r
	}()
	return h
}

type localHandle struct {
	state  int32
	done   chan Result
	result *Result
}

func (h *localHandle) report(s JobState) {
	atomic.StoreInt32(&h.state, int32(s))
}

func (h *localHandle) Status() JobState {
	return JobState(atomic.LoadInt32(&h.state))
}

func (h *localHandle) Wait() Result {
	if h.result == nil {
		r := <-h.done
		h.result = &r
	}
	return *h.result
}

package service

import (
	"context"
	"errors"
	"sync"
)

// fakeEngine is a scriptable Engine for tests. Poll walks through states
// (the last one repeats); output is produced per submission so retry and
// multi-phase behavior can be scripted.
type fakeEngine struct {
	mu sync.Mutex

	registerErr error
	submitErr   error
	pollErr     error
	// pollErrCount makes the first N polls fail transiently before pollErr
	// handling falls through to the scripted states.
	pollErrCount int
	fetchErr     error
	cancelErr    error
	releaseErr   error

	states []JobState
	// outputFn returns the raw engine text for the given instructions and
	// zero-based submission index. Defaults to a fixed output when nil.
	outputFn func(instructions string, submission int) string
	output   string

	registerCalls int
	submitCalls   int
	pollCalls     int
	fetchCalls    int
	cancelCalls   int
	releaseCalls  int

	lastInstructions []string
}

func (f *fakeEngine) Register(_ context.Context, fileURL, filename string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registerCalls++
	if f.registerErr != nil {
		return "", f.registerErr
	}
	return "ctx-1", nil
}

func (f *fakeEngine) Submit(_ context.Context, contextID, instructions string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	f.lastInstructions = append(f.lastInstructions, instructions)
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "job-1", nil
}

func (f *fakeEngine) Poll(_ context.Context, jobID string) (JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollCalls++
	if f.pollErrCount > 0 {
		f.pollErrCount--
		return JobStatus{}, errors.New("transient poll failure")
	}
	if f.pollErr != nil {
		return JobStatus{}, f.pollErr
	}
	if len(f.states) == 0 {
		return JobStatus{State: JobDone}, nil
	}
	idx := f.pollCalls - 1
	if idx >= len(f.states) {
		idx = len(f.states) - 1
	}
	return JobStatus{State: f.states[idx]}, nil
}

func (f *fakeEngine) Fetch(_ context.Context, jobID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchErr != nil {
		return "", f.fetchErr
	}
	if f.outputFn != nil {
		instructions := ""
		if len(f.lastInstructions) > 0 {
			instructions = f.lastInstructions[len(f.lastInstructions)-1]
		}
		return f.outputFn(instructions, f.submitCalls-1), nil
	}
	return f.output, nil
}

func (f *fakeEngine) Cancel(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	return f.cancelErr
}

func (f *fakeEngine) Release(_ context.Context, contextID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releaseCalls++
	return f.releaseErr
}

func (f *fakeEngine) counts() (register, submit, poll, fetch, cancel, release int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registerCalls, f.submitCalls, f.pollCalls, f.fetchCalls, f.cancelCalls, f.releaseCalls
}

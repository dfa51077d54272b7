package service

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestRunner(engine Engine) *JobRunner {
	return NewJobRunner(engine, time.Millisecond, 100*time.Millisecond)
}

func TestJobRunnerSuccess(t *testing.T) {
	engine := &fakeEngine{
		states: []JobState{JobRunning, JobDone},
		output: `{"razao_social": "Empresa X"}`,
	}
	runner := newTestRunner(engine)

	text, err := runner.Run(context.Background(), "instructions", "http://files/doc.pdf", "doc.pdf", time.Second)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if text != `{"razao_social": "Empresa X"}` {
		t.Errorf("Unexpected output: %q", text)
	}

	_, _, _, fetch, cancel, release := engine.counts()
	if fetch != 1 {
		t.Errorf("Expected 1 fetch, got %d", fetch)
	}
	if cancel != 0 {
		t.Errorf("Terminal job should not be cancelled, got %d cancels", cancel)
	}
	if release != 1 {
		t.Errorf("Context must be released exactly once, got %d", release)
	}
}

func TestJobRunnerEngineFailure(t *testing.T) {
	engine := &fakeEngine{states: []JobState{JobFailed}}
	runner := newTestRunner(engine)

	_, err := runner.Run(context.Background(), "instructions", "url", "doc.pdf", time.Second)
	if err == nil {
		t.Fatal("Expected error for failed job")
	}

	_, _, _, _, cancel, release := engine.counts()
	if cancel != 0 {
		t.Errorf("Terminal job should not be cancelled, got %d cancels", cancel)
	}
	if release != 1 {
		t.Errorf("Context must be released after failure, got %d", release)
	}
}

func TestJobRunnerBudgetExhausted(t *testing.T) {
	engine := &fakeEngine{states: []JobState{JobRunning}}
	runner := newTestRunner(engine)

	start := time.Now()
	_, err := runner.Run(context.Background(), "instructions", "url", "doc.pdf", 30*time.Millisecond)
	if !errors.Is(err, ErrJobTimeout) {
		t.Fatalf("Expected ErrJobTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Run overshot its budget badly: %v", elapsed)
	}

	_, _, _, _, cancel, release := engine.counts()
	if cancel != 1 {
		t.Errorf("In-flight job must be cancelled on timeout, got %d cancels", cancel)
	}
	if release != 1 {
		t.Errorf("Context must be released on timeout, got %d", release)
	}
}

func TestJobRunnerRegisterFailure(t *testing.T) {
	engine := &fakeEngine{registerErr: errors.New("engine unavailable")}
	runner := newTestRunner(engine)

	_, err := runner.Run(context.Background(), "instructions", "url", "doc.pdf", time.Second)
	if err == nil {
		t.Fatal("Expected error when registration fails")
	}

	_, submit, _, _, _, release := engine.counts()
	if submit != 0 {
		t.Errorf("Submit must not run without a context, got %d", submit)
	}
	if release != 0 {
		t.Errorf("Nothing to release when registration failed, got %d", release)
	}
}

func TestJobRunnerSubmitFailureStillReleases(t *testing.T) {
	engine := &fakeEngine{submitErr: errors.New("quota exceeded")}
	runner := newTestRunner(engine)

	_, err := runner.Run(context.Background(), "instructions", "url", "doc.pdf", time.Second)
	if err == nil {
		t.Fatal("Expected error when submission fails")
	}

	_, _, _, _, _, release := engine.counts()
	if release != 1 {
		t.Errorf("Context must be released after submit failure, got %d", release)
	}
}

func TestJobRunnerToleratesTransientPollFailures(t *testing.T) {
	engine := &fakeEngine{
		pollErrCount: 2,
		output:       `{"ok": true}`,
	}
	runner := newTestRunner(engine)

	text, err := runner.Run(context.Background(), "instructions", "url", "doc.pdf", time.Second)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if text != `{"ok": true}` {
		t.Errorf("Unexpected output: %q", text)
	}

	_, _, poll, _, _, _ := engine.counts()
	if poll < 3 {
		t.Errorf("Expected at least 3 polls (2 failures + success), got %d", poll)
	}
}

func TestJobRunnerReleaseFailureNotEscalated(t *testing.T) {
	engine := &fakeEngine{
		output:     `{"ok": true}`,
		releaseErr: errors.New("release failed"),
	}
	runner := newTestRunner(engine)

	_, err := runner.Run(context.Background(), "instructions", "url", "doc.pdf", time.Second)
	if err != nil {
		t.Fatalf("Release failure must not fail the run: %v", err)
	}
}

func TestJobRunnerFetchFailure(t *testing.T) {
	engine := &fakeEngine{fetchErr: errors.New("result expired")}
	runner := newTestRunner(engine)

	_, err := runner.Run(context.Background(), "instructions", "url", "doc.pdf", time.Second)
	if err == nil {
		t.Fatal("Expected error when fetch fails")
	}

	_, _, _, _, cancel, release := engine.counts()
	if cancel != 0 {
		t.Errorf("Done job should not be cancelled, got %d", cancel)
	}
	if release != 1 {
		t.Errorf("Context must be released, got %d", release)
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Web-Star-Studio/daton-esg-insight-sub008/pkg/logger"
	"github.com/Web-Star-Studio/daton-esg-insight-sub008/pkg/timebox"
)

// ErrJobTimeout marks a run that exhausted its wall-clock budget before the
// engine reached a terminal state.
var ErrJobTimeout = errors.New("extraction job timed out")

// JobRunner drives a single extraction job against the engine: register a
// transient context, submit, poll until terminal or out of budget, fetch the
// output. Every engine call is individually time-boxed so one slow call
// cannot silently consume the whole budget, and the transient context is
// always released afterwards, win or lose.
type JobRunner struct {
	engine       Engine
	pollInterval time.Duration
	callTimeout  time.Duration
}

func NewJobRunner(engine Engine, pollInterval, callTimeout time.Duration) *JobRunner {
	return &JobRunner{
		engine:       engine,
		pollInterval: pollInterval,
		callTimeout:  callTimeout,
	}
}

// Run executes one extraction job and returns the engine's raw text output.
// Engine-side failure, cancellation, expiry and local budget exhaustion all
// come back as errors; callers retry or give up without distinguishing them.
func (r *JobRunner) Run(ctx context.Context, instructions, fileURL, filename string, budget time.Duration) (string, error) {
	deadline := time.Now().Add(budget)

	contextID, err := timebox.Do(ctx, r.callTimeout, func(ctx context.Context) (string, error) {
		return r.engine.Register(ctx, fileURL, filename)
	})
	if err != nil {
		return "", fmt.Errorf("register context: %w", err)
	}

	// The engine-side context must not accumulate, so releasing it is
	// unconditional and best-effort. A failed release is logged, never
	// escalated.
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)
		_, relErr := timebox.Do(cleanupCtx, r.callTimeout, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, r.engine.Release(ctx, contextID)
		})
		if relErr != nil {
			logger.Warn(ctx, "failed to release engine context", "context_id", contextID, "error", relErr)
		}
	}()

	jobID, err := timebox.Do(ctx, r.callTimeout, func(ctx context.Context) (string, error) {
		return r.engine.Submit(ctx, contextID, instructions)
	})
	if err != nil {
		return "", fmt.Errorf("submit job: %w", err)
	}

	terminal := false
	defer func() {
		if terminal {
			return
		}
		// Budget ran out with the job still in flight; ask the engine to
		// stop it before the context goes away.
		cleanupCtx := context.WithoutCancel(ctx)
		_, cancelErr := timebox.Do(cleanupCtx, r.callTimeout, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, r.engine.Cancel(ctx, jobID)
		})
		if cancelErr != nil {
			logger.Warn(ctx, "failed to cancel in-flight job", "job_id", jobID, "error", cancelErr)
		}
	}()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(r.pollInterval):
		}

		status, err := timebox.Do(ctx, r.callTimeout, func(ctx context.Context) (JobStatus, error) {
			return r.engine.Poll(ctx, jobID)
		})
		if err != nil {
			// A single failed poll is not terminal; the next tick retries.
			logger.Debug(ctx, "poll failed", "job_id", jobID, "error", err)
			continue
		}

		switch status.State {
		case JobDone:
			terminal = true
			text, err := timebox.Do(ctx, r.callTimeout, func(ctx context.Context) (string, error) {
				return r.engine.Fetch(ctx, jobID)
			})
			if err != nil {
				return "", fmt.Errorf("fetch result: %w", err)
			}
			return text, nil
		case JobFailed, JobCancelled, JobExpired:
			terminal = true
			return "", fmt.Errorf("job ended in state %s: %s", status.State, status.ErrorMsg)
		}
	}

	return "", ErrJobTimeout
}

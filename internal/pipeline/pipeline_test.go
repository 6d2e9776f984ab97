package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"audioreceiver/internal/metadata"
)

func newTestStore(t *testing.T) metadata.Store {
	t.Helper()
	store, err := metadata.NewSQLiteStore(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

type fnStep struct {
	name      string
	shouldRun bool
	execute   func(sctx StepContext, data Data) StepResult
	cleanedUp *bool
}

func (s fnStep) Name() string { return s.name }
func (s fnStep) ShouldRun(sctx StepContext, data Data) bool { return s.shouldRun }
func (s fnStep) Execute(ctx context.Context, sctx StepContext, data Data) StepResult {
	return s.execute(sctx, data)
}
func (s fnStep) Cleanup(ctx context.Context, sctx StepContext, data Data) {
	if s.cleanedUp != nil {
		*s.cleanedUp = true
	}
}

func TestRunAllStepsSucceed(t *testing.T) {
	steps := []Step{
		fnStep{name: "a", shouldRun: true, execute: func(sctx StepContext, data Data) StepResult {
			return Success(Data{"a": 1}, nil)
		}},
		fnStep{name: "b", shouldRun: true, execute: func(sctx StepContext, data Data) StepResult {
			return Success(Data{"b": 2}, nil)
		}},
	}
	r := Runner{Steps: steps}
	result := r.Run(context.Background(), StepContext{SessionID: "s1"}, Data{})
	if !result.Success {
		t.Fatalf("expected success, got failed steps %v", result.FailedSteps)
	}
	if result.FinalData["a"] != 1 || result.FinalData["b"] != 2 {
		t.Errorf("FinalData = %v", result.FinalData)
	}
}

func TestRunSkipsStepWhenShouldRunFalse(t *testing.T) {
	var ranExecute bool
	steps := []Step{
		fnStep{name: "skip-me", shouldRun: false, execute: func(sctx StepContext, data Data) StepResult {
			ranExecute = true
			return Success(nil, nil)
		}},
	}
	r := Runner{Steps: steps}
	result := r.Run(context.Background(), StepContext{}, Data{})
	if ranExecute {
		t.Fatal("Execute should not run when ShouldRun is false")
	}
	if len(result.SkippedSteps) != 1 || result.SkippedSteps[0] != "skip-me" {
		t.Errorf("SkippedSteps = %v", result.SkippedSteps)
	}
	if !result.Success {
		t.Error("a skipped step should not fail the run")
	}
}

func TestRunRetriesThenSucceeds(t *testing.T) {
	attempts := 0
	steps := []Step{
		fnStep{name: "flaky", shouldRun: true, execute: func(sctx StepContext, data Data) StepResult {
			attempts++
			if attempts < 3 {
				return Failure(errors.New("transient"))
			}
			return Success(Data{"ok": true}, nil)
		}},
	}
	r := Runner{Steps: steps, Options: Options{MaxRetries: 5, RetryDelay: time.Millisecond}}
	result := r.Run(context.Background(), StepContext{}, Data{})
	if !result.Success {
		t.Fatalf("expected eventual success, attempts=%d", attempts)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if result.PerStepResults[0].RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", result.PerStepResults[0].RetryCount)
	}
}

func TestRunFailureStopsSubsequentStepsAndRunsCleanup(t *testing.T) {
	var cleanedUp bool
	var secondRan bool
	steps := []Step{
		fnStep{name: "doomed", shouldRun: true, cleanedUp: &cleanedUp, execute: func(sctx StepContext, data Data) StepResult {
			return Failure(errors.New("permanent"))
		}},
		fnStep{name: "never", shouldRun: true, execute: func(sctx StepContext, data Data) StepResult {
			secondRan = true
			return Success(nil, nil)
		}},
	}
	r := Runner{Steps: steps, Options: Options{MaxRetries: 0}}
	result := r.Run(context.Background(), StepContext{}, Data{})
	if result.Success {
		t.Fatal("expected failure")
	}
	if secondRan {
		t.Error("subsequent step must not run after a failure")
	}
	if !cleanedUp {
		t.Error("expected failed step's Cleanup to run")
	}
	if len(result.FailedSteps) != 1 || result.FailedSteps[0] != "doomed" {
		t.Errorf("FailedSteps = %v", result.FailedSteps)
	}
}

func TestRunTracksProvenanceInDB(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if _, err := store.UpsertSession(ctx, "s1", 48000, 18); err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}
	steps := []Step{
		fnStep{name: "tracked", shouldRun: true, execute: func(sctx StepContext, data Data) StepResult {
			return Success(Data{"k": "v"}, nil)
		}},
	}
	r := Runner{Steps: steps, Store: store, Options: Options{TrackInDB: true}}
	result := r.Run(ctx, StepContext{SessionID: "s1", ChannelNumber: 3}, Data{})
	if !result.Success {
		t.Fatal("expected success")
	}
	runs, err := store.ListPipelineRuns(ctx, metadata.PipelineRunFilter{SessionID: "s1"})
	if err != nil {
		t.Fatalf("ListPipelineRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("len(runs) = %d, want 1", len(runs))
	}
	if runs[0].StepName != "tracked" {
		t.Errorf("StepName = %q", runs[0].StepName)
	}
	if runs[0].Status != "completed" {
		t.Errorf("Status = %q, want completed", runs[0].Status)
	}
}

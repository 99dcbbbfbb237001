package jobstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"listingpilot/internal/domain"
)

func newJob(t *testing.T, store *Memory) *domain.Job {
	t.Helper()
	job := &domain.Job{ID: uuid.NewString(), Locale: "en"}
	if err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	return job
}

func stagePtr(s domain.JobStage) *domain.JobStage { return &s }
func intPtr(i int) *int                           { return &i }

func TestCreateInitializesPending(t *testing.T) {
	store := NewMemory()
	job := newJob(t, store)

	got, err := store.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.Stage != domain.StagePending {
		t.Fatalf("Stage = %q, want %q", got.Stage, domain.StagePending)
	}
	if got.Progress != 0 {
		t.Fatalf("Progress = %d, want 0", got.Progress)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatal("timestamps not initialized")
	}
}

func TestGetUnknownID(t *testing.T) {
	store := NewMemory()
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get = %v, want ErrNotFound", err)
	}
	if _, err := store.Update(context.Background(), "nope", domain.JobUpdate{}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Update = %v, want ErrNotFound", err)
	}
}

func TestUpdateWalksStateMachine(t *testing.T) {
	store := NewMemory()
	job := newJob(t, store)
	ctx := context.Background()

	order := []domain.JobStage{
		domain.StageAnalyzing,
		domain.StageResearching,
		domain.StageGenerating,
		domain.StageReady,
	}
	last := 0
	for _, stage := range order {
		p := domain.StageProgress(stage)
		got, err := store.Update(ctx, job.ID, domain.JobUpdate{Stage: stagePtr(stage), Progress: intPtr(p)})
		if err != nil {
			t.Fatalf("Update to %q returned error: %v", stage, err)
		}
		if got.Stage != stage {
			t.Fatalf("Stage = %q, want %q", got.Stage, stage)
		}
		if got.Progress < last {
			t.Fatalf("progress decreased: %d -> %d", last, got.Progress)
		}
		last = got.Progress
	}
	if last != 100 {
		t.Fatalf("final progress = %d, want 100", last)
	}
}

func TestUpdateRejectsSkippedStage(t *testing.T) {
	store := NewMemory()
	job := newJob(t, store)

	_, err := store.Update(context.Background(), job.ID, domain.JobUpdate{Stage: stagePtr(domain.StageGenerating)})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("Update = %v, want ErrInvalidTransition", err)
	}
}

func TestTerminalJobsNeverMutate(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	for _, terminal := range []domain.JobStage{domain.StageError, domain.StageCancelled} {
		job := newJob(t, store)
		if _, err := store.Update(ctx, job.ID, domain.JobUpdate{Stage: stagePtr(terminal)}); err != nil {
			t.Fatalf("Update to %q returned error: %v", terminal, err)
		}
		before, _ := store.Get(ctx, job.ID)

		_, err := store.Update(ctx, job.ID, domain.JobUpdate{Progress: intPtr(99)})
		if !errors.Is(err, domain.ErrInvalidTransition) {
			t.Fatalf("Update on %q job = %v, want ErrInvalidTransition", terminal, err)
		}

		after, _ := store.Get(ctx, job.ID)
		if after.Stage != before.Stage || after.Progress != before.Progress || !after.UpdatedAt.Equal(before.UpdatedAt) {
			t.Fatalf("terminal job mutated: before=%+v after=%+v", before, after)
		}
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	store := NewMemory()
	job := newJob(t, store)
	ctx := context.Background()

	if _, err := store.Update(ctx, job.ID, domain.JobUpdate{Stage: stagePtr(domain.StageAnalyzing), Progress: intPtr(30)}); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	got, err := store.Update(ctx, job.ID, domain.JobUpdate{Progress: intPtr(15)})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if got.Progress != 30 {
		t.Fatalf("Progress = %d, want 30 (lower values ignored)", got.Progress)
	}
}

func TestSnapshotsAreIsolated(t *testing.T) {
	store := NewMemory()
	job := newJob(t, store)
	ctx := context.Background()

	vision := &domain.VisionResult{Product: domain.Product{Name: "Lamp", Condition: "Used"}, Keywords: []string{"lamp"}}
	if _, err := store.Update(ctx, job.ID, domain.JobUpdate{Stage: stagePtr(domain.StageAnalyzing), Vision: vision}); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	snap, _ := store.Get(ctx, job.ID)
	snap.Result.Vision.Product.Name = "mutated"
	snap.Result.Vision.Keywords[0] = "mutated"

	again, _ := store.Get(ctx, job.ID)
	if again.Result.Vision.Product.Name != "Lamp" || again.Result.Vision.Keywords[0] != "lamp" {
		t.Fatal("stored job mutated through a snapshot")
	}
}

func TestPurgeTerminal(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }

	done := newJob(t, store)
	if _, err := store.Update(ctx, done.ID, domain.JobUpdate{Stage: stagePtr(domain.StageError), Error: &domain.JobError{Kind: domain.ErrKindVisionFailure, Message: "x"}}); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	running := newJob(t, store)

	now = now.Add(2 * time.Hour)
	purged, err := store.PurgeTerminal(ctx, time.Hour)
	if err != nil {
		t.Fatalf("PurgeTerminal returned error: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}
	if _, err := store.Get(ctx, done.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("terminal job survived purge: %v", err)
	}
	if _, err := store.Get(ctx, running.ID); err != nil {
		t.Fatalf("pending job was purged: %v", err)
	}
}

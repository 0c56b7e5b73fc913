package sqlite

import (
	"context"
	"testing"

	"github.com/Interactions-AI/odin/internal/domain"
	"github.com/Interactions-AI/odin/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func samplePipelineRun(label string) domain.PipelineRun {
	return domain.NewPipelineRun(label, "flow", []string{label + "--train"})
}

func TestCreateAndGetPipelineRun(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	run := samplePipelineRun("flow-abc123")
	if err := s.CreatePipelineRun(ctx, run); err != nil {
		t.Fatalf("CreatePipelineRun: %v", err)
	}

	got, err := s.GetPipelineRun(ctx, run.Label)
	if err != nil {
		t.Fatalf("GetPipelineRun: %v", err)
	}
	if got.Label != run.Label || got.Job != run.Job || got.Status != run.Status {
		t.Fatalf("round-tripped run mismatch: got %+v, want %+v", got, run)
	}
	if len(got.Waiting) != 1 || got.Waiting[0] != run.Waiting[0] {
		t.Fatalf("waiting not preserved: %v", got.Waiting)
	}
}

func TestCreatePipelineRunRejectsDuplicateLabel(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	run := samplePipelineRun("flow-dup")
	if err := s.CreatePipelineRun(ctx, run); err != nil {
		t.Fatalf("first create: %v", err)
	}
	err := s.CreatePipelineRun(ctx, run)
	if !store.AsConflict(err) {
		t.Fatalf("expected Conflict, got %v", err)
	}
}

func TestGetPipelineRunMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetPipelineRun(context.Background(), "nope")
	if !store.AsMissing(err) {
		t.Fatalf("expected Missing, got %v", err)
	}
}

func TestUpdatePipelineRunMovesLabelsBetweenBuckets(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	run := samplePipelineRun("flow-move")
	if err := s.CreatePipelineRun(ctx, run); err != nil {
		t.Fatalf("create: %v", err)
	}

	run.Waiting = nil
	run.Executing = []string{run.Tasks[0]}
	run.Status = domain.PipelineRunning
	if err := s.UpdatePipelineRun(ctx, run); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetPipelineRun(ctx, run.Label)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Waiting) != 0 || len(got.Executing) != 1 || got.Status != domain.PipelineRunning {
		t.Fatalf("update not applied: %+v", got)
	}
}

func TestSearchPipelineRunsByLabelSubstring(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, label := range []string{"flow-aaa111", "flow-bbb222", "other-ccc333"} {
		if err := s.CreatePipelineRun(ctx, samplePipelineRun(label)); err != nil {
			t.Fatalf("create %s: %v", label, err)
		}
	}
	got, err := s.SearchPipelineRunsByLabelSubstring(ctx, "flow-")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
}

func TestListNonTerminalPipelineRunsExcludesTerminal(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	running := samplePipelineRun("flow-running")
	if err := s.CreatePipelineRun(ctx, running); err != nil {
		t.Fatalf("create running: %v", err)
	}
	done := samplePipelineRun("flow-done")
	done.Status = domain.PipelineDone
	if err := s.CreatePipelineRun(ctx, done); err != nil {
		t.Fatalf("create done: %v", err)
	}

	got, err := s.ListNonTerminalPipelineRuns(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Label != running.Label {
		t.Fatalf("expected only running, got %+v", got)
	}
}

func TestDeletePipelineRunCascadesTaskRuns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	run := samplePipelineRun("flow-del")
	if err := s.CreatePipelineRun(ctx, run); err != nil {
		t.Fatalf("create pipeline: %v", err)
	}
	task := domain.NewTaskRun(run.Label, domain.TaskDefinition{Name: "train", Image: "img"})
	if err := s.CreateTaskRun(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	if err := s.DeletePipelineRun(ctx, run.Label); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetPipelineRun(ctx, run.Label); !store.AsMissing(err) {
		t.Fatalf("expected pipeline gone, got %v", err)
	}
	if _, err := s.GetTaskRun(ctx, task.Label); !store.AsMissing(err) {
		t.Fatalf("expected task gone, got %v", err)
	}
}

func TestDeletePipelineRunMissing(t *testing.T) {
	s := newTestStore(t)
	err := s.DeletePipelineRun(context.Background(), "nope")
	if !store.AsMissing(err) {
		t.Fatalf("expected Missing, got %v", err)
	}
}

func createPipelineAndTask(t *testing.T, s *Store, pipelineLabel string) domain.TaskRun {
	t.Helper()
	ctx := context.Background()
	run := samplePipelineRun(pipelineLabel)
	if err := s.CreatePipelineRun(ctx, run); err != nil {
		t.Fatalf("create pipeline: %v", err)
	}
	task := domain.NewTaskRun(run.Label, domain.TaskDefinition{
		Name: "train", Image: "img", Command: []string{"python"}, Args: []string{"-m", "train"},
		Depends: domain.DependsList{"prep"},
	})
	if err := s.CreateTaskRun(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func TestCreateAndGetTaskRunRoundTrips(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	task := createPipelineAndTask(t, s, "flow-task")

	got, err := s.GetTaskRun(ctx, task.Label)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != task.Name || got.Image != task.Image || got.Status != domain.TaskWaiting {
		t.Fatalf("mismatch: %+v", got)
	}
	if len(got.Args) != 2 || got.Args[1] != "train" {
		t.Fatalf("args not preserved: %v", got.Args)
	}
	if len(got.Depends) != 1 || got.Depends[0] != "prep" {
		t.Fatalf("depends not preserved: %v", got.Depends)
	}
	if got.Exit != nil {
		t.Fatalf("expected no exit info yet, got %+v", got.Exit)
	}
}

func TestListTaskRunsByParent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	task := createPipelineAndTask(t, s, "flow-list")

	got, err := s.ListTaskRunsByParent(ctx, task.Parent)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Label != task.Label {
		t.Fatalf("expected 1 task run, got %+v", got)
	}
}

func TestAtomicUpdateTaskRunAppliesTransitionAndExit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	task := createPipelineAndTask(t, s, "flow-atomic")

	updated, err := s.AtomicUpdateTaskRun(ctx, task.Label, func(current domain.TaskRun) (domain.TaskRun, error) {
		if err := current.Transition(domain.TaskBuilding); err != nil {
			return domain.TaskRun{}, err
		}
		current.ResourceID = current.Label
		return current, nil
	})
	if err != nil {
		t.Fatalf("atomic update: %v", err)
	}
	if updated.Status != domain.TaskBuilding || updated.ResourceID != task.Label {
		t.Fatalf("update not applied: %+v", updated)
	}

	got, err := s.GetTaskRun(ctx, task.Label)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.TaskBuilding {
		t.Fatalf("update not persisted: %+v", got)
	}
}

func TestAtomicUpdateTaskRunRejectsInvalidTransition(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	task := createPipelineAndTask(t, s, "flow-invalid")

	_, err := s.AtomicUpdateTaskRun(ctx, task.Label, func(current domain.TaskRun) (domain.TaskRun, error) {
		return current, current.Transition(domain.TaskExecuted)
	})
	if err == nil {
		t.Fatal("expected an error for WAITING -> EXECUTED")
	}

	got, err := s.GetTaskRun(ctx, task.Label)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.TaskWaiting {
		t.Fatalf("rejected transition must not persist, got %s", got.Status)
	}
}

func TestAtomicUpdateTaskRunMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AtomicUpdateTaskRun(context.Background(), "nope", func(current domain.TaskRun) (domain.TaskRun, error) {
		return current, nil
	})
	if !store.AsMissing(err) {
		t.Fatalf("expected Missing, got %v", err)
	}
}

func TestCreateTaskRunRejectsDuplicateLabel(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	task := createPipelineAndTask(t, s, "flow-dup-task")

	err := s.CreateTaskRun(ctx, task)
	if !store.AsConflict(err) {
		t.Fatalf("expected Conflict, got %v", err)
	}
}

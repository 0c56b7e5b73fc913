package executor

import (
	"context"
	"testing"
	"time"

	"github.com/Interactions-AI/odin/internal/cluster"
	fakecluster "github.com/Interactions-AI/odin/internal/cluster/fake"
	"github.com/Interactions-AI/odin/internal/domain"
	"github.com/Interactions-AI/odin/internal/handler"
	"github.com/Interactions-AI/odin/internal/pipeline"
	"github.com/Interactions-AI/odin/internal/store/sqlite"
)

func testExecutor(t *testing.T) (*Executor, *fakecluster.Client) {
	t.Helper()
	s, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	fc := fakecluster.New()
	registry := handler.NewRegistry(fc, "odin", time.Minute)
	cfg := Config{PollInterval: 5 * time.Millisecond, SubmitBackoffBase: time.Millisecond, SubmitMaxAttempts: 3}
	return New(s, registry, cfg), fc
}

func twoStepInstance(label string) pipeline.Instance {
	return pipeline.Instance{
		Label: label,
		Tasks: []domain.TaskDefinition{
			{Name: "prep", Image: "img"},
			{Name: "train", Image: "img", Depends: domain.DependsList{"prep"}},
		},
	}
}

func pollUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestExecutorRunsSequentialPipelineToCompletion(t *testing.T) {
	e, fc := testExecutor(t)
	ctx := context.Background()

	inst := twoStepInstance("flow-seq000000")
	run, err := e.Submit(ctx, inst, "flow")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	prepLabel := domain.TaskLabel(run.Label, "prep")
	trainLabel := domain.TaskLabel(run.Label, "train")

	pollUntil(t, time.Second, func() bool {
		return fc.Deleted(domain.Pod, "odin", prepLabel) == false &&
			workloadExists(fc, prepLabel)
	})
	fc.SetPhase(domain.Pod, "odin", prepLabel, cluster.PhaseSucceeded)

	pollUntil(t, time.Second, func() bool { return workloadExists(fc, trainLabel) })
	fc.SetPhase(domain.Pod, "odin", trainLabel, cluster.PhaseSucceeded)

	pollUntil(t, time.Second, func() bool {
		got, err := e.store.GetPipelineRun(ctx, run.Label)
		return err == nil && got.Status == domain.PipelineDone
	})

	got, err := e.store.GetPipelineRun(ctx, run.Label)
	if err != nil {
		t.Fatalf("GetPipelineRun: %v", err)
	}
	if len(got.Executed) != 2 {
		t.Fatalf("expected both tasks executed, got %+v", got)
	}
}

func workloadExists(fc *fakecluster.Client, label string) bool {
	_, err := fc.Get(context.Background(), domain.Pod, "odin", label)
	return err == nil
}

func TestExecutorFailsDownstreamOnTaskFailure(t *testing.T) {
	e, fc := testExecutor(t)
	ctx := context.Background()

	inst := twoStepInstance("flow-fail000000")
	run, err := e.Submit(ctx, inst, "flow")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	prepLabel := domain.TaskLabel(run.Label, "prep")
	trainLabel := domain.TaskLabel(run.Label, "train")

	pollUntil(t, time.Second, func() bool { return workloadExists(fc, prepLabel) })
	fc.SetPhase(domain.Pod, "odin", prepLabel, cluster.PhaseFailed)

	pollUntil(t, time.Second, func() bool {
		got, err := e.store.GetPipelineRun(ctx, run.Label)
		return err == nil && got.Status == domain.PipelineFailed
	})

	trainRun, err := e.store.GetTaskRun(ctx, trainLabel)
	if err != nil {
		t.Fatalf("GetTaskRun: %v", err)
	}
	if trainRun.Status != domain.TaskTerminated {
		t.Fatalf("expected downstream task TERMINATED, got %s", trainRun.Status)
	}
}

func TestExecutorCancelTerminatesRunningPipeline(t *testing.T) {
	e, fc := testExecutor(t)
	ctx := context.Background()

	inst := twoStepInstance("flow-cancel000000")
	run, err := e.Submit(ctx, inst, "flow")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	prepLabel := domain.TaskLabel(run.Label, "prep")
	pollUntil(t, time.Second, func() bool { return workloadExists(fc, prepLabel) })

	e.Cancel(run.Label)

	got, err := e.store.GetPipelineRun(ctx, run.Label)
	if err != nil {
		t.Fatalf("GetPipelineRun: %v", err)
	}
	if got.Status != domain.PipelineTerminated {
		t.Fatalf("expected TERMINATED, got %s", got.Status)
	}
	if !fc.Deleted(domain.Pod, "odin", prepLabel) {
		t.Fatal("expected executing task's workload to be deleted on cancellation")
	}
}

// TestExecutorResumeRestartsNonTerminalRuns persists a running pipeline's
// rows directly (bypassing Submit, which would also start its own live
// loop) to simulate the state left behind by a crashed process, then
// checks that a fresh Executor's Resume picks the reconciliation back up
// (spec.md §4.8).
func TestExecutorResumeRestartsNonTerminalRuns(t *testing.T) {
	e, fc := testExecutor(t)
	ctx := context.Background()

	inst := twoStepInstance("flow-resume000000")
	labels := make([]string, len(inst.Tasks))
	tasks := make([]domain.TaskRun, len(inst.Tasks))
	for i, def := range inst.Tasks {
		tasks[i] = domain.NewTaskRun(inst.Label, def)
		labels[i] = tasks[i].Label
	}
	run := domain.NewPipelineRun(inst.Label, "flow", labels)
	run.Status = domain.PipelineRunning
	if err := e.store.CreatePipelineRun(ctx, run); err != nil {
		t.Fatalf("CreatePipelineRun: %v", err)
	}
	for _, tr := range tasks {
		if err := e.store.CreateTaskRun(ctx, tr); err != nil {
			t.Fatalf("CreateTaskRun: %v", err)
		}
	}

	prepLabel := domain.TaskLabel(run.Label, "prep")
	trainLabel := domain.TaskLabel(run.Label, "train")

	if err := e.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	pollUntil(t, time.Second, func() bool { return workloadExists(fc, prepLabel) })
	fc.SetPhase(domain.Pod, "odin", prepLabel, cluster.PhaseSucceeded)
	pollUntil(t, time.Second, func() bool { return workloadExists(fc, trainLabel) })
	fc.SetPhase(domain.Pod, "odin", trainLabel, cluster.PhaseSucceeded)

	pollUntil(t, time.Second, func() bool {
		got, err := e.store.GetPipelineRun(ctx, run.Label)
		return err == nil && got.Status == domain.PipelineDone
	})
}

// TestExecutorResumeResubmitsBuildingTaskWithEmptyResourceID persists prep
// in BUILDING with no ResourceID, the state left behind by a crash before
// Handler.Submit ever reached the cluster (spec.md §4.6's restart edge
// case), and checks Resume submits it exactly once rather than stalling.
func TestExecutorResumeResubmitsBuildingTaskWithEmptyResourceID(t *testing.T) {
	e, fc := testExecutor(t)
	ctx := context.Background()

	inst := twoStepInstance("flow-buildnone")
	run, tasks := seedCrashedPipeline(t, e, inst, domain.TaskBuilding, "")
	prepLabel := domain.TaskLabel(run.Label, "prep")
	trainLabel := domain.TaskLabel(run.Label, "train")
	_ = tasks

	if err := e.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	pollUntil(t, time.Second, func() bool { return workloadExists(fc, prepLabel) })
	fc.SetPhase(domain.Pod, "odin", prepLabel, cluster.PhaseSucceeded)
	pollUntil(t, time.Second, func() bool { return workloadExists(fc, trainLabel) })
	fc.SetPhase(domain.Pod, "odin", trainLabel, cluster.PhaseSucceeded)

	pollUntil(t, time.Second, func() bool {
		got, err := e.store.GetPipelineRun(ctx, run.Label)
		return err == nil && got.Status == domain.PipelineDone
	})

	count := 0
	for _, name := range fc.CreateCalls {
		if name == prepLabel {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one Create call for %q, got %d", prepLabel, count)
	}
}

// TestExecutorResumeRebindsBuildingTaskWithResourceID persists prep in
// BUILDING with a ResourceID already set, the state left behind by a
// crash after the cluster accepted the submission but before the
// EXECUTING transition landed, and checks Resume rebinds to the existing
// resource instead of submitting a duplicate.
func TestExecutorResumeRebindsBuildingTaskWithResourceID(t *testing.T) {
	e, fc := testExecutor(t)
	ctx := context.Background()

	inst := twoStepInstance("flow-buildset")
	prepLabel := domain.TaskLabel(inst.Label, "prep")
	trainLabel := domain.TaskLabel(inst.Label, "train")

	if _, err := fc.Create(ctx, cluster.Spec{Kind: domain.Pod, Namespace: "odin", Name: prepLabel}); err != nil {
		t.Fatalf("seeding fake workload: %v", err)
	}
	preSeedCreateCalls := len(fc.CreateCalls)

	run, _ := seedCrashedPipeline(t, e, inst, domain.TaskBuilding, prepLabel)

	if err := e.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	pollUntil(t, time.Second, func() bool {
		got, err := e.store.GetTaskRun(ctx, prepLabel)
		return err == nil && got.Status == domain.TaskExecuting
	})
	if len(fc.CreateCalls) != preSeedCreateCalls {
		t.Fatalf("expected no additional Create calls on rebind, got %v", fc.CreateCalls)
	}

	fc.SetPhase(domain.Pod, "odin", prepLabel, cluster.PhaseSucceeded)
	pollUntil(t, time.Second, func() bool { return workloadExists(fc, trainLabel) })
	fc.SetPhase(domain.Pod, "odin", trainLabel, cluster.PhaseSucceeded)

	pollUntil(t, time.Second, func() bool {
		got, err := e.store.GetPipelineRun(ctx, run.Label)
		return err == nil && got.Status == domain.PipelineDone
	})
}

// seedCrashedPipeline persists a PipelineRun and its TaskRuns directly
// (bypassing Submit/Executor.start) with the named task's status and
// ResourceID forced to simulate a crash mid-submission, so Resume is the
// first thing to ever reconcile it.
func seedCrashedPipeline(t *testing.T, e *Executor, inst pipeline.Instance, crashedStatus domain.TaskStatus, crashedResourceID string) (domain.PipelineRun, []domain.TaskRun) {
	t.Helper()
	ctx := context.Background()

	labels := make([]string, len(inst.Tasks))
	tasks := make([]domain.TaskRun, len(inst.Tasks))
	for i, def := range inst.Tasks {
		tasks[i] = domain.NewTaskRun(inst.Label, def)
		labels[i] = tasks[i].Label
	}
	crashedLabel := domain.TaskLabel(inst.Label, inst.Tasks[0].Name)
	for i := range tasks {
		if tasks[i].Label == crashedLabel {
			tasks[i].Status = crashedStatus
			tasks[i].ResourceID = crashedResourceID
		}
	}

	run := domain.NewPipelineRun(inst.Label, "flow", labels)
	run.Status = domain.PipelineRunning
	run.Waiting = removeLabel(run.Waiting, crashedLabel)
	run.Executing = append(run.Executing, crashedLabel)

	if err := e.store.CreatePipelineRun(ctx, run); err != nil {
		t.Fatalf("CreatePipelineRun: %v", err)
	}
	for _, tr := range tasks {
		if err := e.store.CreateTaskRun(ctx, tr); err != nil {
			t.Fatalf("CreateTaskRun: %v", err)
		}
	}
	return run, tasks
}

// Package executor implements the reconciliation core of spec.md §4.6:
// one cooperative loop per PipelineRun that submits ready tasks, observes
// executing ones, cascades failures, and finalizes the run, grounded on
// original_source/odin/executor.py's Executor.run generator (translated
// from an async generator driving one pipeline at a time into one
// goroutine per PipelineRun built on pkg/loop, matching spec.md §5's
// "one reconciliation worker per PipelineRun").
package executor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Interactions-AI/odin/internal/cluster"
	"github.com/Interactions-AI/odin/internal/domain"
	odinerrors "github.com/Interactions-AI/odin/internal/domain/errors"
	"github.com/Interactions-AI/odin/internal/handler"
	"github.com/Interactions-AI/odin/internal/pipeline"
	"github.com/Interactions-AI/odin/internal/store"
	"github.com/Interactions-AI/odin/pkg/loop"
	"github.com/Interactions-AI/odin/pkg/retry"
)

// Config bounds the Executor's timing behavior (spec.md §5).
type Config struct {
	// PollInterval is how often a pipeline's reconciliation loop wakes
	// to submit newly-ready tasks and observe executing ones.
	PollInterval time.Duration
	// SubmitBackoffBase and SubmitMaxAttempts bound the Handler submit
	// retry (spec.md §7: "SubmitError ... retried bounded, then the
	// task is marked FAILED").
	SubmitBackoffBase time.Duration
	SubmitMaxAttempts int
}

// DefaultConfig returns reasonable defaults for local/dev use.
func DefaultConfig() Config {
	return Config{
		PollInterval:      2 * time.Second,
		SubmitBackoffBase: 500 * time.Millisecond,
		SubmitMaxAttempts: 5,
	}
}

// Executor drives every active PipelineRun's reconciliation loop.
type Executor struct {
	store    store.JobsStore
	handlers *handler.Registry
	cfg      Config

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	done    map[string]chan struct{}
}

// New builds an Executor over jobsStore and handlers.
func New(jobsStore store.JobsStore, handlers *handler.Registry, cfg Config) *Executor {
	return &Executor{
		store:    jobsStore,
		handlers: handlers,
		cfg:      cfg,
		cancels:  make(map[string]context.CancelFunc),
		done:     make(map[string]chan struct{}),
	}
}

// Submit persists inst as a new PipelineRun with every task WAITING and
// starts its reconciliation loop (spec.md §4.6 point 1).
func (e *Executor) Submit(ctx context.Context, inst pipeline.Instance, jobName string) (domain.PipelineRun, error) {
	labels := make([]string, len(inst.Tasks))
	tasks := make([]domain.TaskRun, len(inst.Tasks))
	for i, def := range inst.Tasks {
		tasks[i] = domain.NewTaskRun(inst.Label, def)
		labels[i] = tasks[i].Label
	}
	run := domain.NewPipelineRun(inst.Label, jobName, labels)

	if err := e.store.CreatePipelineRun(ctx, run); err != nil {
		return domain.PipelineRun{}, odinerrors.NewStoreErrorCausedBy("creating pipeline run "+run.Label, err)
	}
	for _, t := range tasks {
		if err := e.store.CreateTaskRun(ctx, t); err != nil {
			return domain.PipelineRun{}, odinerrors.NewStoreErrorCausedBy("creating task run "+t.Label, err)
		}
	}

	run.Status = domain.PipelineRunning
	if err := e.store.UpdatePipelineRun(ctx, run); err != nil {
		return domain.PipelineRun{}, odinerrors.NewStoreErrorCausedBy("marking pipeline run "+run.Label+" running", err)
	}

	st, err := newState(run, tasks)
	if err != nil {
		return domain.PipelineRun{}, odinerrors.NewValidationErrorCausedBy("building dependency graph for "+run.Label, err)
	}
	e.start(st)
	return run, nil
}

// Resume reloads every non-terminal PipelineRun on startup and restarts
// its reconciliation loop (spec.md §4.8: "the Executor on startup
// enumerates non-terminal PipelineRuns and resumes reconciliation").
func (e *Executor) Resume(ctx context.Context) error {
	runs, err := e.store.ListNonTerminalPipelineRuns(ctx)
	if err != nil {
		return odinerrors.NewStoreErrorCausedBy("listing non-terminal pipeline runs", err)
	}
	for _, run := range runs {
		tasks, err := e.store.ListTaskRunsByParent(ctx, run.Label)
		if err != nil {
			return odinerrors.NewStoreErrorCausedBy("listing task runs for "+run.Label, err)
		}
		st, err := newState(run, tasks)
		if err != nil {
			log.Error().Err(err).Str("pipeline", run.Label).Msg("failed to rebuild dependency graph on resume; leaving run unreconciled")
			continue
		}
		e.start(st)
	}
	return nil
}

// Cancel requests cooperative cancellation of the PipelineRun labeled
// label (spec.md §4.6 point 7, §5: "cooperative and idempotent").
// It returns once the running loop has observed the cancellation and
// finished cleanup, or immediately if no loop for label is active.
func (e *Executor) Cancel(label string) {
	e.mu.Lock()
	cancel, ok := e.cancels[label]
	done := e.done[label]
	e.mu.Unlock()
	if !ok {
		return
	}
	cancel()
	<-done
}

func (e *Executor) start(st state) {
	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan struct{})

	e.mu.Lock()
	e.cancels[st.run.Label] = cancel
	e.done[st.run.Label] = doneCh
	e.mu.Unlock()

	go func() {
		defer close(doneCh)
		defer func() {
			e.mu.Lock()
			delete(e.cancels, st.run.Label)
			delete(e.done, st.run.Label)
			e.mu.Unlock()
		}()

		_, err := loop.Start(context.Background(), st, e.tick(ctx))
		if err != nil {
			log.Error().Err(err).Str("pipeline", st.run.Label).Msg("pipeline reconciliation loop exited with error")
		}
	}()
}

// tick builds the per-iteration reconciliation step. cancelCtx is
// separate from the loop's own context.Background() base: the loop must
// keep running its store writes to completion even after a Cancel() call
// begins, so cancelCtx is polled explicitly rather than passed to
// loop.Start as the governing context.
func (e *Executor) tick(cancelCtx context.Context) loop.Task[state] {
	return func(ctx context.Context, st state) (state, loop.Next) {
		select {
		case <-cancelCtx.Done():
			st.cancel = true
		default:
		}

		if st.cancel {
			return e.reconcileCancellation(ctx, st)
		}

		// buildingLabels is non-empty right after Resume, for a task
		// persisted BUILDING by a process that crashed before reaching
		// EXECUTING (spec.md §4.6's restart edge case), and after a tick
		// whose store write left a task BUILDING.
		for _, label := range st.buildingLabels() {
			st = e.advanceBuilding(ctx, st, label)
		}
		for _, label := range st.readyLabels() {
			st = e.submitTask(ctx, st, label)
		}
		for _, label := range append([]string{}, st.run.Executing...) {
			st = e.observeTask(ctx, st, label)
		}

		if err := e.store.UpdatePipelineRun(ctx, st.run); err != nil {
			log.Error().Err(err).Str("pipeline", st.run.Label).Msg("failed to persist pipeline run; retrying next tick")
			return st, loop.Continue(e.cfg.PollInterval)
		}

		if st.settled() {
			st.run.Status = st.aggregateStatus()
			now := nowPtr()
			st.run.CompletionTime = now
			if err := e.store.UpdatePipelineRun(ctx, st.run); err != nil {
				log.Error().Err(err).Str("pipeline", st.run.Label).Msg("failed to persist final pipeline status")
				return st, loop.Continue(e.cfg.PollInterval)
			}
			return st, loop.Break(nil)
		}

		return st, loop.Continue(e.cfg.PollInterval)
	}
}

// persistTask overwrites the stored TaskRun for label with t, ignoring
// AtomicUpdateTaskRun's current argument. That's safe here only because
// a PipelineRun has exactly one reconciliation goroutine at a time, so t
// is always derived from state this same goroutine already holds; it is
// not a merge, and a second concurrent writer would race.
func (e *Executor) persistTask(ctx context.Context, label string, t domain.TaskRun) (domain.TaskRun, error) {
	return e.store.AtomicUpdateTaskRun(ctx, label, func(domain.TaskRun) (domain.TaskRun, error) { return t, nil })
}

func (e *Executor) submitTask(ctx context.Context, st state, label string) state {
	t := st.tasks[label]
	if err := t.Transition(domain.TaskBuilding); err != nil {
		log.Error().Err(err).Str("task", label).Msg("invalid transition to BUILDING")
		return st
	}
	t, err := e.persistTask(ctx, label, t)
	if err != nil {
		log.Error().Err(err).Str("task", label).Msg("failed to persist BUILDING transition")
		return st
	}
	st.tasks[label] = t
	st.moveBucket(label, domain.TaskBuilding)

	return e.advanceBuilding(ctx, st, label)
}

// advanceBuilding drives a BUILDING task to EXECUTING. If it has no
// ResourceID it has never been (successfully) submitted, so it is
// submitted now — the ordinary path, and also the path a task persisted
// BUILDING with an empty ResourceID takes after Resume, since a crash
// before the cluster ever accepted the resource leaves nothing to
// rebind to. If it already has a ResourceID, a prior submit reached the
// cluster before the process restarted mid-transition; spec.md §4.6's
// restart edge case applies and the Executor rebinds to the existing
// resource instead of submitting a duplicate.
func (e *Executor) advanceBuilding(ctx context.Context, st state, label string) state {
	t := st.tasks[label]
	if t.Status != domain.TaskBuilding {
		return st
	}

	h, err := e.handlers.Resolve(t.ResourceType)
	if err != nil {
		return e.failTask(ctx, st, label, err.Error())
	}

	if t.ResourceID == "" {
		resourceID, err := submitWithRetry(ctx, h, t, e.cfg)
		if err != nil {
			return e.failTask(ctx, st, label, err.Error())
		}
		t.ResourceID = resourceID
		t.SubmitTime = nowPtr()
		// Persist the resource id while still BUILDING, separately from
		// the EXECUTING transition below: a crash between the cluster
		// accepting the submission and this write is the only remaining
		// window where a resubmit-vs-rebind decision can't be made from
		// stored state, and narrowing it here is what makes the rebind
		// path above possible at all.
		persisted, err := e.persistTask(ctx, label, t)
		if err != nil {
			log.Error().Err(err).Str("task", label).Msg("failed to persist resource id")
			return st
		}
		t = persisted
		st.tasks[label] = t
	} else {
		log.Info().Str("task", label).Str("resource_id", t.ResourceID).Msg("rebinding to existing cluster resource after restart")
	}

	if err := t.Transition(domain.TaskExecuting); err != nil {
		return e.failTask(ctx, st, label, err.Error())
	}
	t, err = e.persistTask(ctx, label, t)
	if err != nil {
		log.Error().Err(err).Str("task", label).Msg("failed to persist EXECUTING transition")
		return st
	}
	st.tasks[label] = t
	st.moveBucket(label, domain.TaskExecuting)
	return st
}

// submitWithRetry calls h.Submit, retrying with bounded exponential
// backoff on failure (spec.md §7).
func submitWithRetry(ctx context.Context, h handler.Handler, t domain.TaskRun, cfg Config) (string, error) {
	backoff := retry.Bounded(retry.ExponentialBackoff(cfg.SubmitBackoffBase, 2), cfg.SubmitMaxAttempts)
	for {
		resourceID, err := h.Submit(ctx, t)
		if err == nil {
			return resourceID, nil
		}
		if backoffErr := backoff(ctx); backoffErr != nil {
			return "", err
		}
	}
}

func (e *Executor) observeTask(ctx context.Context, st state, label string) state {
	t := st.tasks[label]
	if t.Status != domain.TaskExecuting {
		return st
	}
	h, err := e.handlers.Resolve(t.ResourceType)
	if err != nil {
		return e.failTask(ctx, st, label, err.Error())
	}

	status, err := h.Status(ctx, t)
	if err != nil {
		log.Warn().Err(err).Str("task", label).Msg("transient error observing task; retrying next tick")
		return st
	}

	switch status {
	case domain.TaskExecuted:
		return e.completeTask(ctx, st, label)
	case domain.TaskFailed:
		return e.failTask(ctx, st, label, "task reported terminal failure")
	default:
		return st
	}
}

func (e *Executor) completeTask(ctx context.Context, st state, label string) state {
	t := st.tasks[label]
	if err := t.Transition(domain.TaskExecuted); err != nil {
		log.Error().Err(err).Str("task", label).Msg("invalid transition to EXECUTED")
		return st
	}
	t.CompletionTime = nowPtr()
	t, err := e.persistTask(ctx, label, t)
	if err != nil {
		log.Error().Err(err).Str("task", label).Msg("failed to persist EXECUTED transition")
		return st
	}
	st.tasks[label] = t
	st.moveBucket(label, domain.TaskExecuted)

	if t.RequestsEarlyExit {
		// SPEC_FULL.md §12.5: a task may request the pipeline complete
		// as soon as it finishes, rather than waiting on its siblings.
		log.Info().Str("task", label).Msg("task requested early exit; terminating remaining waiting tasks")
		for _, waitingLabel := range append([]string{}, st.run.Waiting...) {
			st = e.terminateTask(ctx, st, waitingLabel)
		}
	}
	return st
}

func (e *Executor) failTask(ctx context.Context, st state, label, message string) state {
	t := st.tasks[label]
	if !t.Status.Terminal() {
		if err := t.Transition(domain.TaskFailed); err == nil {
			t.CompletionTime = nowPtr()
			if updated, err := e.persistTask(ctx, label, t); err == nil {
				t = updated
			} else {
				log.Error().Err(err).Str("task", label).Msg("failed to persist FAILED transition")
			}
			st.tasks[label] = t
			st.moveBucket(label, domain.TaskFailed)
		}
	}
	errMsg := message
	st.run.ErrorMessage = &errMsg

	for _, descendant := range st.cascadeTerminated(label) {
		st = e.terminateTask(ctx, st, descendant)
	}
	return st
}

func (e *Executor) terminateTask(ctx context.Context, st state, label string) state {
	t := st.tasks[label]
	if t.Status.Terminal() {
		return st
	}
	if err := t.Transition(domain.TaskTerminated); err != nil {
		log.Error().Err(err).Str("task", label).Msg("invalid transition to TERMINATED")
		return st
	}
	t, err := e.persistTask(ctx, label, t)
	if err != nil {
		log.Error().Err(err).Str("task", label).Msg("failed to persist TERMINATED transition")
		return st
	}
	st.tasks[label] = t
	st.moveBucket(label, domain.TaskTerminated)
	return st
}

// reconcileCancellation implements spec.md §4.6 point 7: delete every
// EXECUTING task's cluster resource, mark every non-terminal task
// TERMINATED, and finalize the run. Cleanup is best-effort (spec.md §5:
// "a partial failure to delete a cluster resource is recorded but does
// not prevent marking TERMINATED").
func (e *Executor) reconcileCancellation(ctx context.Context, st state) (state, loop.Next) {
	for _, label := range append([]string{}, st.run.Executing...) {
		t := st.tasks[label]
		if h, err := e.handlers.Resolve(t.ResourceType); err == nil {
			if err := h.Delete(ctx, t, cluster.DeleteWorkloadAndPods); err != nil {
				log.Warn().Err(err).Str("task", label).Msg("best-effort cleanup delete failed")
			}
		}
		st = e.terminateTask(ctx, st, label)
	}
	for _, label := range append([]string{}, st.run.Waiting...) {
		st = e.terminateTask(ctx, st, label)
	}

	st.run.Status = domain.PipelineTerminated
	st.run.CompletionTime = nowPtr()
	if err := e.store.UpdatePipelineRun(ctx, st.run); err != nil {
		log.Error().Err(err).Str("pipeline", st.run.Label).Msg("failed to persist TERMINATED pipeline status")
		return st, loop.Continue(e.cfg.PollInterval)
	}
	return st, loop.Break(nil)
}

func nowPtr() *time.Time {
	t := time.Now()
	return &t
}

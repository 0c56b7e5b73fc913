package executor

import (
	"github.com/Interactions-AI/odin/internal/dag"
	"github.com/Interactions-AI/odin/internal/domain"
)

// state is the in-memory working set for one PipelineRun's reconciliation
// loop: the run record, its TaskRuns keyed by label, and the pipeline's
// DAG (spec.md §5's "in-memory state ... reconstructed from the store on
// restart"; SPEC_FULL.md §9's "index-based adjacency mapping ...
// topological progression a counter-decrement operation"). The graph is
// rebuilt from the TaskRuns' own declared dependencies rather than
// threaded in from pipeline.Instance, so Submit and Resume construct
// identical state by the same path.
type state struct {
	run    domain.PipelineRun
	tasks  map[string]domain.TaskRun // keyed by TaskRun.Label
	graph  *dag.Graph
	labels []string      // graph node index -> TaskRun.Label, declaration order
	index  map[string]int // TaskRun.Label -> graph node index
	// remaining[i] counts node i's dependencies not yet EXECUTED. A node
	// enters the ready set when this reaches zero (SPEC_FULL.md §9).
	remaining []int
	cancel    bool
}

// newState rebuilds a pipeline's DAG from its TaskRuns' declared
// dependencies and seeds remaining from each task's current status, so a
// pipeline resumed after a restart does not re-wait on work already
// EXECUTED by the prior process.
func newState(run domain.PipelineRun, tasks []domain.TaskRun) (state, error) {
	byLabel := make(map[string]domain.TaskRun, len(tasks))
	for _, t := range tasks {
		byLabel[t.Label] = t
	}

	defs := make([]domain.TaskDefinition, len(run.Tasks))
	labels := make([]string, len(run.Tasks))
	for i, label := range run.Tasks {
		t := byLabel[label]
		defs[i] = domain.TaskDefinition{Name: t.Name, Depends: t.Depends}
		labels[i] = label
	}

	graph, err := dag.Build(defs)
	if err != nil {
		return state{}, err
	}

	index := make(map[string]int, len(labels))
	for i, label := range labels {
		index[label] = i
	}

	remaining := make([]int, len(graph.Nodes))
	for i, n := range graph.Nodes {
		remaining[i] = n.Predecessors
	}
	for i, label := range labels {
		if byLabel[label].Status != domain.TaskExecuted {
			continue
		}
		for _, succ := range graph.Successors(i) {
			if remaining[succ] > 0 {
				remaining[succ]--
			}
		}
	}

	return state{
		run:       run,
		tasks:     byLabel,
		graph:     graph,
		labels:    labels,
		index:     index,
		remaining: remaining,
	}, nil
}

// readyLabels returns, in declaration order, the labels of WAITING tasks
// with no outstanding dependency (spec.md §4.6 point 2).
func (s *state) readyLabels() []string {
	var ready []string
	for i, label := range s.labels {
		t, ok := s.tasks[label]
		if !ok || t.Status != domain.TaskWaiting {
			continue
		}
		if s.remaining[i] == 0 {
			ready = append(ready, label)
		}
	}
	return ready
}

// buildingLabels returns, in declaration order, the labels of BUILDING
// tasks. Normally empty mid-tick (submitTask advances a task through
// BUILDING to EXECUTING within the same call), it is populated right
// after Resume when a task was persisted BUILDING by a process that
// crashed mid-submission (spec.md §4.6's restart edge case).
func (s *state) buildingLabels() []string {
	var building []string
	for _, label := range s.labels {
		if t, ok := s.tasks[label]; ok && t.Status == domain.TaskBuilding {
			building = append(building, label)
		}
	}
	return building
}

// markExecuted decrements the remaining count of every direct dependent
// of label, the counter-decrement step of SPEC_FULL.md §9's topological
// progression.
func (s *state) markExecuted(label string) {
	idx, ok := s.index[label]
	if !ok {
		return
	}
	for _, succ := range s.graph.Successors(idx) {
		if s.remaining[succ] > 0 {
			s.remaining[succ]--
		}
	}
}

// cascadeTerminated returns every non-terminal task transitively
// depending on failedLabel, in declaration order (spec.md §4.6 point 5:
// tasks that transitively depend on a FAILED task are TERMINATED and
// never submitted).
func (s *state) cascadeTerminated(failedLabel string) []string {
	idx, ok := s.index[failedLabel]
	if !ok {
		return nil
	}
	var out []string
	for _, di := range s.graph.Descendants(idx) {
		label := s.labels[di]
		if t, ok := s.tasks[label]; ok && !t.Status.Terminal() {
			out = append(out, label)
		}
	}
	return out
}

// moveBucket removes label from every status bucket then appends it to
// the bucket named by status.
func (s *state) moveBucket(label string, status domain.TaskStatus) {
	s.run.Waiting = removeLabel(s.run.Waiting, label)
	s.run.Executing = removeLabel(s.run.Executing, label)
	s.run.Executed = removeLabel(s.run.Executed, label)
	s.run.Errored = removeLabel(s.run.Errored, label)
	s.run.Terminated = removeLabel(s.run.Terminated, label)

	switch status {
	case domain.TaskWaiting:
		s.run.Waiting = append(s.run.Waiting, label)
	case domain.TaskBuilding, domain.TaskExecuting:
		s.run.Executing = append(s.run.Executing, label)
	case domain.TaskExecuted:
		s.run.Executed = append(s.run.Executed, label)
	case domain.TaskFailed:
		s.run.Errored = append(s.run.Errored, label)
	case domain.TaskTerminated:
		s.run.Terminated = append(s.run.Terminated, label)
	}

	if status == domain.TaskExecuted {
		s.markExecuted(label)
	}
}

func removeLabel(labels []string, target string) []string {
	out := labels[:0:0]
	for _, l := range labels {
		if l != target {
			out = append(out, l)
		}
	}
	return out
}

// settled reports whether no task remains WAITING or EXECUTING (spec.md
// §4.6 point 6: complete the PipelineRun when this holds).
func (s *state) settled() bool {
	return len(s.run.Waiting) == 0 && len(s.run.Executing) == 0
}

// aggregateStatus computes the terminal PipelineStatus once settled(),
// per I4.
func (s *state) aggregateStatus() domain.PipelineStatus {
	if s.cancel {
		return domain.PipelineTerminated
	}
	if len(s.run.Errored) > 0 {
		return domain.PipelineFailed
	}
	return domain.PipelineDone
}

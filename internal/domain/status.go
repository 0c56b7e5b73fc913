package domain

// PipelineStatus is the terminal/non-terminal status of a PipelineRun
// (spec.md §3, I4).
type PipelineStatus string

const (
	PipelineSubmitted  PipelineStatus = "SUBMITTED"
	PipelineRunning    PipelineStatus = "RUNNING"
	PipelineDone       PipelineStatus = "DONE"
	PipelineTerminated PipelineStatus = "TERMINATED"
	PipelineFailed     PipelineStatus = "FAILED"
)

// Terminal reports whether no further reconciliation is possible.
func (s PipelineStatus) Terminal() bool {
	switch s {
	case PipelineDone, PipelineTerminated, PipelineFailed:
		return true
	default:
		return false
	}
}

// TaskStatus is the status of one TaskRun (spec.md §3, §4.6 state machine).
type TaskStatus string

const (
	TaskWaiting    TaskStatus = "WAITING"
	TaskBuilding   TaskStatus = "BUILDING"
	TaskExecuting  TaskStatus = "EXECUTING"
	TaskExecuted   TaskStatus = "EXECUTED"
	TaskFailed     TaskStatus = "FAILED"
	TaskTerminated TaskStatus = "TERMINATED"
)

// Terminal reports whether the TaskRun can no longer transition (I5).
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskExecuted, TaskFailed, TaskTerminated:
		return true
	default:
		return false
	}
}

// validTaskTransitions enumerates the state machine of §4.6. A transition
// not listed here is rejected by TaskRun.Transition.
var validTaskTransitions = map[TaskStatus]map[TaskStatus]bool{
	TaskWaiting: {
		TaskBuilding:   true,
		TaskTerminated: true,
	},
	TaskBuilding: {
		TaskExecuting:  true,
		TaskFailed:     true,
		TaskTerminated: true,
	},
	TaskExecuting: {
		TaskExecuted:   true,
		TaskFailed:     true,
		TaskTerminated: true,
	},
}

// CanTransition reports whether moving from `from` to `to` is legal under
// the TaskRun state machine.
func CanTransition(from, to TaskStatus) bool {
	return validTaskTransitions[from][to]
}

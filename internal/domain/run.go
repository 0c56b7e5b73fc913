package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LabelSeparator joins a PipelineRun label and a task name into a TaskRun
// label (spec.md I2).
const LabelSeparator = "--"

// NewPipelineLabel generates a globally unique PipelineRun label of the
// form "<pipeline>-<12 lowercase hex chars>" (SPEC_FULL.md §12.1), e.g.
// "flow-3f9a0c12ab4e", satisfying the S1 regex flow-[a-z0-9]+ for a
// pipeline literally named "flow".
func NewPipelineLabel(pipelineName string) string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("%s-%s", pipelineName, id[:12])
}

// TaskLabel builds a TaskRun label from its parent label and task name (I2).
func TaskLabel(parentLabel, taskName string) string {
	return parentLabel + LabelSeparator + taskName
}

// PipelineRun is created when a pipeline is launched (spec.md §3).
type PipelineRun struct {
	Label          string
	Job            string
	Version        *string
	Parent         *string
	Waiting        []string
	Executing      []string
	Executed       []string
	Errored        []string
	Terminated     []string
	Status         PipelineStatus
	SubmitTime     time.Time
	CompletionTime *time.Time
	ErrorMessage   *string
	Tasks          []string
}

// NewPipelineRun builds a freshly-SUBMITTED PipelineRun for jobName with
// every task in taskLabels WAITING (spec.md §3, §4.6 point 1).
func NewPipelineRun(label, jobName string, taskLabels []string) PipelineRun {
	waiting := make([]string, len(taskLabels))
	copy(waiting, taskLabels)
	return PipelineRun{
		Label:      label,
		Job:        jobName,
		Waiting:    waiting,
		Status:     PipelineSubmitted,
		SubmitTime: time.Now(),
		Tasks:      taskLabels,
	}
}

// AllAccountedFor checks the §8 partition invariant: every TaskRun
// belongs to exactly one of the disjoint status buckets.
func (p *PipelineRun) AllAccountedFor() bool {
	seen := make(map[string]int, len(p.Tasks))
	for _, l := range p.Waiting {
		seen[l]++
	}
	for _, l := range p.Executing {
		seen[l]++
	}
	for _, l := range p.Executed {
		seen[l]++
	}
	for _, l := range p.Errored {
		seen[l]++
	}
	for _, l := range p.Terminated {
		seen[l]++
	}
	if len(seen) != len(p.Tasks) {
		return false
	}
	for _, l := range p.Tasks {
		if seen[l] != 1 {
			return false
		}
	}
	return true
}

// RunExit carries the terminal exit information of a TaskRun's container.
type RunExit struct {
	Code    int32
	Message string
}

// TaskRun is created with its parent PipelineRun (spec.md §3).
type TaskRun struct {
	Label        string
	Parent       string
	Name         string
	Command      []string
	Args         []string
	Image        string
	ResourceType ResourceKind
	ResourceID   string
	NodeSelector map[string]string
	PullPolicy   string
	NumGPUs      int
	NumWorkers   int
	Mounts       []Mount
	Secrets      []Secret
	ConfigMaps   []ConfigMap
	Depends      DependsList
	Status       TaskStatus
	SubmitTime   *time.Time
	CompletionTime *time.Time
	UpdatedAt    time.Time
	Exit         *RunExit
	RequestsEarlyExit bool
}

// NewTaskRun builds a WAITING TaskRun stub for def as a child of the
// PipelineRun labeled parentLabel (spec.md §3: "created as WAITING").
func NewTaskRun(parentLabel string, def TaskDefinition) TaskRun {
	return TaskRun{
		Label:             TaskLabel(parentLabel, def.Name),
		Parent:            parentLabel,
		Name:              def.Name,
		Command:           def.Command,
		Args:              def.Args,
		Image:             def.Image,
		ResourceType:      def.ResourceKindOrDefault(),
		NodeSelector:      def.NodeSelector,
		PullPolicy:        def.PullPolicyOrDefault(),
		NumGPUs:           def.NumGPUs,
		NumWorkers:        def.NumWorkers,
		Mounts:            def.Mounts,
		Secrets:           def.Secrets,
		ConfigMaps:        def.ConfigMaps,
		Depends:           def.Depends,
		Status:            TaskWaiting,
		UpdatedAt:         time.Now(),
		RequestsEarlyExit: def.RequestsEarlyExit,
	}
}

// Transition moves the TaskRun to `to`, returning an error if the
// transition is not legal under the §4.6 state machine (I5).
func (t *TaskRun) Transition(to TaskStatus) error {
	if t.Status == to {
		return nil
	}
	if !CanTransition(t.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTaskTransition, t.Status, to)
	}
	t.Status = to
	t.UpdatedAt = time.Now()
	return nil
}

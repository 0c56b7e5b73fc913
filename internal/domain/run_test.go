package domain

import (
	"regexp"
	"testing"
)

func TestNewPipelineLabelMatchesFlowRegex(t *testing.T) {
	label := NewPipelineLabel("flow")
	if !regexp.MustCompile(`^flow-[a-z0-9]+$`).MatchString(label) {
		t.Fatalf("label %q does not match flow-[a-z0-9]+", label)
	}
}

func TestTaskLabelUsesSeparator(t *testing.T) {
	got := TaskLabel("flow-xyz", "train")
	if got != "flow-xyz--train" {
		t.Fatalf("TaskLabel() = %q, want flow-xyz--train", got)
	}
}

func TestAllAccountedForRequiresDisjointPartition(t *testing.T) {
	run := PipelineRun{
		Tasks:     []string{"a", "b", "c"},
		Waiting:   []string{"a"},
		Executing: []string{"b"},
		Executed:  []string{"c"},
	}
	if !run.AllAccountedFor() {
		t.Fatal("expected a fully partitioned run to be accounted for")
	}

	run.Executed = append(run.Executed, "a") // now a appears twice
	if run.AllAccountedFor() {
		t.Fatal("expected a doubly-counted label to fail AllAccountedFor")
	}

	missing := PipelineRun{
		Tasks:   []string{"a", "b"},
		Waiting: []string{"a"},
	}
	if missing.AllAccountedFor() {
		t.Fatal("expected a missing label to fail AllAccountedFor")
	}
}

func TestTaskRunTransitionEnforcesStateMachine(t *testing.T) {
	tr := NewTaskRun("flow-xyz", TaskDefinition{Name: "train"})
	if tr.Status != TaskWaiting {
		t.Fatalf("new TaskRun status = %s, want WAITING", tr.Status)
	}

	if err := tr.Transition(TaskExecuting); err == nil {
		t.Fatal("expected WAITING -> EXECUTING to be rejected")
	}

	if err := tr.Transition(TaskBuilding); err != nil {
		t.Fatalf("WAITING -> BUILDING: %v", err)
	}
	if err := tr.Transition(TaskExecuting); err != nil {
		t.Fatalf("BUILDING -> EXECUTING: %v", err)
	}
	if err := tr.Transition(TaskExecuted); err != nil {
		t.Fatalf("EXECUTING -> EXECUTED: %v", err)
	}
	if err := tr.Transition(TaskWaiting); err == nil {
		t.Fatal("expected a transition out of a terminal state to be rejected")
	}
}

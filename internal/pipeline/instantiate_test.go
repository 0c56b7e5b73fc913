package pipeline

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/Interactions-AI/odin/internal/domain"
)

func TestInstantiateExpandsTasksAndCreatesRunPath(t *testing.T) {
	dataRoot := t.TempDir()
	def := domain.PipelineDefinition{
		Name: "flow",
		Tasks: []domain.TaskDefinition{
			{Name: "train", Image: "img", Args: []string{"--basedir", "${RUN_PATH}/${TASK_ID}"}},
		},
	}

	inst, err := Instantiate("/pipelines", "/pipelines/flow", dataRoot, def)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}

	if !regexp.MustCompile(`^flow-[a-z0-9]+$`).MatchString(inst.Label) {
		t.Fatalf("label %q does not match flow-[a-z0-9]+ (S1)", inst.Label)
	}

	wantRunPath := filepath.Join(dataRoot, inst.Label)
	if inst.RunPath != wantRunPath {
		t.Fatalf("RunPath = %q, want %q", inst.RunPath, wantRunPath)
	}
	if info, err := os.Stat(inst.RunPath); err != nil || !info.IsDir() {
		t.Fatalf("RunPath %q was not created as a directory", inst.RunPath)
	}
	taskDir := filepath.Join(inst.RunPath, "train")
	if info, err := os.Stat(taskDir); err != nil || !info.IsDir() {
		t.Fatalf("per-task directory %q was not created", taskDir)
	}

	wantArg := wantRunPath + "/" + inst.Label + "--train"
	if inst.Tasks[0].Args[1] != wantArg {
		t.Fatalf("expanded arg = %q, want %q", inst.Tasks[0].Args[1], wantArg)
	}

}

func TestInstantiateRejectsCycles(t *testing.T) {
	def := domain.PipelineDefinition{
		Name: "cyclic",
		Tasks: []domain.TaskDefinition{
			{Name: "a", Depends: domain.DependsList{"b"}},
			{Name: "b", Depends: domain.DependsList{"a"}},
		},
	}

	_, err := Instantiate("/pipelines", "/pipelines/cyclic", t.TempDir(), def)
	if err == nil {
		t.Fatal("expected Instantiate to reject a cyclic pipeline")
	}
}

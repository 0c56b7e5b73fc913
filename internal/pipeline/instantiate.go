package pipeline

import (
	"os"
	"path/filepath"

	"github.com/Interactions-AI/odin/internal/dag"
	"github.com/Interactions-AI/odin/internal/domain"
	"github.com/Interactions-AI/odin/internal/template"
)

// Instance is the result of instantiating a PipelineDefinition into one
// concrete run: a generated label, its data directory, and the fully
// template-expanded task list (in declaration order).
type Instance struct {
	Label   string
	RunPath string
	Tasks   []domain.TaskDefinition
}

// Instantiate expands def into one run under dataPath, following
// original_source/odin/core.py's read_pipeline_config: it generates a
// pipeline label, computes a per-run RUN_PATH, creates a per-task
// subdirectory under it (SPEC_FULL.md §12.2), and expands every task's
// template variables. The DAG itself is validated here (fail fast,
// before anything is persisted) but not kept: the Executor rebuilds it
// from the persisted TaskRuns' own Depends so a resumed pipeline and a
// freshly submitted one construct identical reconciliation state.
func Instantiate(rootPath, workPath, dataPath string, def domain.PipelineDefinition) (Instance, error) {
	label := domain.NewPipelineLabel(def.Name)
	runPath := filepath.Join(dataPath, label)

	if err := os.MkdirAll(runPath, 0o755); err != nil {
		return Instance{}, err
	}

	expanded := make([]domain.TaskDefinition, len(def.Tasks))
	for i, t := range def.Tasks {
		taskLabel := domain.TaskLabel(label, t.Name)

		taskDir := filepath.Join(runPath, t.Name)
		if err := os.MkdirAll(taskDir, 0o755); err != nil {
			return Instance{}, err
		}

		vars := template.Variables{
			RootPath: rootPath,
			WorkPath: workPath,
			RunPath:  runPath,
			TaskID:   taskLabel,
			TaskName: t.Name,
			PipeID:   label,
		}
		expanded[i] = template.ApplyTask(vars, t)
	}

	if _, err := dag.Build(expanded); err != nil {
		return Instance{}, err
	}

	return Instance{Label: label, RunPath: runPath, Tasks: expanded}, nil
}

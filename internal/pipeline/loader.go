// Package pipeline loads pipeline descriptors from the pipelines root
// (spec.md §6) and instantiates a PipelineRun from them, grounded on
// original_source/odin/core.py's read_pipeline_config and
// validate_pipeline_name.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/Interactions-AI/odin/internal/domain"
	odinerrors "github.com/Interactions-AI/odin/internal/domain/errors"
)

// nameRE mirrors odin/core.py's K8S_NAME: lower alphanumeric, `-`, `.`,
// so a pipeline name is always usable as a Kubernetes-safe label
// component once combined with a generated suffix (SPEC_FULL.md §12.3).
var nameRE = regexp.MustCompile(`^[a-z0-9.-]+$`)

// mainDescriptorNames are the entry-descriptor filenames tried, in
// order, under <root>/<pipeline>/ (spec.md §6: "main.<ext>").
var mainDescriptorNames = []string{"main.yml", "main.yaml"}

// ValidateName reports whether name is a legal pipeline name.
func ValidateName(name string) bool {
	return nameRE.MatchString(name)
}

// Load reads and validates the pipeline named name from root, returning
// its PipelineDefinition. root/<name>/main.yml (or main.yaml) is parsed
// with anchor/alias support (spec.md §6).
func Load(root, name string) (domain.PipelineDefinition, error) {
	var def domain.PipelineDefinition

	path, err := findDescriptor(root, name)
	if err != nil {
		return def, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return def, odinerrors.NewValidationErrorCausedBy(
			fmt.Sprintf("reading pipeline descriptor %s", path), err)
	}

	if err := yaml.Unmarshal(raw, &def); err != nil {
		return def, odinerrors.NewValidationErrorCausedBy(
			fmt.Sprintf("parsing pipeline descriptor %s", path), err)
	}

	if def.Name == "" {
		def.Name = name
	}
	if !ValidateName(def.Name) {
		return def, odinerrors.NewValidationError(
			fmt.Sprintf("pipeline name must match %s, got %q", nameRE.String(), def.Name))
	}

	seen := make(map[string]bool, len(def.Tasks))
	for _, t := range def.Tasks {
		if seen[t.Name] {
			return def, odinerrors.NewValidationError(
				fmt.Sprintf("task names must be unique, found %q twice", t.Name))
		}
		seen[t.Name] = true
	}

	return def, nil
}

func findDescriptor(root, name string) (string, error) {
	dir := filepath.Join(root, name)
	for _, candidate := range mainDescriptorNames {
		path := filepath.Join(dir, candidate)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", odinerrors.NewValidationError(
		fmt.Sprintf("no pipeline descriptor found under %s (tried %v)", dir, mainDescriptorNames))
}

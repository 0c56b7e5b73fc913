// Package domain holds the data model shared by every layer of the
// scheduler: pipeline descriptors as read from disk, and the run-time
// records (PipelineRun, TaskRun) that track one execution of them.
package domain

import "gopkg.in/yaml.v3"

// ResourceKind is the tag selecting a Handler (§4.4/§4.5).
type ResourceKind string

const (
	Pod          ResourceKind = "POD"
	BatchJob     ResourceKind = "BATCH_JOB"
	TFJob        ResourceKind = "TF_JOB"
	PyTorchJob   ResourceKind = "PYTORCH_JOB"
	ElasticJob   ResourceKind = "ELASTIC_JOB"
	MPIJob       ResourceKind = "MPI_JOB"
)

// DefaultResourceKind is used when a TaskDefinition omits resource_type.
const DefaultResourceKind = Pod

// Mount is one volume mount declared on a task.
type Mount struct {
	Claim string `yaml:"claim"`
	Name  string `yaml:"name"`
	Path  string `yaml:"path"`
}

// Secret is a secret to be mounted into the task's container.
type Secret struct {
	Name    string `yaml:"name"`
	Path    string `yaml:"path"`
	SubPath string `yaml:"sub_path"`
}

// ConfigMap is a config-map to be mounted into the task's container.
type ConfigMap struct {
	Name    string `yaml:"name"`
	Path    string `yaml:"path"`
	SubPath string `yaml:"sub_path"`
}

// DependsList holds the names a task depends on. The descriptor format
// accepts either a single scalar name or a sequence of names (mirroring
// original_source/odin/core.py's use of `listify` on the `depends` key),
// normalized here to a slice.
type DependsList []string

// UnmarshalYAML accepts either a scalar string or a sequence of strings.
func (d *DependsList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		if s == "" {
			*d = nil
			return nil
		}
		*d = DependsList{s}
		return nil
	case yaml.SequenceNode:
		var ss []string
		if err := node.Decode(&ss); err != nil {
			return err
		}
		*d = DependsList(ss)
		return nil
	default:
		*d = nil
		return nil
	}
}

// TaskDefinition is the declarative description of one task within a
// pipeline, as read from the descriptor file (spec.md §3, §6).
type TaskDefinition struct {
	Name             string            `yaml:"name"`
	Image            string            `yaml:"image"`
	Command          []string          `yaml:"command"`
	Args             []string          `yaml:"args"`
	Mounts           []Mount           `yaml:"mounts"`
	Secrets          []Secret          `yaml:"secrets,omitempty"`
	ConfigMaps       []ConfigMap       `yaml:"config_maps,omitempty"`
	ResourceType     ResourceKind      `yaml:"resource_type,omitempty"`
	NodeSelector     map[string]string `yaml:"node_selector,omitempty"`
	PullPolicy       string            `yaml:"pull_policy,omitempty"`
	NumGPUs          int               `yaml:"num_gpus,omitempty"`
	NumWorkers       int               `yaml:"num_workers,omitempty"`
	Inputs           []string          `yaml:"inputs,omitempty"`
	Outputs          []string          `yaml:"outputs,omitempty"`
	Depends          DependsList       `yaml:"depends,omitempty"`
	RequestsEarlyExit bool             `yaml:"requests_early_exit,omitempty"`
}

// ResourceKindOrDefault returns ResourceType, defaulting to POD (spec.md §3).
func (t TaskDefinition) ResourceKindOrDefault() ResourceKind {
	if t.ResourceType == "" {
		return DefaultResourceKind
	}
	return t.ResourceType
}

// PullPolicyOrDefault returns PullPolicy, defaulting to IfNotPresent,
// matching the original scheduler's Task default (original_source's
// odin/k8s.py Task.__init__).
func (t TaskDefinition) PullPolicyOrDefault() string {
	if t.PullPolicy == "" {
		return "IfNotPresent"
	}
	return t.PullPolicy
}

// PipelineDefinition is a named, ordered set of TaskDefinitions read from
// a pipeline directory (spec.md §3, §6). Immutable once loaded for a run.
type PipelineDefinition struct {
	Name   string           `yaml:"name"`
	Tasks  []TaskDefinition `yaml:"tasks"`
	Anchor map[string]any   `yaml:"-"`
}

// Package cluster defines the narrow Cluster Client contract (spec.md
// §4.3): the only component that speaks the cluster's native protocol.
// Handlers are built against this interface and never reach for a
// concrete cluster SDK directly, mirroring the K8sClient/Cluster split
// in opst-knitfab/pkg/workloads/k8s/k8s.go.
package cluster

import (
	"context"
	"io"
	"time"

	"github.com/Interactions-AI/odin/internal/domain"
)

// Phase is the cluster-native progress of a workload, before a Handler
// maps it into the uniform TaskStatus vocabulary (spec.md §4.4 table).
type Phase string

const (
	PhasePending   Phase = "PENDING"
	PhaseRunning   Phase = "RUNNING"
	PhaseSucceeded Phase = "SUCCEEDED"
	PhaseFailed    Phase = "FAILED"
)

// Event is one observed cluster event against a workload (spec.md §4.4,
// used by S6's BackOff/Failed sequence).
type Event struct {
	Reason  string
	Message string
	Time    time.Time
}

// ExitStatus carries a terminated workload's exit information.
type ExitStatus struct {
	Code    int32
	Reason  string
	Present bool
}

// Workload is a live handle on a submitted cluster resource: a snapshot
// of its phase plus the operations a Handler needs to finish observing
// it (spec.md §4.4: status/events/logs/delete).
type Workload interface {
	ID() string
	Phase() Phase
	ExitStatus() ExitStatus
	ImagePullBackOffSince() (time.Time, bool)
}

// DeleteMode chooses whether a workload's backing pods survive deletion
// (spec.md §4.4 `delete(TaskRun, mode)`).
type DeleteMode int

const (
	// DeleteWorkloadAndPods removes the workload and any backing pods.
	DeleteWorkloadAndPods DeleteMode = iota
	// DeleteWorkloadOnly leaves backing pods running (used for
	// best-effort cleanup where pod logs must still be readable).
	DeleteWorkloadOnly
)

// Spec is the structured description a Handler hands to Create; each
// Handler shapes it for the specific resource kind it owns (spec.md
// §4.4: "Each Handler owns the shape of the submitted spec").
type Spec struct {
	Kind         domain.ResourceKind
	Namespace    string
	Name         string
	Image        string
	Command      []string
	Args         []string
	Mounts       []domain.Mount
	Secrets      []domain.Secret
	ConfigMaps   []domain.ConfigMap
	NodeSelector map[string]string
	PullPolicy   string
	NumGPUs      int
	NumWorkers   int
}

// Node describes one cluster node's allocatable resources (spec.md §4.3
// "list nodes and their allocatable resources").
type Node struct {
	Name        string
	Allocatable map[string]string
}

// Client is the typed, narrow wrapper over the cluster's control-plane
// API (spec.md §4.3). Each call runs under the ctx it is given;
// implementations set no deadline of their own, and the configured
// default deadline (config.ClusterConfig.DefaultDeadline) is not applied.
type Client interface {
	Create(ctx context.Context, spec Spec) (Workload, error)
	Get(ctx context.Context, kind domain.ResourceKind, namespace, name string) (Workload, error)
	Events(ctx context.Context, kind domain.ResourceKind, namespace, name string) ([]Event, error)
	Logs(ctx context.Context, kind domain.ResourceKind, namespace, name string) (io.ReadCloser, error)
	Delete(ctx context.Context, kind domain.ResourceKind, namespace, name string, mode DeleteMode) error
	ListNodes(ctx context.Context) ([]Node, error)
}

// Package handler implements the per-resource-kind submit/observe/
// delete logic of spec.md §4.4 on top of the Cluster Client, and the
// Handler Registry of §4.5. Grounded on original_source/odin/k8s.py's
// Task/TaskManager split (a uniform task shape submitted through a
// per-kind manager) and opst-knitfab's worker.Worker abstraction
// (submit once, then poll status/logs through the same handle).
package handler

import (
	"context"
	"io"
	"time"

	"github.com/Interactions-AI/odin/internal/cluster"
	"github.com/Interactions-AI/odin/internal/domain"
	odinerrors "github.com/Interactions-AI/odin/internal/domain/errors"
)

// Handler is the capability set every resource kind implements (spec.md
// §4.4): submit, observe status, read events/logs, and delete.
type Handler interface {
	Submit(ctx context.Context, task domain.TaskRun) (resourceID string, err error)
	Status(ctx context.Context, task domain.TaskRun) (domain.TaskStatus, error)
	Events(ctx context.Context, task domain.TaskRun) ([]cluster.Event, error)
	Logs(ctx context.Context, task domain.TaskRun) (io.ReadCloser, error)
	Delete(ctx context.Context, task domain.TaskRun, mode cluster.DeleteMode) error
}

// handler is the shared implementation behind every resource kind: the
// kind only changes which fields of cluster.Spec matter and how the
// Cluster Client shapes the native object, not the submit/observe/
// delete control flow itself.
type handler struct {
	kind                     domain.ResourceKind
	client                   cluster.Client
	namespace                string
	imagePullBackOffDeadline time.Duration
}

var _ Handler = (*handler)(nil)

// Submit asks the Cluster Client to create the workload for task,
// returning its resource_id (spec.md §6: "resource_id equals the
// TaskRun label by construction").
func (h *handler) Submit(ctx context.Context, task domain.TaskRun) (string, error) {
	spec := cluster.Spec{
		Kind:         h.kind,
		Namespace:    h.namespace,
		Name:         task.Label,
		Image:        task.Image,
		Command:      task.Command,
		Args:         task.Args,
		Mounts:       task.Mounts,
		Secrets:      task.Secrets,
		ConfigMaps:   task.ConfigMaps,
		NodeSelector: task.NodeSelector,
		PullPolicy:   task.PullPolicy,
		NumGPUs:      task.NumGPUs,
		NumWorkers:   task.NumWorkers,
	}
	workload, err := h.client.Create(ctx, spec)
	if err != nil {
		return "", odinerrors.NewSubmitErrorCausedBy(
			"submitting "+string(h.kind)+" workload "+task.Label, err)
	}
	return workload.ID(), nil
}

// Status observes the workload backing task and maps its cluster-native
// phase into the uniform vocabulary (spec.md §4.4 table), including the
// ImagePullBackOff-past-deadline rule.
func (h *handler) Status(ctx context.Context, task domain.TaskRun) (domain.TaskStatus, error) {
	workload, err := h.client.Get(ctx, h.kind, h.namespace, task.ResourceID)
	if err != nil {
		return "", odinerrors.NewObserveErrorCausedBy(
			"observing "+string(h.kind)+" workload "+task.ResourceID, err)
	}

	if since, stuck := workload.ImagePullBackOffSince(); stuck {
		if time.Since(since) > h.imagePullBackOffDeadline {
			return domain.TaskFailed, nil
		}
		return domain.TaskExecuting, nil
	}

	switch workload.Phase() {
	case cluster.PhaseSucceeded:
		return domain.TaskExecuted, nil
	case cluster.PhaseFailed:
		return domain.TaskFailed, nil
	case cluster.PhaseRunning:
		return domain.TaskExecuting, nil
	default:
		return domain.TaskWaiting, nil
	}
}

// Events returns the cluster events recorded against task's workload
// (used to observe S6's BackOff/Failed sequence).
func (h *handler) Events(ctx context.Context, task domain.TaskRun) ([]cluster.Event, error) {
	events, err := h.client.Events(ctx, h.kind, h.namespace, task.ResourceID)
	if err != nil {
		return nil, odinerrors.NewObserveErrorCausedBy("reading events for "+task.ResourceID, err)
	}
	return events, nil
}

// Logs streams the log of task's workload.
func (h *handler) Logs(ctx context.Context, task domain.TaskRun) (io.ReadCloser, error) {
	logs, err := h.client.Logs(ctx, h.kind, h.namespace, task.ResourceID)
	if err != nil {
		return nil, odinerrors.NewObserveErrorCausedBy("reading logs for "+task.ResourceID, err)
	}
	return logs, nil
}

// Delete removes task's workload; a failure is recorded as a
// CleanupError but never blocks the caller from proceeding to
// TERMINATED (spec.md §7, §5).
func (h *handler) Delete(ctx context.Context, task domain.TaskRun, mode cluster.DeleteMode) error {
	if err := h.client.Delete(ctx, h.kind, h.namespace, task.ResourceID, mode); err != nil {
		return odinerrors.NewCleanupErrorCausedBy("deleting "+task.ResourceID, err)
	}
	return nil
}

package handler

import (
	"time"

	"github.com/Interactions-AI/odin/internal/cluster"
	"github.com/Interactions-AI/odin/internal/domain"
	odinerrors "github.com/Interactions-AI/odin/internal/domain/errors"
)

// SupportedKinds are the resource kinds with a registered Handler
// (spec.md §3's resource_type enum).
var SupportedKinds = []domain.ResourceKind{
	domain.Pod,
	domain.BatchJob,
	domain.TFJob,
	domain.PyTorchJob,
	domain.ElasticJob,
	domain.MPIJob,
}

// Registry maps a resource kind to its Handler, by exact match (spec.md
// §4.5).
type Registry struct {
	handlers map[domain.ResourceKind]Handler
}

// NewRegistry builds a Registry with one Handler per SupportedKinds
// entry, all sharing client and namespace (spec.md §4.5, §4.3).
func NewRegistry(client cluster.Client, namespace string, imagePullBackOffDeadline time.Duration) *Registry {
	handlers := make(map[domain.ResourceKind]Handler, len(SupportedKinds))
	for _, kind := range SupportedKinds {
		handlers[kind] = &handler{
			kind:                     kind,
			client:                   client,
			namespace:                namespace,
			imagePullBackOffDeadline: imagePullBackOffDeadline,
		}
	}
	return &Registry{handlers: handlers}
}

// Resolve looks up the Handler for kind, or UnsupportedResourceKind if
// none is registered (spec.md §4.5: "unknown kinds cause the Executor
// to reject the task with UnsupportedResourceKind at submission time").
func (r *Registry) Resolve(kind domain.ResourceKind) (Handler, error) {
	h, ok := r.handlers[kind]
	if !ok {
		return nil, odinerrors.NewUnsupportedResourceKind(string(kind))
	}
	return h, nil
}

// Register overrides (or adds) the Handler for kind, used by tests to
// inject a fake Handler for one kind without replacing the whole
// Registry.
func (r *Registry) Register(kind domain.ResourceKind, h Handler) {
	r.handlers[kind] = h
}

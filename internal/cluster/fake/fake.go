// Package fake is a hand-rolled in-memory cluster.Client, in the style
// of opst-knitfab's pkg/*/mocks fakes, used by handler and executor
// tests instead of a mocking framework (SPEC_FULL.md §10.5).
package fake

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/Interactions-AI/odin/internal/cluster"
	"github.com/Interactions-AI/odin/internal/domain"
)

type workload struct {
	id                    string
	kind                  domain.ResourceKind
	phase                 cluster.Phase
	exit                  cluster.ExitStatus
	imagePullBackOffSince time.Time
	hasImagePullBackOff   bool
	log                   string
	events                []cluster.Event
	deleted               bool
}

func (w *workload) ID() string                { return w.id }
func (w *workload) Phase() cluster.Phase      { return w.phase }
func (w *workload) ExitStatus() cluster.ExitStatus { return w.exit }
func (w *workload) ImagePullBackOffSince() (time.Time, bool) {
	return w.imagePullBackOffSince, w.hasImagePullBackOff
}

// Client is an in-memory cluster.Client. Tests seed and mutate its
// workloads directly through the exported fields/methods below.
type Client struct {
	mu        sync.Mutex
	workloads map[string]*workload
	CreateErr error
	NodeList  []cluster.Node
	// CreateCalls records the name of every workload Create has been
	// asked to submit, in call order, so tests can assert a rebind
	// after restart did not also resubmit.
	CreateCalls []string
}

var _ cluster.Client = (*Client)(nil)

// New returns an empty fake Client.
func New() *Client {
	return &Client{workloads: map[string]*workload{}}
}

func (c *Client) key(kind domain.ResourceKind, namespace, name string) string {
	return string(kind) + "/" + namespace + "/" + name
}

// Create records a new WAITING (PENDING) workload for spec.Name.
func (c *Client) Create(ctx context.Context, spec cluster.Spec) (cluster.Workload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CreateCalls = append(c.CreateCalls, spec.Name)
	if c.CreateErr != nil {
		return nil, c.CreateErr
	}
	w := &workload{id: spec.Name, kind: spec.Kind, phase: cluster.PhasePending}
	c.workloads[c.key(spec.Kind, spec.Namespace, spec.Name)] = w
	return w, nil
}

func (c *Client) Get(ctx context.Context, kind domain.ResourceKind, namespace, name string) (cluster.Workload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.workloads[c.key(kind, namespace, name)]
	if !ok {
		return nil, fmt.Errorf("fake cluster: workload %s not found", name)
	}
	return w, nil
}

func (c *Client) Events(ctx context.Context, kind domain.ResourceKind, namespace, name string) ([]cluster.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.workloads[c.key(kind, namespace, name)]
	if !ok {
		return nil, fmt.Errorf("fake cluster: workload %s not found", name)
	}
	return w.events, nil
}

func (c *Client) Logs(ctx context.Context, kind domain.ResourceKind, namespace, name string) (io.ReadCloser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.workloads[c.key(kind, namespace, name)]
	if !ok {
		return nil, fmt.Errorf("fake cluster: workload %s not found", name)
	}
	return io.NopCloser(strings.NewReader(w.log)), nil
}

func (c *Client) Delete(ctx context.Context, kind domain.ResourceKind, namespace, name string, mode cluster.DeleteMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.workloads[c.key(kind, namespace, name)]
	if !ok {
		return nil
	}
	w.deleted = true
	return nil
}

func (c *Client) ListNodes(ctx context.Context) ([]cluster.Node, error) {
	return c.NodeList, nil
}

// SetPhase mutates a previously-created workload's observed phase, for
// tests driving an Executor/Handler reconciliation loop step by step.
func (c *Client) SetPhase(kind domain.ResourceKind, namespace, name string, phase cluster.Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.workloads[c.key(kind, namespace, name)]; ok {
		w.phase = phase
	}
}

// SetExitStatus mutates a workload's terminal exit status.
func (c *Client) SetExitStatus(kind domain.ResourceKind, namespace, name string, exit cluster.ExitStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.workloads[c.key(kind, namespace, name)]; ok {
		w.exit = exit
	}
}

// SetImagePullBackOff marks a workload as stuck pulling its image since t.
func (c *Client) SetImagePullBackOff(kind domain.ResourceKind, namespace, name string, since time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.workloads[c.key(kind, namespace, name)]; ok {
		w.hasImagePullBackOff = true
		w.imagePullBackOffSince = since
	}
}

// SetLog sets the log body a subsequent Logs call returns.
func (c *Client) SetLog(kind domain.ResourceKind, namespace, name, log string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.workloads[c.key(kind, namespace, name)]; ok {
		w.log = log
	}
}

// AddEvent appends an event a subsequent Events call returns.
func (c *Client) AddEvent(kind domain.ResourceKind, namespace, name string, e cluster.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.workloads[c.key(kind, namespace, name)]; ok {
		w.events = append(w.events, e)
	}
}

// Deleted reports whether Delete has been called for the workload.
func (c *Client) Deleted(kind domain.ResourceKind, namespace, name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.workloads[c.key(kind, namespace, name)]
	return ok && w.deleted
}

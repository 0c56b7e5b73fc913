// Package k8s implements the Cluster Client (spec.md §4.3) against a
// real Kubernetes-like control plane: typed operations for POD and
// BATCH_JOB via client-go's typed clientset, and generic operations for
// the multi-worker training kinds (TF_JOB, PYTORCH_JOB, ELASTIC_JOB,
// MPI_JOB) via client-go's dynamic client against their CRDs. Grounded
// on opst-knitfab/pkg/workloads/k8s/k8s.go's K8sClient/Cluster split and
// opst-knitfab/pkg/domain/knitfab/k8s/k8s.go's constructor-composition
// wiring style.
package k8s

import (
	"context"
	"fmt"
	"io"

	corev1 "k8s.io/api/core/v1"
	kubeerrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/Interactions-AI/odin/internal/cluster"
	"github.com/Interactions-AI/odin/internal/domain"
)

// gvrByKind maps each multi-worker training resource kind to the CRD it
// is submitted as (the Kubeflow training-operator group for TF/PyTorch/
// MPI, and the torchelastic operator group for ELASTIC_JOB).
var gvrByKind = map[domain.ResourceKind]schema.GroupVersionResource{
	domain.TFJob:      {Group: "kubeflow.org", Version: "v1", Resource: "tfjobs"},
	domain.PyTorchJob: {Group: "kubeflow.org", Version: "v1", Resource: "pytorchjobs"},
	domain.MPIJob:     {Group: "kubeflow.org", Version: "v1", Resource: "mpijobs"},
	domain.ElasticJob: {Group: "elastic.pytorch.org", Version: "v1alpha1", Resource: "elasticjobs"},
}

// Client wraps a typed and a dynamic client-go clientset behind
// cluster.Client, scoped to a single namespace.
type Client struct {
	typed     kubernetes.Interface
	dynamic   dynamic.Interface
	namespace string
}

var _ cluster.Client = (*Client)(nil)

// New builds a Client from a kubeconfig path (empty for in-cluster
// config), matching cmd/gaxx's pattern of resolving config once at
// startup and failing fast on a bad kubeconfig.
func New(kubeconfigPath, namespace string) (*Client, error) {
	cfg, err := loadConfig(kubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("loading kubeconfig: %w", err)
	}

	typed, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("building typed clientset: %w", err)
	}
	dyn, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("building dynamic clientset: %w", err)
	}

	return &Client{typed: typed, dynamic: dyn, namespace: namespace}, nil
}

func loadConfig(kubeconfigPath string) (*rest.Config, error) {
	if kubeconfigPath == "" {
		return rest.InClusterConfig()
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfigPath)
}

// Create submits spec as a workload of its declared kind (spec.md §4.4:
// "Each Handler owns the shape of the submitted spec").
func (c *Client) Create(ctx context.Context, spec cluster.Spec) (cluster.Workload, error) {
	switch spec.Kind {
	case domain.Pod:
		return c.createPod(ctx, spec)
	case domain.BatchJob:
		return c.createJob(ctx, spec)
	default:
		gvr, ok := gvrByKind[spec.Kind]
		if !ok {
			return nil, fmt.Errorf("k8s: no CRD mapping for resource kind %q", spec.Kind)
		}
		return c.createCustomResource(ctx, gvr, spec)
	}
}

// Get fetches the current state of a previously-created workload.
func (c *Client) Get(ctx context.Context, kind domain.ResourceKind, namespace, name string) (cluster.Workload, error) {
	switch kind {
	case domain.Pod:
		return c.getPod(ctx, namespace, name)
	case domain.BatchJob:
		return c.getJob(ctx, namespace, name)
	default:
		gvr, ok := gvrByKind[kind]
		if !ok {
			return nil, fmt.Errorf("k8s: no CRD mapping for resource kind %q", kind)
		}
		return c.getCustomResource(ctx, gvr, namespace, name)
	}
}

// Delete removes the workload; mode chooses whether backing pods
// survive (spec.md §4.4 `delete(TaskRun, mode)`).
func (c *Client) Delete(ctx context.Context, kind domain.ResourceKind, namespace, name string, mode cluster.DeleteMode) error {
	var err error
	propagation := metav1.DeletePropagationForeground
	if mode == cluster.DeleteWorkloadOnly {
		propagation = metav1.DeletePropagationOrphan
	}
	switch kind {
	case domain.Pod:
		err = c.typed.CoreV1().Pods(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	case domain.BatchJob:
		err = c.typed.BatchV1().Jobs(namespace).Delete(ctx, name, metav1.DeleteOptions{
			PropagationPolicy: &propagation,
		})
	default:
		gvr, ok := gvrByKind[kind]
		if !ok {
			return fmt.Errorf("k8s: no CRD mapping for resource kind %q", kind)
		}
		err = c.dynamic.Resource(gvr).Namespace(namespace).Delete(ctx, name, metav1.DeleteOptions{
			PropagationPolicy: &propagation,
		})
	}
	if kubeerrors.IsNotFound(err) {
		return nil
	}
	return err
}

// Logs streams the log of a workload's first observed pod.
func (c *Client) Logs(ctx context.Context, kind domain.ResourceKind, namespace, name string) (io.ReadCloser, error) {
	podName, err := c.leadPodName(ctx, kind, namespace, name)
	if err != nil {
		return nil, err
	}
	return c.typed.CoreV1().Pods(namespace).GetLogs(podName, &corev1.PodLogOptions{}).Stream(ctx)
}

// Events lists the cluster events recorded against a workload's
// underlying object, used to observe ImagePullBackOff sequences (S6).
func (c *Client) Events(ctx context.Context, kind domain.ResourceKind, namespace, name string) ([]cluster.Event, error) {
	podName, err := c.leadPodName(ctx, kind, namespace, name)
	if err != nil {
		return nil, err
	}
	list, err := c.typed.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{
		FieldSelector: fmt.Sprintf("involvedObject.name=%s", podName),
	})
	if err != nil {
		return nil, err
	}
	events := make([]cluster.Event, 0, len(list.Items))
	for _, e := range list.Items {
		events = append(events, cluster.Event{
			Reason:  e.Reason,
			Message: e.Message,
			Time:    e.LastTimestamp.Time,
		})
	}
	return events, nil
}

// leadPodName resolves the first pod backing a workload, used for
// Logs/Events (spec.md §4.4: "read logs (by pod identity within the
// workload)"). A POD's workload name is a pod name directly; other
// kinds are backed by pods carrying a selector label set at submission.
func (c *Client) leadPodName(ctx context.Context, kind domain.ResourceKind, namespace, name string) (string, error) {
	if kind == domain.Pod {
		return name, nil
	}

	selector := workloadPodSelector(kind, name)
	list, err := c.typed.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return "", err
	}
	if len(list.Items) == 0 {
		return "", fmt.Errorf("k8s: no pods found for workload %s (selector %s)", name, selector)
	}
	return list.Items[0].Name, nil
}

// workloadPodSelector names the label every pod backing name carries.
// BATCH_JOB pods carry client-go's own "job-name" label; the CRD-backed
// training kinds carry the label this client sets at submission time
// (see crd.go's podLabelForKind).
func workloadPodSelector(kind domain.ResourceKind, name string) string {
	if kind == domain.BatchJob {
		return "job-name=" + name
	}
	return podLabelForKind(kind) + "=" + name
}

// ListNodes reports every node's allocatable resources (spec.md §4.3).
func (c *Client) ListNodes(ctx context.Context) ([]cluster.Node, error) {
	list, err := c.typed.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}
	nodes := make([]cluster.Node, 0, len(list.Items))
	for _, n := range list.Items {
		allocatable := make(map[string]string, len(n.Status.Allocatable))
		for name, qty := range n.Status.Allocatable {
			allocatable[string(name)] = qty.String()
		}
		nodes = append(nodes, cluster.Node{Name: n.Name, Allocatable: allocatable})
	}
	return nodes, nil
}

package k8s

import (
	"context"
	"strings"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/Interactions-AI/odin/internal/cluster"
	"github.com/Interactions-AI/odin/internal/domain"
)

// podLabelForKind is the label this client stamps onto every worker pod
// of a multi-worker training job, so leadPodName can find them again;
// the Kubeflow training-operator and torchelastic operator both honor
// an arbitrary passthrough label on the pod template they generate.
func podLabelForKind(kind domain.ResourceKind) string {
	return "odin.workload/" + strings.ToLower(string(kind))
}

func (c *Client) createCustomResource(ctx context.Context, gvr schema.GroupVersionResource, spec cluster.Spec) (cluster.Workload, error) {
	obj := &unstructured.Unstructured{Object: trainingJobObject(gvr, spec)}
	created, err := c.dynamic.Resource(gvr).Namespace(spec.Namespace).Create(ctx, obj, metav1.CreateOptions{})
	if err != nil {
		return nil, err
	}
	return &crWorkload{obj: created}, nil
}

func (c *Client) getCustomResource(ctx context.Context, gvr schema.GroupVersionResource, namespace, name string) (cluster.Workload, error) {
	obj, err := c.dynamic.Resource(gvr).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, err
	}
	return &crWorkload{obj: obj}, nil
}

// trainingJobObject builds the unstructured body shared by the Kubeflow-
// style training-operator CRDs (TFJob/PyTorchJob/MPIJob/ElasticJob): a
// single "Worker" replica spec of spec.NumWorkers pods, each running
// spec.Image/Command/Args, sharing the declared volume mounts.
func trainingJobObject(gvr schema.GroupVersionResource, spec cluster.Spec) map[string]interface{} {
	container := map[string]interface{}{
		"name":    "main",
		"image":   spec.Image,
		"command": stringSlice(spec.Command),
		"args":    stringSlice(spec.Args),
	}
	if spec.PullPolicy != "" {
		container["imagePullPolicy"] = spec.PullPolicy
	}

	podSpec := map[string]interface{}{
		"restartPolicy": "Never",
		"containers":    []interface{}{container},
	}
	if spec.NodeSelector != nil {
		podSpec["nodeSelector"] = stringMap(spec.NodeSelector)
	}
	if len(spec.Mounts) > 0 {
		volumeMounts := make([]interface{}, 0, len(spec.Mounts))
		volumes := make([]interface{}, 0, len(spec.Mounts))
		for _, m := range spec.Mounts {
			volumeMounts = append(volumeMounts, map[string]interface{}{"name": m.Name, "mountPath": m.Path})
			volumes = append(volumes, map[string]interface{}{
				"name":                  m.Name,
				"persistentVolumeClaim": map[string]interface{}{"claimName": m.Claim},
			})
		}
		container["volumeMounts"] = volumeMounts
		podSpec["volumes"] = volumes
	}

	numWorkers := spec.NumWorkers
	if numWorkers <= 0 {
		numWorkers = 1
	}

	return map[string]interface{}{
		"apiVersion": gvr.GroupVersion().String(),
		"kind":       crdKind(gvr),
		"metadata": map[string]interface{}{
			"name":      spec.Name,
			"namespace": spec.Namespace,
			"labels":    map[string]interface{}{podLabelForKind(spec.Kind): spec.Name},
		},
		"spec": map[string]interface{}{
			"replicaSpecs": map[string]interface{}{
				"Worker": map[string]interface{}{
					"replicas": int64(numWorkers),
					"template": map[string]interface{}{
						"metadata": map[string]interface{}{
							"labels": map[string]interface{}{podLabelForKind(spec.Kind): spec.Name},
						},
						"spec": podSpec,
					},
				},
			},
		},
	}
}

func crdKind(gvr schema.GroupVersionResource) string {
	singular := strings.TrimSuffix(gvr.Resource, "s")
	return strings.ToUpper(singular[:1]) + singular[1:]
}

func stringSlice(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func stringMap(m map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// crWorkload adapts an unstructured training-job CRD to cluster.Workload
// by reading its `.status.conditions` list, which the Kubeflow
// training-operator family populates with the same Running/Succeeded/
// Failed vocabulary as batchv1.Job.
type crWorkload struct {
	obj *unstructured.Unstructured
}

func (w *crWorkload) ID() string { return w.obj.GetName() }

func (w *crWorkload) Phase() cluster.Phase {
	conditions, found, _ := unstructured.NestedSlice(w.obj.Object, "status", "conditions")
	if !found {
		return cluster.PhasePending
	}
	for _, raw := range conditions {
		cond, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		status, _ := cond["status"].(string)
		if status != "True" {
			continue
		}
		switch cond["type"] {
		case "Succeeded":
			return cluster.PhaseSucceeded
		case "Failed":
			return cluster.PhaseFailed
		case "Running":
			return cluster.PhaseRunning
		}
	}
	return cluster.PhasePending
}

func (w *crWorkload) ExitStatus() cluster.ExitStatus {
	if w.Phase() == cluster.PhaseFailed {
		return cluster.ExitStatus{Code: 1, Reason: "TrainingJobFailed", Present: true}
	}
	if w.Phase() == cluster.PhaseSucceeded {
		return cluster.ExitStatus{Code: 0, Reason: "TrainingJobSucceeded", Present: true}
	}
	return cluster.ExitStatus{}
}

func (w *crWorkload) ImagePullBackOffSince() (time.Time, bool) {
	return time.Time{}, false
}

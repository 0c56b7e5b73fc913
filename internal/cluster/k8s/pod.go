package k8s

import (
	"context"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/Interactions-AI/odin/internal/cluster"
)

func (c *Client) createPod(ctx context.Context, spec cluster.Spec) (cluster.Workload, error) {
	pod := podFromSpec(spec)
	created, err := c.typed.CoreV1().Pods(spec.Namespace).Create(ctx, pod, metav1.CreateOptions{})
	if err != nil {
		return nil, err
	}
	return &podWorkload{pod: created}, nil
}

func (c *Client) getPod(ctx context.Context, namespace, name string) (cluster.Workload, error) {
	pod, err := c.typed.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, err
	}
	return &podWorkload{pod: pod}, nil
}

func podFromSpec(spec cluster.Spec) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: spec.Name, Namespace: spec.Namespace},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			NodeSelector:  spec.NodeSelector,
			Containers:    []corev1.Container{mainContainer(spec)},
			Volumes:       volumesFromSpec(spec),
		},
	}
}

func mainContainer(spec cluster.Spec) corev1.Container {
	container := corev1.Container{
		Name:         "main",
		Image:        spec.Image,
		Command:      spec.Command,
		Args:         spec.Args,
		VolumeMounts: volumeMountsFromSpec(spec),
	}
	if spec.PullPolicy != "" {
		container.ImagePullPolicy = corev1.PullPolicy(spec.PullPolicy)
	}
	if spec.NumGPUs > 0 {
		container.Resources.Limits = corev1.ResourceList{
			"nvidia.com/gpu": *resource.NewQuantity(int64(spec.NumGPUs), resource.DecimalSI),
		}
	}
	return container
}

func volumesFromSpec(spec cluster.Spec) []corev1.Volume {
	volumes := make([]corev1.Volume, 0, len(spec.Mounts))
	for _, m := range spec.Mounts {
		volumes = append(volumes, corev1.Volume{
			Name: m.Name,
			VolumeSource: corev1.VolumeSource{
				PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: m.Claim},
			},
		})
	}
	return volumes
}

func volumeMountsFromSpec(spec cluster.Spec) []corev1.VolumeMount {
	mounts := make([]corev1.VolumeMount, 0, len(spec.Mounts))
	for _, m := range spec.Mounts {
		mounts = append(mounts, corev1.VolumeMount{Name: m.Name, MountPath: m.Path})
	}
	return mounts
}

// podWorkload adapts a corev1.Pod to cluster.Workload, mapping phases
// per the uniform status table (spec.md §4.4).
type podWorkload struct {
	pod *corev1.Pod
}

func (w *podWorkload) ID() string { return w.pod.Name }

func (w *podWorkload) Phase() cluster.Phase {
	switch w.pod.Status.Phase {
	case corev1.PodSucceeded:
		return cluster.PhaseSucceeded
	case corev1.PodFailed:
		return cluster.PhaseFailed
	case corev1.PodRunning:
		return cluster.PhaseRunning
	default:
		return podPendingPhase(w.pod)
	}
}

// podPendingPhase distinguishes ordinary scheduling delay from
// image-pulling, which counts as EXECUTING per §4.4's status table
// ("admitted, running, image-pulling").
func podPendingPhase(pod *corev1.Pod) cluster.Phase {
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.State.Waiting != nil && cs.State.Waiting.Reason == "ContainerCreating" {
			return cluster.PhaseRunning
		}
	}
	return cluster.PhasePending
}

func (w *podWorkload) ExitStatus() cluster.ExitStatus {
	for _, cs := range w.pod.Status.ContainerStatuses {
		if cs.Name != "main" {
			continue
		}
		if term := cs.State.Terminated; term != nil {
			return cluster.ExitStatus{Code: term.ExitCode, Reason: term.Reason, Present: true}
		}
	}
	return cluster.ExitStatus{}
}

func (w *podWorkload) ImagePullBackOffSince() (time.Time, bool) {
	return imagePullBackOffSince(w.pod.Status.ContainerStatuses)
}

func imagePullBackOffSince(statuses []corev1.ContainerStatus) (time.Time, bool) {
	for _, cs := range statuses {
		if cs.State.Waiting != nil && cs.State.Waiting.Reason == "ImagePullBackOff" {
			if cs.LastTerminationState.Terminated != nil {
				return cs.LastTerminationState.Terminated.FinishedAt.Time, true
			}
			return time.Now(), true
		}
	}
	return time.Time{}, false
}


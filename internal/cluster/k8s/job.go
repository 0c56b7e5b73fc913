package k8s

import (
	"context"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/Interactions-AI/odin/internal/cluster"
)

func (c *Client) createJob(ctx context.Context, spec cluster.Spec) (cluster.Workload, error) {
	job := jobFromSpec(spec)
	created, err := c.typed.BatchV1().Jobs(spec.Namespace).Create(ctx, job, metav1.CreateOptions{})
	if err != nil {
		return nil, err
	}
	return &jobWorkload{job: created, pods: nil}, nil
}

func (c *Client) getJob(ctx context.Context, namespace, name string) (cluster.Workload, error) {
	job, err := c.typed.BatchV1().Jobs(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, err
	}
	pods, err := c.podsForJob(ctx, namespace, name)
	if err != nil {
		return nil, err
	}
	return &jobWorkload{job: job, pods: pods}, nil
}

func (c *Client) podsForJob(ctx context.Context, namespace, jobName string) ([]corev1.Pod, error) {
	list, err := c.typed.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: "job-name=" + jobName,
	})
	if err != nil {
		return nil, err
	}
	return list.Items, nil
}

func jobFromSpec(spec cluster.Spec) *batchv1.Job {
	backoffLimit := int32(0) // BATCH_JOB "retries to completion" is handled by the Executor, not k8s (spec.md §4.4)
	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: spec.Name, Namespace: spec.Namespace},
		Spec: batchv1.JobSpec{
			BackoffLimit: &backoffLimit,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Name: spec.Name},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					NodeSelector:  spec.NodeSelector,
					Containers:    []corev1.Container{mainContainer(spec)},
					Volumes:       volumesFromSpec(spec),
				},
			},
		},
	}
}

// jobWorkload adapts a batchv1.Job (and its observed pods) to
// cluster.Workload, grounded on opst-knitfab's job.Status()/ExitCode():
// job conditions decide Succeeded/Failed, otherwise pod phases decide
// Running vs Pending.
type jobWorkload struct {
	job  *batchv1.Job
	pods []corev1.Pod
}

func (w *jobWorkload) ID() string { return w.job.Name }

func (w *jobWorkload) Phase() cluster.Phase {
	for _, cond := range w.job.Status.Conditions {
		if cond.Status != corev1.ConditionTrue {
			continue
		}
		switch cond.Type {
		case batchv1.JobComplete:
			return cluster.PhaseSucceeded
		case batchv1.JobFailed:
			return cluster.PhaseFailed
		}
	}
	for _, p := range w.pods {
		switch p.Status.Phase {
		case corev1.PodRunning, corev1.PodSucceeded, corev1.PodFailed:
			return cluster.PhaseRunning
		}
	}
	return cluster.PhasePending
}

func (w *jobWorkload) ExitStatus() cluster.ExitStatus {
	for _, p := range w.pods {
		for _, cs := range p.Status.ContainerStatuses {
			if cs.Name != "main" {
				continue
			}
			if term := cs.State.Terminated; term != nil {
				return cluster.ExitStatus{Code: term.ExitCode, Reason: term.Reason, Present: true}
			}
		}
	}
	return cluster.ExitStatus{}
}

func (w *jobWorkload) ImagePullBackOffSince() (time.Time, bool) {
	for _, p := range w.pods {
		if t, ok := imagePullBackOffSince(p.Status.ContainerStatuses); ok {
			return t, true
		}
	}
	return time.Time{}, false
}


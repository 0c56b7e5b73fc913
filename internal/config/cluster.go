package config

import "time"

// ClusterConfigMarshall configures the Cluster Client (SPEC_FULL.md
// §10.2): namespace, kubeconfig path, default per-call deadline, and the
// ImagePullBackOff deadline (spec.md §4.4).
type ClusterConfigMarshall struct {
	Namespace                string `yaml:"namespace"`
	Kubeconfig               string `yaml:"kubeconfig,omitempty"`
	DefaultDeadline          string `yaml:"default_deadline"`
	ImagePullBackOffDeadline string `yaml:"image_pull_backoff_deadline"`
}

var _ Marshalled[*ClusterConfig] = &ClusterConfigMarshall{}

func (c *ClusterConfigMarshall) trySeal(path string) *ClusterConfig {
	defaultDeadline, err := time.ParseDuration(required(c.DefaultDeadline, path+".default_deadline"))
	if err != nil {
		panic(path + ".default_deadline: " + err.Error())
	}
	imagePullBackOffDeadline, err := time.ParseDuration(required(c.ImagePullBackOffDeadline, path+".image_pull_backoff_deadline"))
	if err != nil {
		panic(path + ".image_pull_backoff_deadline: " + err.Error())
	}
	return &ClusterConfig{
		namespace:                required(c.Namespace, path+".namespace"),
		kubeconfig:               c.Kubeconfig,
		defaultDeadline:          defaultDeadline,
		imagePullBackOffDeadline: imagePullBackOffDeadline,
	}
}

// ClusterConfig is the sealed Cluster Client configuration.
type ClusterConfig struct {
	namespace                string
	kubeconfig               string
	defaultDeadline          time.Duration
	imagePullBackOffDeadline time.Duration
}

func (c *ClusterConfig) Namespace() string { return c.namespace }

// Kubeconfig returns the configured kubeconfig path, or "" to mean
// in-cluster config (spec.md §4.4).
func (c *ClusterConfig) Kubeconfig() string                { return c.kubeconfig }
func (c *ClusterConfig) DefaultDeadline() time.Duration     { return c.defaultDeadline }
func (c *ClusterConfig) ImagePullBackOffDeadline() time.Duration {
	return c.imagePullBackOffDeadline
}

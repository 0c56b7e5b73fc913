package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// LoadJobsStoreConfig reads and seals the jobs-store credential file at
// path (spec.md §6), grounded on opst-knitfab's LoadBackendConfig.
func LoadJobsStoreConfig(path string) (*JobsStoreConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m JobsStoreConfigMarshall
	if err := yaml.Unmarshal(content, &m); err != nil {
		return nil, err
	}
	return TrySeal(&m), nil
}

// LoadClusterConfig reads and seals the cluster config file at path.
func LoadClusterConfig(path string) (*ClusterConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m ClusterConfigMarshall
	if err := yaml.Unmarshal(content, &m); err != nil {
		return nil, err
	}
	return TrySeal(&m), nil
}

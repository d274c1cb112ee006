package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadServicesConfig loads the services configuration from config/services.yaml
func LoadServicesConfig() (*ServicesConfig, error) {
	return LoadServicesConfigFromPath(filepath.Join("config", "services.yaml"))
}

// LoadServicesConfigFromPath loads the services configuration from a specific path
func LoadServicesConfigFromPath(path string) (*ServicesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read services config: %w", err)
	}

	var cfg ServicesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse services config: %w", err)
	}

	// Validate that all services have required fields
	for id, settings := range cfg.Services {
		if settings.Port == 0 {
			return nil, fmt.Errorf("service %s: port is required", id)
		}
	}

	return &cfg, nil
}

// LoadServicesConfigOrDefault loads services config or returns default if file not found
func LoadServicesConfigOrDefault() *ServicesConfig {
	cfg, err := LoadServicesConfig()
	if err != nil {
		// Return default configuration with all services enabled
		return DefaultServicesConfig()
	}
	return cfg
}

// DefaultServicesConfig returns the default configuration for a single
// logwatch node running every subsystem in-process.
func DefaultServicesConfig() *ServicesConfig {
	return &ServicesConfig{
		Services: map[string]*ServiceSettings{
			"gateway": {
				Enabled:     true,
				Port:        8080,
				Description: "Peer + admin HTTP surface: cluster heartbeat, distributed search, SSE subscribe",
			},
			"ingest": {
				Enabled:     true,
				Port:        8081,
				Description: "Directory scanner, syslog UDP/TCP listeners, cloud log fetcher",
			},
			"indexer": {
				Enabled:     true,
				Port:        8082,
				Description: "Partitioned full-text index: ingest, search, rotation, archive",
			},
			"alarms": {
				Enabled:     true,
				Port:        8083,
				Description: "Alarm evaluation, throttling, grouping, and dispatch",
			},
			"cluster-agent": {
				Enabled:     true,
				Port:        8084,
				Description: "Membership heartbeats, leader election, shard registration",
			},
			"realtime": {
				Enabled:     true,
				Port:        8085,
				Description: "Subscription registry and SSE push for log/widget updates",
			},
		},
	}
}

// ServiceAliases maps deprecated/alternate service ids to their canonical name.
var ServiceAliases = map[string]string{
	"http-gateway": "gateway",
	"log-ingest":   "ingest",
	"index":        "indexer",
	"alarm-engine":  "alarms",
	"membership":    "cluster-agent",
	"sse":           "realtime",
}

// CanonicalServiceName resolves a possibly-aliased service id to its
// canonical name. Unknown names are returned unchanged.
func CanonicalServiceName(name string) string {
	if canonical, ok := ServiceAliases[name]; ok {
		return canonical
	}
	return name
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultServerConfigMatchesSpecDefaults(t *testing.T) {
	cfg := DefaultServerConfig()

	if cfg.HighAvailability.HeartbeatIntervalMs != 5000 || cfg.HighAvailability.HeartbeatTimeoutMs != 15000 {
		t.Errorf("HA heartbeat defaults = %+v, want 5000/15000", cfg.HighAvailability)
	}
	if cfg.HorizontalScaling.HeartbeatTimeoutMs != 30000 {
		t.Errorf("horizontal scaling timeout = %d, want 30000", cfg.HorizontalScaling.HeartbeatTimeoutMs)
	}
	if cfg.Buffer.MaxSize != 1000 || cfg.Buffer.FlushIntervalMs != 30000 {
		t.Errorf("buffer defaults = %+v, want 1000/30000", cfg.Buffer)
	}
	if cfg.SearchCache.MaxSize != 100 || cfg.SearchCache.ExpirationMs != 300000 {
		t.Errorf("search cache defaults = %+v, want 100/300000", cfg.SearchCache)
	}
}

func TestLoadServerConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadServerConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("expected no error for a missing config file, got %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("port = %d, want default 8080", cfg.Port)
	}
}

func TestLoadServerConfigOverridesFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := "port: 9090\nsharding:\n  type: TIME_BASED\n  numberOfShards: 3\n"
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Port)
	}
	if cfg.Sharding.Type != "TIME_BASED" || cfg.Sharding.NumberOfShards != 3 {
		t.Errorf("sharding = %+v, want TIME_BASED/3", cfg.Sharding)
	}
}

func TestLoadServerConfigEnvOverridesLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	cfg, err := LoadServerConfig("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("logLevel = %q, want debug (from env)", cfg.LogLevel)
	}
}

package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// HAConfig mirrors §6's highAvailability.* options (C9).
type HAConfig struct {
	Enabled               bool   `yaml:"enabled"`
	NodeID                string `yaml:"nodeId"`
	NodeURL               string `yaml:"nodeUrl"`
	HeartbeatIntervalMs   int64  `yaml:"heartbeatIntervalMs"`
	HeartbeatTimeoutMs    int64  `yaml:"heartbeatTimeoutMs"`
	LeaderCheckIntervalMs int64  `yaml:"leaderCheckIntervalMs"`
}

// HorizontalScalingConfig mirrors §6's horizontalScaling.* options (C14).
type HorizontalScalingConfig struct {
	Enabled           bool   `yaml:"enabled"`
	InstanceID        string `yaml:"instanceId"`
	HeartbeatTimeoutMs int64 `yaml:"heartbeatTimeoutMs"`
}

// ShardingConfig mirrors §6's sharding.* options (C5).
type ShardingConfig struct {
	Enabled        bool     `yaml:"enabled"`
	LocalNodeID    string   `yaml:"localNodeId"`
	LocalNodeURL   string   `yaml:"localNodeUrl"`
	Type           string   `yaml:"type"`
	NumberOfShards int      `yaml:"numberOfShards"`
	Nodes          []string `yaml:"nodes"`
}

// PartitioningConfig mirrors §6's partitioning.* options (C3).
type PartitioningConfig struct {
	Type              string `yaml:"type"`
	BaseDir           string `yaml:"baseDir"`
	MaxActivePartitions int  `yaml:"maxActivePartitions"`
	AutoArchive       bool   `yaml:"autoArchive"`
}

// LuceneConfig mirrors §6's lucene.index-dir option (C3 legacy single-index mode).
type LuceneConfig struct {
	IndexDir string `yaml:"index-dir"`
}

// BufferConfig mirrors §6's buffer.* options (C2).
type BufferConfig struct {
	MaxSize         int   `yaml:"max-size"`
	FlushIntervalMs int64 `yaml:"flush-interval-ms"`
}

// SearchCacheConfig mirrors §6's searchCache.* options (C4).
type SearchCacheConfig struct {
	MaxSize           int   `yaml:"max-size"`
	ExpirationMs      int64 `yaml:"expiration-ms"`
	Enabled           bool  `yaml:"enabled"`
	CleanupIntervalMs int64 `yaml:"cleanup-interval-ms"`
	Distributed       bool  `yaml:"distributed"`
}

// ArchiveYAMLConfig mirrors §6's archive.* options (C11).
type ArchiveYAMLConfig struct {
	Directory          string `yaml:"directory"`
	CompressionLevel   int    `yaml:"compressionLevel"`
	AutoArchiveEnabled bool   `yaml:"autoArchiveEnabled"`
	RetentionDays      int    `yaml:"retentionDays"`
}

// PredictiveConfig mirrors §6's non-core predictive/anomaly options,
// carried only as inert configuration (§1 Non-goals: "predictive/anomaly
// analytics beyond batch statistics" is out of scope for THE CORE).
type PredictiveConfig struct {
	Enabled               bool `yaml:"enabled"`
	Threshold             int  `yaml:"threshold"`
	MinSampleSize         int  `yaml:"minSampleSize"`
	TimeWindowMinutes     int  `yaml:"timeWindowMinutes"`
	ForecastHorizonMinutes int `yaml:"forecastHorizonMinutes"`
}

// RedisConfig backs the optional distributed search-cache mirror and the
// cluster discovery backend (DOMAIN STACK: go-redis/redis/v8).
type RedisConfig struct {
	Addr string `yaml:"addr"`
	DB   int    `yaml:"db"`
}

// ServerConfig assembles every subsystem's tunables enumerated in spec.md
// §6, loaded from a YAML file and overridable by environment variables
// (ambient-stack convention carried from the teacher's pkg/config.Config).
type ServerConfig struct {
	Port               int                     `yaml:"port"`
	LogLevel           string                  `yaml:"logLevel"`
	LogFormat          string                  `yaml:"logFormat"`
	HighAvailability   HAConfig                `yaml:"highAvailability"`
	HorizontalScaling  HorizontalScalingConfig `yaml:"horizontalScaling"`
	Sharding           ShardingConfig          `yaml:"sharding"`
	Partitioning       PartitioningConfig      `yaml:"partitioning"`
	Lucene             LuceneConfig            `yaml:"lucene"`
	Buffer             BufferConfig            `yaml:"buffer"`
	SearchCache        SearchCacheConfig       `yaml:"searchCache"`
	Archive            ArchiveYAMLConfig       `yaml:"archive"`
	Predictive         PredictiveConfig        `yaml:"predictive"`
	Redis              RedisConfig             `yaml:"redis"`
}

// DefaultServerConfig matches every default spec.md §6 states explicitly.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:      8080,
		LogLevel:  "info",
		LogFormat: "json",
		HighAvailability: HAConfig{
			HeartbeatIntervalMs: 5000, HeartbeatTimeoutMs: 15000, LeaderCheckIntervalMs: 10000,
		},
		HorizontalScaling: HorizontalScalingConfig{HeartbeatTimeoutMs: 30000},
		Sharding:          ShardingConfig{Type: "BALANCED", NumberOfShards: 1},
		Partitioning:      PartitioningConfig{Type: "DAILY", BaseDir: "./data/partitions", MaxActivePartitions: 30},
		Lucene:            LuceneConfig{IndexDir: "./lucene-index"},
		Buffer:            BufferConfig{MaxSize: 1000, FlushIntervalMs: 30000},
		SearchCache:       SearchCacheConfig{MaxSize: 100, ExpirationMs: 300000, Enabled: true, CleanupIntervalMs: 60000},
		Archive:           ArchiveYAMLConfig{Directory: "./archives", CompressionLevel: 6, AutoArchiveEnabled: true, RetentionDays: 90},
	}
}

// LoadServerConfig reads a YAML config file over DefaultServerConfig's
// baseline, then applies LOG_LEVEL/LOG_FORMAT/PORT environment overrides
// (the same GetEnv* precedence every other entry point in this module
// uses). A missing file is not an error; defaults apply.
func LoadServerConfig(path string) (*ServerConfig, error) {
	cfg := DefaultServerConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	cfg.LogLevel = GetEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = GetEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.Port = GetEnvInt("PORT", cfg.Port)
	cfg.HighAvailability.NodeID = GetEnv("NODE_ID", cfg.HighAvailability.NodeID)
	cfg.HighAvailability.NodeURL = GetEnv("NODE_URL", cfg.HighAvailability.NodeURL)

	return cfg, nil
}

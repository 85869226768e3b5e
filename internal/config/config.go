package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration. Values come from an optional
// YAML file with environment variables taking precedence, so deployments
// can ship a base file and override per instance.
type Config struct {
	Service       ServiceConfig       `yaml:"service"`
	Store         StoreConfig         `yaml:"store"`
	Recordings    RecordingsConfig    `yaml:"recordings"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Playback      PlaybackConfig      `yaml:"playback"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServiceConfig struct {
	Principal string `yaml:"principal"`
	HTTPPort  string `yaml:"httpPort"`
}

type StoreConfig struct {
	Path    string `yaml:"path"`
	Enabled bool   `yaml:"enabled"`
}

type RecordingsConfig struct {
	Dir string `yaml:"dir"`
}

type KafkaConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Brokers         []string `yaml:"brokers"`
	TopicCommitted  string   `yaml:"topicCommitted"`
	TopicResolution string   `yaml:"topicResolution"`
}

type PlaybackConfig struct {
	Tick time.Duration `yaml:"tick"`
}

// UnmarshalYAML decodes the tick as a duration string ("50ms"); yaml.v3
// has no built-in time.Duration support.
func (p *PlaybackConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Tick string `yaml:"tick"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Tick == "" {
		return nil
	}
	d, err := time.ParseDuration(raw.Tick)
	if err != nil {
		return fmt.Errorf("playback.tick: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("playback.tick: must be positive, got %s", d)
	}
	p.Tick = d
	return nil
}

type ObservabilityConfig struct {
	LogLevel    string `yaml:"logLevel"`
	MetricsAddr string `yaml:"metricsAddr"`
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty or missing), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Principal: "svc-transcript-sync",
			HTTPPort:  "8080",
		},
		Store: StoreConfig{
			Path:    "data/sessions.db",
			Enabled: true,
		},
		Recordings: RecordingsConfig{
			Dir: "data/recordings",
		},
		Kafka: KafkaConfig{
			Enabled:         false,
			Brokers:         []string{"localhost:9092"},
			TopicCommitted:  "transcript.committed",
			TopicResolution: "transcript.sync.resolution",
		},
		Playback: PlaybackConfig{
			Tick: 50 * time.Millisecond,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			MetricsAddr: ":9091",
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Service.Principal = envOrDefault("SERVICE_PRINCIPAL", cfg.Service.Principal)
	cfg.Service.HTTPPort = envOrDefault("HTTP_PORT", cfg.Service.HTTPPort)

	cfg.Store.Path = envOrDefault("STORE_PATH", cfg.Store.Path)
	cfg.Store.Enabled = envBoolOrDefault("STORE_ENABLED", cfg.Store.Enabled)

	cfg.Recordings.Dir = envOrDefault("RECORDINGS_DIR", cfg.Recordings.Dir)

	cfg.Kafka.Enabled = envBoolOrDefault("KAFKA_ENABLED", cfg.Kafka.Enabled)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitCSV(v)
	}
	cfg.Kafka.TopicCommitted = envOrDefault("KAFKA_TOPIC_COMMITTED", cfg.Kafka.TopicCommitted)
	cfg.Kafka.TopicResolution = envOrDefault("KAFKA_TOPIC_RESOLUTION", cfg.Kafka.TopicResolution)

	cfg.Playback.Tick = envDurationOrDefault("PLAYBACK_TICK", cfg.Playback.Tick)

	cfg.Observability.LogLevel = envOrDefault("LOG_LEVEL", cfg.Observability.LogLevel)
	cfg.Observability.MetricsAddr = envOrDefault("METRICS_ADDR", cfg.Observability.MetricsAddr)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBoolOrDefault(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDurationOrDefault(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Package config provides configuration loading, validation, and defaults for
// the supervisor.
//
// Configuration is split into small per-subsystem sections (throttle, retry,
// storage, artifacts, collaborators). Values come from a YAML file plus
// environment variables for secrets; everything has a working default so the
// supervisor can run with no config file at all (mock collaborators, local
// artifact store, SQLite in the working directory).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Collaborator identifiers for the five pipeline stages.
const (
	CollabRequirementsAnalyst = "requirements-analyst"
	CollabSolutionArchitect   = "solution-architect"
	CollabCodeGenerator       = "code-generator"
	CollabQualityValidator    = "quality-validator"
	CollabDeploymentManager   = "deployment-manager"
)

// Provider identifiers for hosted model backends.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderMock      = "mock"
)

// Default tuning values. The hosted model service enforces an account-wide
// throughput ceiling, hence the long minimum interval.
const (
	DefaultMinInterval = 30 * time.Second
	DefaultMaxRetries  = 5
	DefaultBaseDelay   = 1 * time.Second
)

// Duration wraps time.Duration so YAML can carry values like "30s" or plain
// integers (interpreted as seconds).
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	return fmt.Errorf("invalid duration value")
}

// ThrottleConfig controls the global invocation throttle.
type ThrottleConfig struct {
	// MinInterval is the minimum wall-clock gap between any two collaborator
	// invocations, systemwide.
	MinInterval Duration `yaml:"min_interval"`
	// PerCollaborator scopes the throttle lease per collaborator id instead of
	// globally. The global scope is the conservative default.
	PerCollaborator bool `yaml:"per_collaborator"`
}

// RetryConfig controls backoff for throttling-class failures.
type RetryConfig struct {
	MaxRetries int      `yaml:"max_retries"`
	BaseDelay  Duration `yaml:"base_delay"`
}

// StorageConfig locates the SQLite database used by the persistence gateway.
type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

// ArtifactsConfig configures the object store for materialized stage outputs.
// When Endpoint is empty, artifacts are written to LocalDir on the filesystem.
type ArtifactsConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	LocalDir  string `yaml:"local_dir"`
}

// CollaboratorConfig describes one hosted collaborator backend.
type CollaboratorConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// ServerConfig configures the HTTP entry point.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// MetricsConfig points at a Prometheus server scraping /metrics. When
// PrometheusURL is empty the usage query endpoints are disabled.
type MetricsConfig struct {
	PrometheusURL string `yaml:"prometheus_url"`
}

// Config is the root configuration for the supervisor.
type Config struct {
	Collaborators map[string]CollaboratorConfig `yaml:"collaborators"`
	Throttle      ThrottleConfig                `yaml:"throttle"`
	Retry         RetryConfig                   `yaml:"retry"`
	Storage       StorageConfig                 `yaml:"storage"`
	Artifacts     ArtifactsConfig               `yaml:"artifacts"`
	Server        ServerConfig                  `yaml:"server"`
	Metrics       MetricsConfig                 `yaml:"metrics"`
}

// CollaboratorIDs returns the five collaborator identifiers in pipeline order.
func CollaboratorIDs() []string {
	return []string{
		CollabRequirementsAnalyst,
		CollabSolutionArchitect,
		CollabCodeGenerator,
		CollabQualityValidator,
		CollabDeploymentManager,
	}
}

// Default returns a configuration that works with no external services:
// mock collaborators, SQLite in the working directory, local artifact dir.
func Default() *Config {
	collaborators := make(map[string]CollaboratorConfig, 5)
	for _, id := range CollaboratorIDs() {
		collaborators[id] = CollaboratorConfig{Provider: ProviderMock}
	}
	return &Config{
		Collaborators: collaborators,
		Throttle: ThrottleConfig{
			MinInterval: Duration(DefaultMinInterval),
		},
		Retry: RetryConfig{
			MaxRetries: DefaultMaxRetries,
			BaseDelay:  Duration(DefaultBaseDelay),
		},
		Storage: StorageConfig{
			DBPath: "autoninja.db",
		},
		Artifacts: ArtifactsConfig{
			LocalDir: "artifacts",
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
		},
	}
}

// Load reads a YAML config file, applies defaults for unset fields, and
// validates the result. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Throttle.MinInterval <= 0 {
		c.Throttle.MinInterval = Duration(DefaultMinInterval)
	}
	if c.Retry.MaxRetries <= 0 {
		c.Retry.MaxRetries = DefaultMaxRetries
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = Duration(DefaultBaseDelay)
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = "autoninja.db"
	}
	if c.Artifacts.Endpoint == "" && c.Artifacts.LocalDir == "" {
		c.Artifacts.LocalDir = "artifacts"
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Collaborators == nil {
		c.Collaborators = make(map[string]CollaboratorConfig, 5)
	}
	for _, id := range CollaboratorIDs() {
		if _, ok := c.Collaborators[id]; !ok {
			c.Collaborators[id] = CollaboratorConfig{Provider: ProviderMock}
		}
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	for _, id := range CollaboratorIDs() {
		cc, ok := c.Collaborators[id]
		if !ok {
			return fmt.Errorf("missing collaborator config for %s", id)
		}
		switch cc.Provider {
		case ProviderAnthropic, ProviderOpenAI:
			if cc.Model == "" {
				return fmt.Errorf("collaborator %s: model is required for provider %s", id, cc.Provider)
			}
			if cc.APIKeyEnv == "" {
				return fmt.Errorf("collaborator %s: api_key_env is required for provider %s", id, cc.Provider)
			}
		case ProviderMock:
			// No further settings required.
		default:
			return fmt.Errorf("collaborator %s: unknown provider %q", id, cc.Provider)
		}
	}
	if c.Artifacts.Endpoint != "" && c.Artifacts.Bucket == "" {
		return fmt.Errorf("artifacts: bucket is required when endpoint is set")
	}
	return nil
}

// APIKey resolves a collaborator's API key from its configured environment
// variable. Empty when unset.
func (cc *CollaboratorConfig) APIKey() string {
	if cc.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(cc.APIKeyEnv)
}

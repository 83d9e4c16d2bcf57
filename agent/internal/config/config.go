package config

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultHTTPPort           = 8888
	DefaultGRPCPort           = 50051
	DefaultScrapeEndpointPath = "/metrics"
	DefaultMetricTTL          = 15 * time.Minute
	DefaultDeclarationPath    = "./metrics-declaration.yaml"
	DefaultStatsdPort         = 8125
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "json"
	DefaultAuthHeader         = "x-api-key"
)

// Config is the top-level runtime configuration of the scrape agent.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Server             ServerConfig             `yaml:"server"`
	Prometheus         PrometheusConfig         `yaml:"prometheus"`
	MetricsDeclaration MetricsDeclarationConfig `yaml:"metrics_declaration"`
	Scheduler          SchedulerConfig          `yaml:"scheduler"`
	AzureMonitor       AzureMonitorConfig       `yaml:"azure_monitor"`
	MetricSinks        MetricSinksConfig        `yaml:"metric_sinks"`
	Telemetry          TelemetryConfig          `yaml:"telemetry"`
}

// ServerConfig holds the listening ports of the agent.
type ServerConfig struct {
	// HTTPPort serves the scrape endpoint, the REST API and the live stream.
	HTTPPort int `yaml:"http_port"`

	// GRPCPort serves the gRPC health service. Zero disables it.
	GRPCPort int `yaml:"grpc_port"`

	// Auth protects the gRPC health service.
	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig configures API key authentication for the gRPC health service.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// Header is the metadata key carrying the API key.
	Header string `yaml:"header"`

	// KeyEnv is the name of the environment variable holding the expected key.
	KeyEnv string `yaml:"key_env"`
}

// Key returns the API key resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the lower-cased metadata key, defaulting to x-api-key.
func (a AuthConfig) EffectiveHeader() string {
	if a.Header == "" {
		return DefaultAuthHeader
	}
	return strings.ToLower(a.Header)
}

// PrometheusConfig controls the always-present exposition store.
type PrometheusConfig struct {
	// ScrapeEndpointPath is the HTTP path the Prometheus server scrapes.
	ScrapeEndpointPath string `yaml:"scrape_endpoint_path"`

	// MetricTTL is how long a collected value is served after its last update.
	MetricTTL time.Duration `yaml:"metric_ttl"`

	// EnableMetricTimestamps exports the collection time with every sample.
	EnableMetricTimestamps bool `yaml:"enable_metric_timestamps"`
}

// MetricsDeclarationConfig points at the metrics catalog.
type MetricsDeclarationConfig struct {
	Path string `yaml:"path"`
}

// SchedulerConfig tunes job execution.
type SchedulerConfig struct {
	// ExecutionTimeout bounds a single collection cycle. Zero means no bound.
	ExecutionTimeout time.Duration `yaml:"execution_timeout"`
}

// AzureMonitorConfig configures how Azure Monitor clients authenticate.
type AzureMonitorConfig struct {
	// ClientIDEnv and ClientSecretEnv name the environment variables holding a
	// service principal. When either is empty the default credential chain
	// (environment, managed identity, Azure CLI) is used instead.
	ClientIDEnv     string `yaml:"client_id_env"`
	ClientSecretEnv string `yaml:"client_secret_env"`

	Logging AzureMonitorLoggingConfig `yaml:"logging"`
}

// ClientID returns the service principal id resolved from the environment.
func (a AzureMonitorConfig) ClientID() string {
	if a.ClientIDEnv == "" {
		return ""
	}
	return os.Getenv(a.ClientIDEnv)
}

// ClientSecret returns the service principal secret resolved from the environment.
func (a AzureMonitorConfig) ClientSecret() string {
	if a.ClientSecretEnv == "" {
		return ""
	}
	return os.Getenv(a.ClientSecretEnv)
}

// AzureMonitorLoggingConfig enables request logging of the monitor clients.
type AzureMonitorLoggingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricSinksConfig lists the optional sinks. The exposition store is not
// listed here because it is always present.
type MetricSinksConfig struct {
	Statsd *StatsdSinkConfig `yaml:"statsd"`
	PubSub *PubSubSinkConfig `yaml:"pubsub"`
	Stream *StreamSinkConfig `yaml:"stream"`
}

// StatsdSinkConfig configures the StatsD push sink.
type StatsdSinkConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	MetricPrefix string `yaml:"metric_prefix"`
}

// PubSubSinkConfig configures the Google Cloud Pub/Sub sink.
type PubSubSinkConfig struct {
	ProjectID string `yaml:"project_id"`
	Topic     string `yaml:"topic"`

	// PublishTimeout bounds the wait for the server acknowledgement.
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

// StreamSinkConfig configures the WebSocket live stream at /ws/stream.
type StreamSinkConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TelemetryConfig controls the agent's own logging.
type TelemetryConfig struct {
	// LogLevel is one of: debug | info | warn | error | critical.
	LogLevel string `yaml:"log_level"`

	// LogFormat is one of: json | text.
	LogFormat string `yaml:"log_format"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config: read file")
	}
	return Parse(data)
}

// Parse decodes a YAML document, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "config: parse yaml")
	}
	applySinkDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, errors.Wrap(err, "config")
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			GRPCPort: DefaultGRPCPort,
		},
		Prometheus: PrometheusConfig{
			ScrapeEndpointPath:     DefaultScrapeEndpointPath,
			MetricTTL:              DefaultMetricTTL,
			EnableMetricTimestamps: true,
		},
		MetricsDeclaration: MetricsDeclarationConfig{Path: DefaultDeclarationPath},
		Telemetry: TelemetryConfig{
			LogLevel:  DefaultLogLevel,
			LogFormat: DefaultLogFormat,
		},
	}
}

func applySinkDefaults(cfg *Config) {
	if s := cfg.MetricSinks.Statsd; s != nil && s.Port == 0 {
		s.Port = DefaultStatsdPort
	}
	if p := cfg.MetricSinks.PubSub; p != nil && p.PublishTimeout == 0 {
		p.PublishTimeout = 10 * time.Second
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 {
		return errors.New("server.http_port must be positive")
	}
	if cfg.Server.GRPCPort < 0 {
		return errors.New("server.grpc_port must not be negative")
	}
	switch cfg.Server.Auth.Mode {
	case "apikey", "none", "":
	default:
		return errors.Newf("server.auth: unknown mode %q", cfg.Server.Auth.Mode)
	}
	if !strings.HasPrefix(cfg.Prometheus.ScrapeEndpointPath, "/") {
		return errors.Newf("prometheus.scrape_endpoint_path %q must start with /", cfg.Prometheus.ScrapeEndpointPath)
	}
	if cfg.Prometheus.MetricTTL <= 0 {
		return errors.New("prometheus.metric_ttl must be positive")
	}
	if cfg.MetricsDeclaration.Path == "" {
		return errors.New("metrics_declaration.path is required")
	}
	if cfg.Scheduler.ExecutionTimeout < 0 {
		return errors.New("scheduler.execution_timeout must not be negative")
	}
	if s := cfg.MetricSinks.Statsd; s != nil {
		if s.Host == "" {
			return errors.New("metric_sinks.statsd.host is required")
		}
		if s.Port <= 0 || s.Port > 65535 {
			return errors.Newf("metric_sinks.statsd.port %d out of range", s.Port)
		}
	}
	if p := cfg.MetricSinks.PubSub; p != nil {
		if p.ProjectID == "" || p.Topic == "" {
			return errors.New("metric_sinks.pubsub: project_id and topic are required")
		}
	}
	switch strings.ToLower(cfg.Telemetry.LogLevel) {
	case "debug", "info", "warn", "warning", "error", "critical":
	default:
		return errors.Newf("telemetry.log_level: unknown level %q", cfg.Telemetry.LogLevel)
	}
	switch cfg.Telemetry.LogFormat {
	case "json", "text":
	default:
		return errors.Newf("telemetry.log_format: unknown format %q", cfg.Telemetry.LogFormat)
	}
	return nil
}

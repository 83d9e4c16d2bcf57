// Package config loads and watches the agent runtime configuration (config.yaml).
//
// Top-level types:
//   - Config: full config tree parsed from YAML
//   - ServerConfig: http_port, grpc_port, auth (apikey|none) for the health service
//   - PrometheusConfig: scrape endpoint path, metric TTL, sample timestamps
//   - MetricsDeclarationConfig: path of the metrics catalog
//   - SchedulerConfig: optional per-execution timeout
//   - AzureMonitorConfig: service principal env names, request logging
//   - MetricSinksConfig: optional statsd, pubsub and stream sinks
//   - TelemetryConfig: log level and format
//
// Load(path) reads the YAML file, applies defaults (port 8888, grpc 50051,
// /metrics, 15m metric TTL, json logs), then validates required fields and enums.
//
// LoadEnv(paths...) reads .env files with godotenv so secrets referenced by
// *_env fields can be kept out of the YAML file.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange after every write. It handles the rename→create pattern used by
// atomic-save editors by re-adding the watch after each event.
package config

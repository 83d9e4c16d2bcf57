// Package telemetry holds the agent's own observability: logger construction
// and the Prometheus metrics describing scheduling, sinks and clients.
//
// LevelCritical extends log/slog with the severity used for contained job
// failures and sink outages. NewLogger renders it as CRITICAL in both the
// JSON and the text (charmbracelet/log) formats.
//
// Recorder decouples the components from Prometheus; Service is the real
// implementation and Nop discards everything.
package telemetry

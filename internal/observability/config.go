// Package observability provides OpenTelemetry tracing and metrics plus
// structured logging for all reviewd execution modes (CLI, HTTP server, MCP).
package observability

import "log/slog"

// AppMode identifies the execution mode of the binary.
type AppMode string

const (
	// ModeCLI is one-shot command execution.
	ModeCLI AppMode = "cli"
	// ModeServe is the long-running HTTP server.
	ModeServe AppMode = "serve"
	// ModeMCP is the MCP stdio server.
	ModeMCP AppMode = "mcp"
)

const (
	// defaultServiceName is the OTel resource service name.
	defaultServiceName = "reviewd"

	// defaultShutdownTimeoutSec bounds the telemetry flush on exit.
	defaultShutdownTimeoutSec = 5
)

// Config holds all observability configuration.
type Config struct {
	// ServiceName is the OTel resource service name.
	ServiceName string

	// ServiceVersion is the semantic version of the running binary.
	ServiceVersion string

	// Environment is the deployment environment ("production", "dev", ...).
	Environment string

	// Mode identifies how the binary was launched.
	Mode AppMode

	// OTLPEndpoint is the OTLP gRPC collector address. Empty disables
	// export; providers become no-op.
	OTLPEndpoint string

	// OTLPInsecure disables TLS for the OTLP gRPC connection.
	OTLPInsecure bool

	// SampleRatio is the trace sampling ratio in (0,1]. Zero selects
	// parent-based always-on sampling.
	SampleRatio float64

	// LogLevel controls the minimum slog severity.
	LogLevel slog.Level

	// LogJSON enables JSON-formatted log output.
	LogJSON bool

	// ShutdownTimeoutSec is the maximum seconds to wait for flush on exit.
	ShutdownTimeoutSec int
}

// DefaultConfig returns a Config suitable for zero-config startup.
func DefaultConfig() Config {
	return Config{
		ServiceName:        defaultServiceName,
		Mode:               ModeCLI,
		LogLevel:           slog.LevelInfo,
		ShutdownTimeoutSec: defaultShutdownTimeoutSec,
	}
}

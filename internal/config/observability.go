package config

// ObservabilityConfig holds OTLP trace export configuration.
//
// Tracing exports spans over OTLP HTTP to a local collector or agent.
// See internal/observability for the exporter setup.
type ObservabilityConfig struct {
	// Enabled turns trace export on (default: false)
	Enabled bool `mapstructure:"enabled"`
	// Endpoint is the OTLP HTTP endpoint (default: localhost:4318)
	Endpoint string `mapstructure:"endpoint"`
	// Environment is the deployment environment tag (default: dev)
	Environment string `mapstructure:"environment"`
	// ServiceName is the service name on exported spans (default: chalssak)
	ServiceName string `mapstructure:"service_name"`
}

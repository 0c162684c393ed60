package telemetry

import "fmt"

// Config bundles the telemetry settings for one featurectl process.
type Config struct {
	// ServiceName identifies the process in logs and metrics.
	ServiceName string

	// ServiceVersion is the build version, stamped at link time.
	ServiceVersion string

	Logging LoggingConfig
	Metrics MetricsConfig
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum level to emit: debug, info, warn, error or fatal.
	Level string

	// Format is "console" for human-readable output or "json".
	Format string

	// Output is "stdout", "stderr" or a file path.
	Output string

	// EnableCaller annotates each entry with its file:line origin.
	EnableCaller bool

	// TimeFormat is "rfc3339" or "unix".
	TimeFormat string
}

// MetricsConfig configures Prometheus metrics collection. A zero value
// disables collection entirely.
type MetricsConfig struct {
	Enabled bool

	// ListenAddress is where the metrics HTTP endpoint binds.
	ListenAddress string

	// Path is the scrape path, "/metrics" when empty.
	Path string

	// Namespace prefixes every metric name.
	Namespace string

	// DefaultHistogramBuckets override prometheus.DefBuckets for the
	// duration histograms.
	DefaultHistogramBuckets []float64
}

// DefaultConfig returns the settings an interactive CLI run uses:
// console logs on stderr at info level, metrics off.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "featurectl",
		ServiceVersion: "dev",
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stderr",
			TimeFormat: "rfc3339",
		},
		Metrics: MetricsConfig{
			ListenAddress:           ":9090",
			Path:                    "/metrics",
			Namespace:               "featurectl",
			DefaultHistogramBuckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
	}
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Logging.Format)
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddress == "" {
		return fmt.Errorf("metrics listen address is required when metrics are enabled")
	}
	return nil
}

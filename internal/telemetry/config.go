// Package telemetry is the ambient stack: structured logging, tracing and
// metrics wired around the transaction engine, adapted from the teacher's
// pkg/telemetry for lattice's own vocabulary (resources and transactions
// rather than runs and plan units).
package telemetry

import "fmt"

// LoggingConfig controls Logger construction.
type LoggingConfig struct {
	Level          string // trace|debug|info|warn|error|fatal
	Format         string // json|console
	Output         string // stdout|stderr|file path
	TimeFormat     string // rfc3339|unix|unixms|unixmicro
	EnableCaller   bool
	EnableSampling bool
	SamplingInitial    int
	SamplingThereafter int
}

// TracingConfig controls Tracer construction.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    string // stdout|otlp
	OTLPEndpoint string
	Insecure    bool
	SampleRatio float64
}

// MetricsConfig controls Metrics construction.
type MetricsConfig struct {
	Enabled   bool
	Namespace string
	Subsystem string
}

// Config bundles the three ambient concerns.
type Config struct {
	Logging LoggingConfig
	Tracing TracingConfig
	Metrics MetricsConfig
}

// DefaultConfig returns sane defaults for local development.
func DefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stdout",
			TimeFormat: "rfc3339",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "latticectl",
			Exporter:    "stdout",
			SampleRatio: 1.0,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "lattice",
			Subsystem: "txn",
		},
	}
}

// ProductionConfig favors JSON output, OTLP export and a low trace sample
// ratio.
func ProductionConfig() Config {
	cfg := DefaultConfig()
	cfg.Logging.Format = "json"
	cfg.Logging.Level = "info"
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "otlp"
	cfg.Tracing.SampleRatio = 0.1
	return cfg
}

// DevelopmentConfig favors console output and a stdout trace exporter.
func DevelopmentConfig() Config {
	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"
	cfg.Logging.EnableCaller = true
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "stdout"
	return cfg
}

// Validate reports a configuration error a caller should surface before
// starting the engine.
func (c Config) Validate() error {
	switch c.Logging.Format {
	case "json", "console", "":
	default:
		return fmt.Errorf("telemetry: unknown logging format %q", c.Logging.Format)
	}
	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case "stdout", "otlp":
		default:
			return fmt.Errorf("telemetry: unknown tracing exporter %q", c.Tracing.Exporter)
		}
		if c.Tracing.Exporter == "otlp" && c.Tracing.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry: otlp exporter requires an endpoint")
		}
	}
	return nil
}

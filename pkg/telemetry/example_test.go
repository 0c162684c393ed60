package telemetry_test

import (
	"fmt"
	"time"

	"github.com/featurectl/featurectl/pkg/telemetry"
)

// Example_basicSetup demonstrates basic telemetry setup.
func Example_basicSetup() {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceName = "featurectl"
	cfg.ServiceVersion = "1.0.0"

	logger, err := telemetry.NewLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}

	logger.Info("Application started")

	// Output can vary, so we don't specify output for this example
}

// Example_structuredLogging demonstrates structured logging features.
func Example_structuredLogging() {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Output = "stdout"

	logger, _ := telemetry.NewLogger(cfg.Logging)

	// Component-specific logger
	engineLog := logger.NewComponentLogger("engine")

	// Add context fields
	engineLog = engineLog.WithFields(map[string]interface{}{
		"run_id":   "run-123",
		"resource": "feature.auth_login",
	})

	engineLog.Debug("Planning resource")
	engineLog.Info("Resource converged")
}

// Example_metrics demonstrates recording apply metrics.
func Example_metrics() {
	cfg := telemetry.MetricsConfig{
		Enabled:       true,
		ListenAddress: ":9090",
		Path:          "/metrics",
		Namespace:     "featurectl",
	}

	metrics, err := telemetry.NewMetrics(cfg)
	if err != nil {
		panic(err)
	}

	metrics.RecordApplyStarted("auto")
	metrics.RecordResource("create", "implemented", 42*time.Second)
	metrics.RecordAgentCall("claude", true, 40*time.Second)
	metrics.RecordVerification("basic", true, 1.0)
	metrics.RecordApplyCompleted("auto", "success", time.Minute)

	fmt.Println("metrics recorded")
	// Output: metrics recorded
}

// Example_disabledMetrics shows that a disabled config yields no-op metrics.
func Example_disabledMetrics() {
	metrics, err := telemetry.NewMetrics(telemetry.MetricsConfig{})
	if err != nil {
		panic(err)
	}

	// Safe to call, records nothing.
	metrics.RecordError("transient")

	fmt.Println("no-op")
	// Output: no-op
}

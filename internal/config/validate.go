package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable. Violations here are
// programmer/operator errors and abort construction.
func (c *Config) Validate() error {
	if err := c.validatePool(); err != nil {
		return err
	}
	if err := c.validateTiming(); err != nil {
		return err
	}
	if err := c.validateCorrelation(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateMetrics(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePool() error {
	if c.Pool.WorkerCount <= 0 {
		return errors.New("pool.worker_count must be at least 1")
	}
	if strings.TrimSpace(c.Pool.WorkerBinary) == "" {
		return errors.New("pool.worker_binary must be set")
	}
	if c.Pool.FailureThreshold <= 0 {
		return errors.New("pool.failure_threshold must be at least 1")
	}
	if err := ensurePositive(map[string]int{
		"pool.startup_timeout":    c.Pool.StartupTimeout,
		"pool.acquire_timeout_ms": c.Pool.AcquireTimeoutMS,
		"pool.response_timeout_ms": c.Pool.ResponseTimeout,
		"pool.health_interval_ms": c.Pool.HealthIntervalMS,
		"pool.health_timeout_ms":  c.Pool.HealthTimeoutMS,
		"pool.restart_backoff_ms": c.Pool.RestartBackoffMS,
		"pool.drain_timeout":      c.Pool.DrainTimeout,
		"pool.target_latency_ms":  c.Pool.TargetLatencyMS,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateTiming() error {
	if c.Timing.CorrectionGain <= 0 || c.Timing.CorrectionGain >= 1 {
		return errors.New("timing.correction_gain must be in (0, 1); full correction oscillates")
	}
	if c.Timing.MaxDriftMS <= 0 {
		return errors.New("timing.max_drift_ms must be positive")
	}
	if c.Timing.TargetPrecisionMS <= 0 {
		return errors.New("timing.target_precision_ms must be positive")
	}
	if c.Timing.MinSamples <= 0 {
		return errors.New("timing.min_samples must be at least 1")
	}
	if c.Timing.DriftWindow < c.Timing.MinSamples {
		return fmt.Errorf("timing.drift_window (%d) must be >= timing.min_samples (%d)", c.Timing.DriftWindow, c.Timing.MinSamples)
	}
	if c.Timing.RingCapacity < c.Timing.DriftWindow {
		return fmt.Errorf("timing.ring_capacity (%d) must be >= timing.drift_window (%d)", c.Timing.RingCapacity, c.Timing.DriftWindow)
	}
	return nil
}

func (c *Config) validateCorrelation() error {
	if c.Correlation.MinConfidence < 0 || c.Correlation.MinConfidence > 1 {
		return errors.New("correlation.min_confidence must be between 0 and 1")
	}
	if c.Correlation.PatternRingCapacity <= 0 {
		return errors.New("correlation.pattern_ring_capacity must be at least 1")
	}
	if c.Correlation.DefaultWindowMS <= 0 {
		return errors.New("correlation.default_window_ms must be positive")
	}
	for kind, ms := range c.Correlation.WindowsMS {
		if strings.TrimSpace(kind) == "" {
			return errors.New("correlation.windows_ms contains an empty pattern kind")
		}
		if ms <= 0 {
			return fmt.Errorf("correlation.windows_ms[%s] must be positive", kind)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateMetrics() error {
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Bind) == "" {
		return errors.New("metrics.bind must be set when metrics.enabled is true")
	}
	return nil
}

func ensurePositive(values map[string]int) error {
	for name, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

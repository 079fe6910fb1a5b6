// Package testsupport provides shared helpers for courtside tests: temp-dir
// configs, an in-memory fake worker backend, and store builders.
package testsupport

import (
	"path/filepath"
	"testing"

	"courtside/internal/config"
)

// ConfigOption customizes the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test
// and timeouts short enough for race-stress tests to finish quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = filepath.Join(base, "data")
	cfg.LogDir = filepath.Join(base, "logs")
	cfg.SocketPath = filepath.Join(base, "courtsided.sock")

	cfg.Pool.WorkerCount = 2
	cfg.Pool.StartupTimeout = 2
	cfg.Pool.AcquireTimeoutMS = 200
	cfg.Pool.ResponseTimeout = 500
	cfg.Pool.HealthIntervalMS = 100
	cfg.Pool.HealthTimeoutMS = 100
	cfg.Pool.FailureThreshold = 2
	cfg.Pool.RestartBackoffMS = 50
	cfg.Pool.DrainTimeout = 1

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithWorkerCount overrides the pool size on the test config.
func WithWorkerCount(n int) ConfigOption {
	return func(c *config.Config) { c.Pool.WorkerCount = n }
}

// WithAcquireTimeout overrides the bounded acquire wait, in milliseconds.
func WithAcquireTimeout(ms int) ConfigOption {
	return func(c *config.Config) { c.Pool.AcquireTimeoutMS = ms }
}

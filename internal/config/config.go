package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and socket configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	SocketPath string `toml:"socket_path"`
}

// Pool contains worker pool sizing and supervision timeouts.
type Pool struct {
	WorkerCount      int      `toml:"worker_count"`
	WorkerBinary     string   `toml:"worker_binary"`
	WorkerArgs       []string `toml:"worker_args"`
	StartupTimeout   int      `toml:"startup_timeout"`    // seconds
	AcquireTimeoutMS int      `toml:"acquire_timeout_ms"` // bounded wait for a ready worker
	ResponseTimeout  int      `toml:"response_timeout_ms"`
	HealthIntervalMS int      `toml:"health_interval_ms"` // per-worker probe cadence
	HealthTimeoutMS  int      `toml:"health_timeout_ms"`
	FailureThreshold int      `toml:"failure_threshold"` // consecutive failures before restart
	RestartBackoffMS int      `toml:"restart_backoff_ms"`
	DrainTimeout     int      `toml:"drain_timeout"` // seconds to let in-flight requests finish on shutdown
	TargetLatencyMS  int      `toml:"target_latency_ms"`
}

// Timing contains drift measurement and correction tuning.
type Timing struct {
	DriftWindow           int     `toml:"drift_window"` // samples averaged per correction
	MinSamples            int     `toml:"min_samples"`
	CorrectionGain        float64 `toml:"correction_gain"` // < 1, partial correction
	CorrectionThresholdMS float64 `toml:"correction_threshold_ms"`
	MaxDriftMS            float64 `toml:"max_drift_ms"` // drift at which quality score reaches zero
	TargetPrecisionMS     float64 `toml:"target_precision_ms"`
	RingCapacity          int     `toml:"ring_capacity"`
}

// Correlation contains cross-modal matching tuning.
type Correlation struct {
	MinConfidence       float64        `toml:"min_confidence"`
	PatternRingCapacity int            `toml:"pattern_ring_capacity"`
	DefaultWindowMS     int            `toml:"default_window_ms"`
	WindowsMS           map[string]int `toml:"windows_ms"` // per pattern kind
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Metrics contains configuration for the optional metrics listener.
type Metrics struct {
	Enabled bool   `toml:"enabled"`
	Bind    string `toml:"bind"`
}

// Config is the root configuration shared by the daemon and CLI.
type Config struct {
	Paths       `toml:"paths"`
	Pool        Pool        `toml:"pool"`
	Timing      Timing      `toml:"timing"`
	Correlation Correlation `toml:"correlation"`
	Logging     Logging     `toml:"logging"`
	Metrics     Metrics     `toml:"metrics"`
}

// DefaultConfigPath returns the canonical config file location.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "courtside", "config.toml"), nil
}

// Load reads configuration from path, falling back to the COURTSIDE_CONFIG
// environment variable and then the default location. A missing file yields
// defaults; a malformed file is an error.
func Load(path string) (*Config, string, error) {
	resolved, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", err
	}

	cfg := Default()
	data, err := os.ReadFile(resolved)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, resolved, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// Defaults apply when no file exists.
	default:
		return nil, resolved, fmt.Errorf("read config %s: %w", resolved, err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, resolved, err
	}
	return &cfg, resolved, nil
}

func resolveConfigPath(path string) (string, error) {
	candidate := strings.TrimSpace(path)
	if candidate == "" {
		candidate = strings.TrimSpace(os.Getenv("COURTSIDE_CONFIG"))
	}
	if candidate == "" {
		def, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		candidate = def
	}
	return expandPath(candidate)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand %q: %w", path, err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Clean(trimmed), nil
}

func (c *Config) normalize() {
	c.DataDir, _ = expandPath(c.DataDir)
	c.LogDir, _ = expandPath(c.LogDir)
	c.SocketPath, _ = expandPath(c.SocketPath)
	if c.SocketPath == "" && c.DataDir != "" {
		c.SocketPath = filepath.Join(c.DataDir, "courtsided.sock")
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
}

// EnsureDirectories creates the directories the daemon writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.DataDir, c.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// WriteSample writes the embedded sample configuration to path.
func WriteSample(path string) error {
	resolved, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(resolved); err == nil {
		return fmt.Errorf("config file already exists at %s", resolved)
	}
	return os.WriteFile(resolved, []byte(sampleConfig), 0o644)
}

// Duration helpers convert the integer TOML knobs into time.Duration values.

func (p Pool) StartupTimeoutDuration() time.Duration {
	return time.Duration(p.StartupTimeout) * time.Second
}

func (p Pool) AcquireTimeout() time.Duration {
	return time.Duration(p.AcquireTimeoutMS) * time.Millisecond
}

func (p Pool) ResponseTimeoutDuration() time.Duration {
	return time.Duration(p.ResponseTimeout) * time.Millisecond
}

func (p Pool) HealthIntervalDuration() time.Duration {
	return time.Duration(p.HealthIntervalMS) * time.Millisecond
}

func (p Pool) HealthTimeout() time.Duration {
	return time.Duration(p.HealthTimeoutMS) * time.Millisecond
}

func (p Pool) RestartBackoff() time.Duration {
	return time.Duration(p.RestartBackoffMS) * time.Millisecond
}

func (p Pool) DrainTimeoutDuration() time.Duration {
	return time.Duration(p.DrainTimeout) * time.Second
}

func (p Pool) TargetLatency() time.Duration {
	return time.Duration(p.TargetLatencyMS) * time.Millisecond
}

func (t Timing) CorrectionThreshold() time.Duration {
	return time.Duration(t.CorrectionThresholdMS * float64(time.Millisecond))
}

func (t Timing) MaxDrift() time.Duration {
	return time.Duration(t.MaxDriftMS * float64(time.Millisecond))
}

func (t Timing) TargetPrecision() time.Duration {
	return time.Duration(t.TargetPrecisionMS * float64(time.Millisecond))
}

// Window returns the correlation window for a pattern kind, falling back to
// the default window when the kind has no explicit entry.
func (c Correlation) Window(kind string) time.Duration {
	if ms, ok := c.WindowsMS[kind]; ok && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return time.Duration(c.DefaultWindowMS) * time.Millisecond
}

// MaxWindow returns the largest configured correlation window. Patterns older
// than this are prunable from stream ring buffers.
func (c Correlation) MaxWindow() time.Duration {
	max := time.Duration(c.DefaultWindowMS) * time.Millisecond
	for _, ms := range c.WindowsMS {
		if d := time.Duration(ms) * time.Millisecond; d > max {
			max = d
		}
	}
	return max
}

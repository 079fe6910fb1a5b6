package timing

import (
	"sync/atomic"
	"time"

	"courtside/internal/config"
)

// Tuning holds the drift-correction parameters. Instances are immutable;
// hot reload swaps the whole struct.
type Tuning struct {
	Window          int
	MinSamples      int
	Gain            float64
	Threshold       time.Duration
	MaxDrift        time.Duration
	TargetPrecision time.Duration
}

// TuningFromConfig converts the config section into corrector tuning.
func TuningFromConfig(cfg config.Timing) Tuning {
	return Tuning{
		Window:          cfg.DriftWindow,
		MinSamples:      cfg.MinSamples,
		Gain:            cfg.CorrectionGain,
		Threshold:       cfg.CorrectionThreshold(),
		MaxDrift:        cfg.MaxDrift(),
		TargetPrecision: cfg.TargetPrecision(),
	}
}

// Corrector turns a stream's recent drift samples into a bounded timestamp
// correction. Safe for concurrent use; tuning swaps are atomic.
type Corrector struct {
	tuning atomic.Pointer[Tuning]
}

// NewCorrector creates a corrector with the given tuning.
func NewCorrector(t Tuning) *Corrector {
	c := &Corrector{}
	c.tuning.Store(&t)
	return c
}

// SetTuning replaces the tuning parameters (config hot reload).
func (c *Corrector) SetTuning(t Tuning) {
	c.tuning.Store(&t)
}

// Tuning returns the active parameters.
func (c *Corrector) Tuning() Tuning {
	return *c.tuning.Load()
}

// verdict is the corrector's output for one observation.
type verdict struct {
	meanDrift    time.Duration
	correction   time.Duration
	quality      float64
	withinTarget bool
	acted        bool
}

// evaluate averages the most recent window of drift samples. Below the
// minimum sample count it is a no-op, not an error. The correction is
// partial: -meanDrift * gain, converging asymptotically by design.
func (c *Corrector) evaluate(drift *ring) verdict {
	t := c.tuning.Load()
	if drift.len() < t.MinSamples {
		return verdict{}
	}

	m := mean(drift.recent(t.Window))
	abs := m
	if abs < 0 {
		abs = -abs
	}

	v := verdict{
		meanDrift:    m,
		quality:      1 - float64(abs)/float64(t.MaxDrift),
		withinTarget: abs <= t.TargetPrecision,
		acted:        true,
	}
	if v.quality < 0 {
		v.quality = 0
	}
	if abs > t.Threshold {
		v.correction = -time.Duration(float64(m) * t.Gain)
	}
	return v
}

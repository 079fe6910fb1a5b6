package timing

import (
	"sync"
	"time"

	"courtside/internal/clock"
)

// Modality distinguishes the two stream families the correlator can link.
type Modality int

const (
	ModalityAudio Modality = iota
	ModalityVisual
)

func (m Modality) String() string {
	switch m {
	case ModalityAudio:
		return "audio"
	case ModalityVisual:
		return "visual"
	default:
		return "unknown"
	}
}

// ParseModality maps the wire spelling back to a Modality.
func ParseModality(s string) (Modality, bool) {
	switch s {
	case "audio":
		return ModalityAudio, true
	case "visual":
		return ModalityVisual, true
	default:
		return 0, false
	}
}

// StreamConfig is the caller-supplied configuration for one stream.
type StreamConfig struct {
	// ExpectedRate is the nominal frame rate in frames per second.
	ExpectedRate float64
	// LatencyOffset is a static compensation added to every reported
	// timestamp (capture pipeline delay).
	LatencyOffset time.Duration
}

// Stream tracks timing state for one registered stream. Frames for a stream
// are observed from a single path, but snapshots are read concurrently, so
// all state is mutex-guarded.
type Stream struct {
	id       string
	modality Modality
	cfg      StreamConfig

	mu           sync.Mutex
	lastReported clock.Timestamp
	offset       time.Duration // accumulated drift corrections
	drift        *ring
	quality      float64
	withinTarget bool
	frames       uint64
}

// ID returns the stream id.
func (s *Stream) ID() string { return s.id }

// Modality returns the stream's modality.
func (s *Stream) Modality() Modality { return s.modality }

// Observation is the enriched timing result for one frame.
type Observation struct {
	StreamID              string
	Interval              time.Duration
	Expected              time.Duration
	Drift                 time.Duration
	MeanDrift             time.Duration
	Correction            time.Duration
	CorrectedTimestamp    clock.Timestamp
	QualityScore          float64
	WithinTargetPrecision bool
	Samples               int
}

// observe folds one frame timestamp into the stream's timing state. Drift is
// measured on the corrected timeline: the accumulated offset shifts each
// incoming frame but not the stored previous timestamp, so a correction
// applied this round narrows the next round's interval and the servo settles
// at a residual of meanDrift/(1+gain) instead of re-correcting the full
// excess forever.
func (s *Stream) observe(corrector *Corrector, frameTS clock.Timestamp) Observation {
	s.mu.Lock()
	defer s.mu.Unlock()

	expected := time.Duration(float64(time.Second) / s.cfg.ExpectedRate)
	reported := frameTS + s.cfg.LatencyOffset + s.offset
	interval := reported - s.lastReported
	drift := interval - expected
	s.drift.push(drift)
	s.frames++

	v := corrector.evaluate(s.drift)
	corrected := reported
	if v.acted {
		s.quality = v.quality
		s.withinTarget = v.withinTarget
		if v.correction != 0 {
			s.offset += v.correction
			corrected += v.correction
		}
	}
	s.lastReported = reported

	return Observation{
		StreamID:              s.id,
		Interval:              interval,
		Expected:              expected,
		Drift:                 drift,
		MeanDrift:             v.meanDrift,
		Correction:            v.correction,
		CorrectedTimestamp:    corrected,
		QualityScore:          s.quality,
		WithinTargetPrecision: s.withinTarget,
		Samples:               s.drift.len(),
	}
}

// Snapshot is a read-only view of a stream for stats reporting.
type StreamSnapshot struct {
	ID                    string        `json:"id"`
	Modality              string        `json:"modality"`
	ExpectedRate          float64       `json:"expected_rate"`
	Frames                uint64        `json:"frames"`
	QualityScore          float64       `json:"quality_score"`
	WithinTargetPrecision bool          `json:"within_target_precision"`
	AccumulatedCorrection time.Duration `json:"accumulated_correction"`
	DriftSamples          int           `json:"drift_samples"`
}

// Snapshot captures the stream's current timing state.
func (s *Stream) Snapshot() StreamSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StreamSnapshot{
		ID:                    s.id,
		Modality:              s.modality.String(),
		ExpectedRate:          s.cfg.ExpectedRate,
		Frames:                s.frames,
		QualityScore:          s.quality,
		WithinTargetPrecision: s.withinTarget,
		AccumulatedCorrection: s.offset,
		DriftSamples:          s.drift.len(),
	}
}

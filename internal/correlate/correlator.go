package correlate

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"courtside/internal/config"
	"courtside/internal/events"
	"courtside/internal/logging"
	"courtside/internal/timing"
)

var (
	// ErrLinkNotFound is returned when Unlink references an unknown link.
	ErrLinkNotFound = errors.New("cross-modal link not found")

	// ErrLinkExists is returned when the same stream pair is linked twice.
	ErrLinkExists = errors.New("streams already linked")

	// ErrModalityMismatch is returned when a link pairs two streams of the
	// same modality.
	ErrModalityMismatch = errors.New("link requires one audio and one visual stream")
)

// Directory resolves stream ids to their timing records; satisfied by
// *timing.Registry.
type Directory interface {
	Lookup(id string) (*timing.Stream, error)
}

// Tuning holds the correlation parameters subject to hot reload.
type Tuning struct {
	MinConfidence float64
	DefaultWindow time.Duration
	Windows       map[string]time.Duration
}

// TuningFromConfig converts the config section into correlator tuning.
func TuningFromConfig(cfg config.Correlation) Tuning {
	windows := make(map[string]time.Duration, len(cfg.WindowsMS))
	for kind := range cfg.WindowsMS {
		windows[kind] = cfg.Window(kind)
	}
	return Tuning{
		MinConfidence: cfg.MinConfidence,
		DefaultWindow: time.Duration(cfg.DefaultWindowMS) * time.Millisecond,
		Windows:       windows,
	}
}

// Link pairs one audio and one visual stream. The windows map holds the
// pattern-kind templates recognized for this link; an empty map accepts
// every kind at the tuning's default window.
type Link struct {
	ID       string
	AudioID  string
	VisualID string
	windows  map[string]time.Duration

	matches    atomic.Uint64
	confidence atomicFloat
}

// LinkSnapshot is a read-only view of a link for stats reporting.
type LinkSnapshot struct {
	ID                string  `json:"id"`
	AudioID           string  `json:"audio_id"`
	VisualID          string  `json:"visual_id"`
	Matches           uint64  `json:"matches"`
	RunningConfidence float64 `json:"running_confidence"`
}

// Correlator owns the links and per-stream pattern ring buffers.
type Correlator struct {
	dir     Directory
	logger  *slog.Logger
	bus     *events.Bus
	ringCap int
	tuning  atomic.Pointer[Tuning]

	mu       sync.RWMutex
	links    map[string]*Link
	byStream map[string][]*Link
	rings    map[string]*patternRing
}

// Option configures optional correlator collaborators.
type Option func(*Correlator)

// WithBus publishes pattern and correlation events to the given bus.
func WithBus(bus *events.Bus) Option {
	return func(c *Correlator) { c.bus = bus }
}

// New constructs a correlator over the given stream directory.
func New(dir Directory, cfg config.Correlation, logger *slog.Logger, opts ...Option) *Correlator {
	c := &Correlator{
		dir:      dir,
		logger:   logging.WithComponent(logger, "correlate"),
		ringCap:  cfg.PatternRingCapacity,
		links:    make(map[string]*Link),
		byStream: make(map[string][]*Link),
		rings:    make(map[string]*patternRing),
	}
	t := TuningFromConfig(cfg)
	c.tuning.Store(&t)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetTuning replaces the correlation parameters (config hot reload).
func (c *Correlator) SetTuning(t Tuning) {
	c.tuning.Store(&t)
}

// Link registers a cross-modal pair. Both streams must be registered, one
// audio and one visual, and the pair must not already be linked.
func (c *Correlator) Link(audioID, visualID string, windows map[string]time.Duration) (*Link, error) {
	audio, err := c.dir.Lookup(audioID)
	if err != nil {
		return nil, err
	}
	visual, err := c.dir.Lookup(visualID)
	if err != nil {
		return nil, err
	}
	if audio.Modality() != timing.ModalityAudio || visual.Modality() != timing.ModalityVisual {
		return nil, fmt.Errorf("%w: %s is %s, %s is %s",
			ErrModalityMismatch, audioID, audio.Modality(), visualID, visual.Modality())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range c.byStream[audioID] {
		if l.VisualID == visualID {
			return nil, fmt.Errorf("%w: %s <-> %s", ErrLinkExists, audioID, visualID)
		}
	}

	link := &Link{
		ID:       uuid.NewString(),
		AudioID:  audioID,
		VisualID: visualID,
		windows:  cloneWindows(windows),
	}
	c.links[link.ID] = link
	c.byStream[audioID] = append(c.byStream[audioID], link)
	c.byStream[visualID] = append(c.byStream[visualID], link)
	c.logger.Info("streams linked",
		logging.String("audio", audioID),
		logging.String("visual", visualID),
		logging.Int("templates", len(link.windows)))
	return link, nil
}

// Unlink removes a link by id.
func (c *Correlator) Unlink(linkID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	link, ok := c.links[linkID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrLinkNotFound, linkID)
	}
	c.removeLinkLocked(link)
	return nil
}

// StreamStopped tears down every link referencing the stream and drops its
// pattern buffer. Wired to the registry's stop callbacks so invalidation is
// immediate; pattern observations racing the teardown are discarded.
func (c *Correlator) StreamStopped(streamID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, link := range append([]*Link{}, c.byStream[streamID]...) {
		c.removeLinkLocked(link)
	}
	delete(c.rings, streamID)
}

func (c *Correlator) removeLinkLocked(link *Link) {
	delete(c.links, link.ID)
	for _, streamID := range []string{link.AudioID, link.VisualID} {
		kept := c.byStream[streamID][:0]
		for _, l := range c.byStream[streamID] {
			if l.ID != link.ID {
				kept = append(kept, l)
			}
		}
		if len(kept) == 0 {
			delete(c.byStream, streamID)
		} else {
			c.byStream[streamID] = kept
		}
	}
}

// ObservePattern records a pattern for its stream and attempts a cross-modal
// match against every linked counterpart. The best match clearing the
// minimum combined confidence is returned; absence of a match is a normal
// outcome.
func (c *Correlator) ObservePattern(p Pattern) (*Correlation, bool) {
	if _, err := c.dir.Lookup(p.StreamID); err != nil {
		// Stream stopped while the frame was in flight; discard.
		return nil, false
	}
	t := c.tuning.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	ring, ok := c.rings[p.StreamID]
	if !ok {
		ring = newPatternRing(c.ringCap)
		c.rings[p.StreamID] = ring
	}
	ring.push(p)
	c.publish(events.KindPatternObserved, p.StreamID, p)

	var best *Correlation
	for _, link := range c.byStream[p.StreamID] {
		window, ok := link.window(p.Kind, t)
		if !ok {
			continue
		}
		counterpartID := link.AudioID
		if counterpartID == p.StreamID {
			counterpartID = link.VisualID
		}
		counterpart, ok := c.rings[counterpartID]
		if !ok {
			continue
		}

		cutoff := p.Timestamp - window
		var linkBest *Correlation
		counterpart.scan(cutoff, func(candidate Pattern) {
			if candidate.Kind != p.Kind {
				return
			}
			delta := p.Timestamp - candidate.Timestamp
			if delta < 0 {
				delta = -delta
			}
			if delta > window {
				return
			}
			combined := combinedConfidence(p.Confidence, candidate.Confidence, delta, window)
			if combined < t.MinConfidence {
				return
			}
			if linkBest == nil || combined > linkBest.Confidence {
				linkBest = &Correlation{
					Source:         p,
					Target:         candidate,
					TimeDifference: delta,
					Confidence:     combined,
				}
			}
		})
		if linkBest == nil {
			continue
		}

		// Only the link that produced the match is credited.
		link.matches.Add(1)
		link.confidence.observe(linkBest.Confidence)
		if best == nil || linkBest.Confidence > best.Confidence {
			best = linkBest
		}
	}

	if best == nil {
		return nil, false
	}
	c.publish(events.KindCorrelationFound, p.StreamID, *best)
	return best, true
}

// Snapshots returns a view of every active link.
func (c *Correlator) Snapshots() []LinkSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]LinkSnapshot, 0, len(c.links))
	for _, link := range c.links {
		out = append(out, LinkSnapshot{
			ID:                link.ID,
			AudioID:           link.AudioID,
			VisualID:          link.VisualID,
			Matches:           link.matches.Load(),
			RunningConfidence: link.confidence.load(),
		})
	}
	return out
}

// window resolves the correlation window for a pattern kind on this link.
// With explicit templates, unknown kinds do not correlate at all.
func (l *Link) window(kind string, t *Tuning) (time.Duration, bool) {
	if len(l.windows) > 0 {
		w, ok := l.windows[kind]
		return w, ok
	}
	if w, ok := t.Windows[kind]; ok {
		return w, true
	}
	return t.DefaultWindow, true
}

// combinedConfidence blends the two pattern confidences with temporal
// proximity: the geometric mean scaled by how close the patterns are inside
// the window.
func combinedConfidence(source, target float64, delta, window time.Duration) float64 {
	proximity := 1 - float64(delta)/float64(window)
	return math.Sqrt(source*target) * proximity
}

func (c *Correlator) publish(kind events.Kind, streamID string, detail any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(events.Event{Kind: kind, StreamID: streamID, Detail: detail})
}

func cloneWindows(in map[string]time.Duration) map[string]time.Duration {
	out := make(map[string]time.Duration, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// atomicFloat is an exponentially-weighted running confidence.
type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) observe(value float64) {
	const alpha = 0.2
	for {
		old := f.bits.Load()
		current := math.Float64frombits(old)
		next := value
		if old != 0 {
			next = current*(1-alpha) + value*alpha
		}
		if f.bits.CompareAndSwap(old, math.Float64bits(next)) {
			return
		}
	}
}

func (f *atomicFloat) load() float64 {
	return math.Float64frombits(f.bits.Load())
}

// Package metrics exposes pool, timing and result figures in Prometheus
// text exposition format over a local HTTP listener.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"courtside/internal/events"
	"courtside/internal/logging"
	"courtside/internal/pool"
	"courtside/internal/store"
	"courtside/internal/timing"
)

// Sources supplies the snapshot callbacks the exporter reads on each scrape.
// Nil members are skipped.
type Sources struct {
	Pool      func() pool.Stats
	Streams   func() []timing.StreamSnapshot
	Aggregate func(ctx context.Context) (store.AggregateStats, error)
	Bus       func() events.Stats
}

// Handler builds the /metrics handler over the given sources.
func Handler(src Sources, logger *slog.Logger) http.Handler {
	logger = logging.WithComponent(logger, "metrics")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		families := collect(r.Context(), src, logger)
		w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
		for _, mf := range families {
			if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
				logger.Warn("write metric family", logging.Error(err))
				return
			}
		}
	})
}

func collect(ctx context.Context, src Sources, logger *slog.Logger) []*dto.MetricFamily {
	var families []*dto.MetricFamily

	if src.Pool != nil {
		stats := src.Pool()
		families = append(families,
			gauge("courtside_workers", "Supervised worker processes.", float64(len(stats.Workers))),
			gauge("courtside_workers_ready", "Workers idle and ready for frames.", float64(stats.Ready)),
			gauge("courtside_workers_busy", "Workers currently processing a frame.", float64(stats.Busy)),
		)
	}
	if src.Aggregate != nil {
		stats, err := src.Aggregate(ctx)
		if err != nil {
			logger.Warn("aggregate stats unavailable", logging.Error(err))
		} else {
			families = append(families,
				counter("courtside_frames_total", "Frames dispatched since the database was created.", float64(stats.Frames)),
				gauge("courtside_frame_success_rate", "Fraction of frames processed successfully.", stats.SuccessRate),
				gauge("courtside_frame_latency_avg_ms", "Mean end-to-end latency of successful frames.",
					float64(stats.AvgLatency)/float64(time.Millisecond)),
				gauge("courtside_frame_compliance_rate", "Fraction of successful frames within the latency target.", stats.ComplianceRate),
			)
		}
	}
	if src.Streams != nil {
		quality := family("courtside_stream_quality", "Per-stream synchronization quality score.", dto.MetricType_GAUGE)
		frames := family("courtside_stream_frames_total", "Frames observed per stream.", dto.MetricType_COUNTER)
		for _, snap := range src.Streams() {
			labels := []*dto.LabelPair{
				{Name: proto.String("stream"), Value: proto.String(snap.ID)},
				{Name: proto.String("modality"), Value: proto.String(snap.Modality)},
			}
			quality.Metric = append(quality.Metric, &dto.Metric{
				Label: labels,
				Gauge: &dto.Gauge{Value: proto.Float64(snap.QualityScore)},
			})
			frames.Metric = append(frames.Metric, &dto.Metric{
				Label: labels,
				Counter: &dto.Counter{Value: proto.Float64(float64(snap.Frames))},
			})
		}
		families = append(families, quality, frames)
	}
	if src.Bus != nil {
		stats := src.Bus()
		families = append(families,
			counter("courtside_events_published_total", "Events published on the internal bus.", float64(stats.Published)),
			counter("courtside_events_dropped_total", "Events dropped due to slow subscribers.", float64(stats.Dropped)),
		)
	}
	return families
}

func family(name, help string, kind dto.MetricType) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: kind.Enum(),
	}
}

func gauge(name, help string, value float64) *dto.MetricFamily {
	mf := family(name, help, dto.MetricType_GAUGE)
	mf.Metric = []*dto.Metric{{Gauge: &dto.Gauge{Value: proto.Float64(value)}}}
	return mf
}

func counter(name, help string, value float64) *dto.MetricFamily {
	mf := family(name, help, dto.MetricType_COUNTER)
	mf.Metric = []*dto.Metric{{Counter: &dto.Counter{Value: proto.Float64(value)}}}
	return mf
}

// Server runs the metrics listener.
type Server struct {
	srv      *http.Server
	listener net.Listener
	logger   *slog.Logger
}

// NewServer binds the listener eagerly so configuration errors surface at
// startup rather than on first scrape.
func NewServer(bind string, src Sources, logger *slog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return nil, fmt.Errorf("bind metrics listener %s: %w", bind, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(src, logger))
	return &Server{
		srv:      &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		listener: ln,
		logger:   logging.WithComponent(logger, "metrics"),
	}, nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks until the server is shut down.
func (s *Server) Serve() error {
	s.logger.Info("metrics listener started", logging.String("addr", s.Addr()))
	if err := s.srv.Serve(s.listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

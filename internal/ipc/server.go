package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"log/slog"

	"courtside/internal/clock"
	"courtside/internal/daemon"
	"courtside/internal/logging"
	"courtside/internal/logs"
	"courtside/internal/timing"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logging.WithComponent(logger, "ipc"), ctx: ctx}
	if err := rpcServer.RegisterName("Courtside", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed", logging.Error(err))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path), logging.Error(err))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	st := s.daemon.Status()
	resp.Running = st.Running
	resp.PID = st.PID
	resp.ResultsDB = st.ResultsDB
	resp.LockPath = st.LockFilePath
	resp.MetricsAddr = st.MetricsAddr
	resp.Pool = PoolStatus{
		Workers:     make([]WorkerStatus, 0, len(st.Pool.Workers)),
		Ready:       st.Pool.Ready,
		Busy:        st.Pool.Busy,
		SuccessRate: st.Pool.SuccessRate,
	}
	for _, snap := range st.Pool.Workers {
		resp.Pool.Workers = append(resp.Pool.Workers, WorkerStatus{
			ID:             snap.ID,
			PID:            snap.PID,
			Status:         snap.Status,
			RequestsServed: snap.RequestsServed,
			Errors:         snap.Errors,
			Restarts:       snap.Restarts,
		})
	}
	resp.Streams = convertStreams(st.Streams)
	for _, link := range st.Links {
		resp.Links = append(resp.Links, LinkStatus(link))
	}
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	return nil
}

func (s *service) StreamRegister(req StreamRegisterRequest, resp *StreamRegisterResponse) error {
	if req.ID == "" {
		return errors.New("stream id is required")
	}
	offset := time.Duration(req.LatencyOffsetMS) * time.Millisecond
	if err := s.daemon.RegisterStream(req.ID, req.Modality, req.ExpectedRate, offset); err != nil {
		return err
	}
	resp.Registered = true
	s.logger.Info("stream registered via IPC", logging.String("stream", req.ID))
	return nil
}

func (s *service) StreamStop(req StreamStopRequest, resp *StreamStopResponse) error {
	if err := s.daemon.StopStream(req.ID); err != nil {
		return err
	}
	resp.Stopped = true
	return nil
}

func (s *service) StreamList(_ StreamListRequest, resp *StreamListResponse) error {
	resp.Streams = convertStreams(s.daemon.Streams())
	return nil
}

func (s *service) Link(req LinkRequest, resp *LinkResponse) error {
	windows := make(map[string]time.Duration, len(req.WindowsMS))
	for kind, ms := range req.WindowsMS {
		if ms <= 0 {
			return fmt.Errorf("window for %q must be positive, got %d", kind, ms)
		}
		windows[kind] = time.Duration(ms) * time.Millisecond
	}
	linkID, err := s.daemon.LinkStreams(req.AudioID, req.VisualID, windows)
	if err != nil {
		return err
	}
	resp.LinkID = linkID
	return nil
}

func (s *service) Unlink(req UnlinkRequest, resp *UnlinkResponse) error {
	if err := s.daemon.UnlinkStreams(req.LinkID); err != nil {
		return err
	}
	resp.Removed = true
	return nil
}

func (s *service) LinkList(_ LinkListRequest, resp *LinkListResponse) error {
	for _, link := range s.daemon.Links() {
		resp.Links = append(resp.Links, LinkStatus(link))
	}
	return nil
}

func (s *service) ProcessFrame(req ProcessFrameRequest, resp *ProcessFrameResponse) error {
	res, err := s.daemon.ProcessFrame(s.ctx, req.StreamID, clock.Timestamp(req.TimestampNS), req.Payload)
	if err != nil && res.RequestID == "" {
		return err
	}
	resp.RequestID = res.RequestID
	resp.WorkerID = res.WorkerID
	resp.Success = res.Success
	resp.FailureKind = string(res.FailureKind)
	resp.LatencyMS = float64(res.Latency) / float64(time.Millisecond)
	resp.Compliant = res.Compliant
	resp.QualityScore = res.Observation.QualityScore
	resp.WorkerResult = res.WorkerResult
	for _, corr := range res.Correlations {
		resp.Correlations = append(resp.Correlations, CorrelationStatus{
			SourceStream:     corr.Source.StreamID,
			TargetStream:     corr.Target.StreamID,
			Kind:             corr.Source.Kind,
			TimeDifferenceMS: float64(corr.TimeDifference) / float64(time.Millisecond),
			Confidence:       corr.Confidence,
		})
	}
	return nil
}

func (s *service) Stats(req StatsRequest, resp *StatsResponse) error {
	stats, err := s.daemon.Aggregate(s.ctx)
	if err != nil {
		return err
	}
	resp.Frames = stats.Frames
	resp.Successes = stats.Successes
	resp.SuccessRate = stats.SuccessRate
	resp.AvgLatencyMS = float64(stats.AvgLatency) / float64(time.Millisecond)
	resp.ComplianceRate = stats.ComplianceRate

	limit := req.EventLimit
	if limit <= 0 {
		limit = 20
	}
	events, err := s.daemon.RecentWorkerEvents(s.ctx, limit)
	if err != nil {
		return err
	}
	for _, ev := range events {
		resp.WorkerEvents = append(resp.WorkerEvents, WorkerEventStatus{
			WorkerID:  ev.WorkerID,
			Kind:      ev.Kind,
			Detail:    ev.Detail,
			CreatedAt: ev.CreatedAt,
		})
	}
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	wait := time.Duration(req.WaitMS) * time.Millisecond
	if wait > 30*time.Second {
		wait = 30 * time.Second
	}
	res, err := logs.Tail(s.ctx, s.daemon.LogPath(), logs.Options{
		Offset: req.Offset,
		Limit:  req.Limit,
		Wait:   wait,
	})
	if err != nil {
		return err
	}
	resp.Lines = res.Lines
	resp.Offset = res.Offset
	return nil
}

func convertStreams(snaps []timing.StreamSnapshot) []StreamStatus {
	out := make([]StreamStatus, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, StreamStatus{
			ID:                    snap.ID,
			Modality:              snap.Modality,
			ExpectedRate:          snap.ExpectedRate,
			Frames:                snap.Frames,
			QualityScore:          snap.QualityScore,
			WithinTargetPrecision: snap.WithinTargetPrecision,
			CorrectionMS:          float64(snap.AccumulatedCorrection) / float64(time.Millisecond),
		})
	}
	return out
}

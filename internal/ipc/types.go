package ipc

import "encoding/json"

// StatusRequest asks for the daemon's runtime summary.
type StatusRequest struct{}

// WorkerStatus mirrors one supervised worker's snapshot.
type WorkerStatus struct {
	ID             string `json:"id"`
	PID            int    `json:"pid"`
	Status         string `json:"status"`
	RequestsServed uint64 `json:"requests_served"`
	Errors         uint64 `json:"errors"`
	Restarts       uint64 `json:"restarts"`
}

// PoolStatus mirrors the pool's stats snapshot, worker by worker.
type PoolStatus struct {
	Workers     []WorkerStatus `json:"workers"`
	Ready       int            `json:"ready"`
	Busy        int            `json:"busy"`
	SuccessRate float64        `json:"success_rate"`
}

// StreamStatus mirrors one stream's timing snapshot.
type StreamStatus struct {
	ID                    string  `json:"id"`
	Modality              string  `json:"modality"`
	ExpectedRate          float64 `json:"expected_rate"`
	Frames                uint64  `json:"frames"`
	QualityScore          float64 `json:"quality_score"`
	WithinTargetPrecision bool    `json:"within_target_precision"`
	CorrectionMS          float64 `json:"correction_ms"`
}

// LinkStatus mirrors one correlation link.
type LinkStatus struct {
	ID                string  `json:"id"`
	AudioID           string  `json:"audio_id"`
	VisualID          string  `json:"visual_id"`
	Matches           uint64  `json:"matches"`
	RunningConfidence float64 `json:"running_confidence"`
}

// StatusResponse is the daemon's runtime summary.
type StatusResponse struct {
	Running     bool           `json:"running"`
	PID         int            `json:"pid"`
	Pool        PoolStatus     `json:"pool"`
	Streams     []StreamStatus `json:"streams"`
	Links       []LinkStatus   `json:"links"`
	ResultsDB   string         `json:"results_db"`
	LockPath    string         `json:"lock_path"`
	MetricsAddr string         `json:"metrics_addr,omitempty"`
}

// StopRequest asks the daemon to stop processing.
type StopRequest struct{}

// StopResponse acknowledges a stop.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StreamRegisterRequest adds a stream to the timing registry.
type StreamRegisterRequest struct {
	ID              string  `json:"id"`
	Modality        string  `json:"modality"`
	ExpectedRate    float64 `json:"expected_rate"`
	LatencyOffsetMS int     `json:"latency_offset_ms"`
}

// StreamRegisterResponse acknowledges a registration.
type StreamRegisterResponse struct {
	Registered bool `json:"registered"`
}

// StreamStopRequest removes a stream.
type StreamStopRequest struct {
	ID string `json:"id"`
}

// StreamStopResponse acknowledges a stream stop.
type StreamStopResponse struct {
	Stopped bool `json:"stopped"`
}

// StreamListRequest lists registered streams.
type StreamListRequest struct{}

// StreamListResponse carries the stream snapshots.
type StreamListResponse struct {
	Streams []StreamStatus `json:"streams"`
}

// LinkRequest pairs an audio and a visual stream. WindowsMS maps pattern
// kinds to correlation windows; empty means all kinds at the configured
// defaults.
type LinkRequest struct {
	AudioID   string         `json:"audio_id"`
	VisualID  string         `json:"visual_id"`
	WindowsMS map[string]int `json:"windows_ms,omitempty"`
}

// LinkResponse returns the created link's id.
type LinkResponse struct {
	LinkID string `json:"link_id"`
}

// UnlinkRequest removes a link by id.
type UnlinkRequest struct {
	LinkID string `json:"link_id"`
}

// UnlinkResponse acknowledges an unlink.
type UnlinkResponse struct {
	Removed bool `json:"removed"`
}

// LinkListRequest lists active links.
type LinkListRequest struct{}

// LinkListResponse carries the link snapshots.
type LinkListResponse struct {
	Links []LinkStatus `json:"links"`
}

// ProcessFrameRequest dispatches one frame. A zero TimestampNS is stamped
// with the master clock on arrival.
type ProcessFrameRequest struct {
	StreamID    string          `json:"stream_id"`
	TimestampNS int64           `json:"timestamp_ns"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// CorrelationStatus is one cross-modal match on a processed frame.
type CorrelationStatus struct {
	SourceStream     string  `json:"source_stream"`
	TargetStream     string  `json:"target_stream"`
	Kind             string  `json:"kind"`
	TimeDifferenceMS float64 `json:"time_difference_ms"`
	Confidence       float64 `json:"confidence"`
}

// ProcessFrameResponse summarizes one dispatched frame.
type ProcessFrameResponse struct {
	RequestID    string              `json:"request_id"`
	WorkerID     string              `json:"worker_id"`
	Success      bool                `json:"success"`
	FailureKind  string              `json:"failure_kind,omitempty"`
	LatencyMS    float64             `json:"latency_ms"`
	Compliant    bool                `json:"compliant"`
	QualityScore float64             `json:"quality_score"`
	Correlations []CorrelationStatus `json:"correlations,omitempty"`
	WorkerResult json.RawMessage     `json:"worker_result,omitempty"`
}

// StatsRequest asks for aggregate processing statistics.
type StatsRequest struct {
	EventLimit int `json:"event_limit"`
}

// WorkerEventStatus is one persisted worker lifecycle transition.
type WorkerEventStatus struct {
	WorkerID  string `json:"worker_id"`
	Kind      string `json:"kind"`
	Detail    string `json:"detail,omitempty"`
	CreatedAt string `json:"created_at"`
}

// LogTailRequest reads daemon log lines. Offset -1 asks for the last Limit
// lines; a non-negative Offset resumes from that byte position. WaitMS bounds
// how long the daemon blocks for new lines when following.
type LogTailRequest struct {
	Offset int64 `json:"offset"`
	Limit  int   `json:"limit"`
	WaitMS int   `json:"wait_ms,omitempty"`
}

// LogTailResponse carries log lines and the offset to resume from.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// StatsResponse carries aggregate figures and recent worker events.
type StatsResponse struct {
	Frames         int64               `json:"frames"`
	Successes      int64               `json:"successes"`
	SuccessRate    float64             `json:"success_rate"`
	AvgLatencyMS   float64             `json:"avg_latency_ms"`
	ComplianceRate float64             `json:"compliance_rate"`
	WorkerEvents   []WorkerEventStatus `json:"worker_events,omitempty"`
}

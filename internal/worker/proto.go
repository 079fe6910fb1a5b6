package worker

import "encoding/json"

// Commands understood by worker processes.
const (
	CommandProcessFrame = "process_frame"
	CommandGetStats     = "get_stats"
	CommandShutdown     = "shutdown"
)

// Request is one framed command sent to a worker. Payload is opaque to the
// supervisor.
type Request struct {
	ID      string          `json:"id"`
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Reply is a worker's framed response. Result is opaque; for process_frame it
// may carry a patterns array that the dispatcher decodes best-effort.
type Reply struct {
	ID               string          `json:"id"`
	Success          bool            `json:"success"`
	Result           json.RawMessage `json:"result,omitempty"`
	Error            string          `json:"error,omitempty"`
	ProcessingTimeMS float64         `json:"processing_time_ms,omitempty"`
}

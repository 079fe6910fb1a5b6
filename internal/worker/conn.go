package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

// ErrConnClosed is returned when the worker's reply stream has ended.
var ErrConnClosed = errors.New("worker connection closed")

// maxReplyBytes bounds a single framed reply line.
const maxReplyBytes = 4 << 20

// Conn frames requests and replies as newline-delimited JSON over a worker's
// stdin/stdout. A background read loop decodes replies and Call matches them
// to requests by id, discarding stale replies left over from timed-out calls.
//
// The pool's exclusivity invariant means at most one Call runs at a time per
// worker; the mutex enforces it defensively against misuse.
type Conn struct {
	mu  sync.Mutex
	enc *json.Encoder

	replies chan Reply
	done    chan struct{}
	once    sync.Once
}

// NewConn starts the read loop over the given writer/reader pair.
func NewConn(w io.Writer, r io.Reader) *Conn {
	c := &Conn{
		enc:     json.NewEncoder(w),
		replies: make(chan Reply, 4),
		done:    make(chan struct{}),
	}
	go c.readLoop(r)
	return c
}

func (c *Conn) readLoop(r io.Reader) {
	defer close(c.replies)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxReplyBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var reply Reply
		if err := json.Unmarshal(line, &reply); err != nil {
			// Malformed frame. Surface it as a reply-shaped error so the
			// in-flight Call fails instead of timing out.
			reply = Reply{Success: false, Error: fmt.Sprintf("malformed reply: %v", err)}
		}
		select {
		case c.replies <- reply:
		case <-c.done:
			return
		}
	}
}

// Call sends a request and waits for its matching reply. The context bounds
// the wait; callers compose startup, health, and per-request timeouts here.
// Requests without an id are assigned one.
func (c *Conn) Call(ctx context.Context, req Request) (*Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if err := c.enc.Encode(req); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case reply, ok := <-c.replies:
			if !ok {
				return nil, ErrConnClosed
			}
			if reply.ID != "" && reply.ID != req.ID {
				// Stale reply from an abandoned call; skip it.
				continue
			}
			return &reply, nil
		}
	}
}

// Notify sends a request without waiting for a reply. Used for best-effort
// shutdown commands.
func (c *Conn) Notify(req Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	return c.enc.Encode(req)
}

// Close stops the read loop. It does not close the underlying streams; the
// owning process handle does that when it exits.
func (c *Conn) Close() {
	c.once.Do(func() { close(c.done) })
}

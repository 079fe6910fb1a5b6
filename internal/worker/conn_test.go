package worker_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"courtside/internal/worker"
)

// echoBackend reads requests from r and writes scripted replies to w.
func echoBackend(t *testing.T, r io.Reader, w io.Writer, respond func(worker.Request) *worker.Reply) {
	t.Helper()
	go func() {
		scanner := bufio.NewScanner(r)
		enc := json.NewEncoder(w)
		for scanner.Scan() {
			var req worker.Request
			if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
				continue
			}
			if reply := respond(req); reply != nil {
				_ = enc.Encode(reply)
			}
		}
	}()
}

func TestCallRoundTrip(t *testing.T) {
	reqR, reqW := io.Pipe()
	repR, repW := io.Pipe()
	t.Cleanup(func() { reqW.Close(); repW.Close() })

	echoBackend(t, reqR, repW, func(req worker.Request) *worker.Reply {
		if req.Command != worker.CommandGetStats {
			t.Errorf("command = %q, want get_stats", req.Command)
		}
		return &worker.Reply{ID: req.ID, Success: true, ProcessingTimeMS: 1.5}
	})

	conn := worker.NewConn(reqW, repR)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	reply, err := conn.Call(ctx, worker.Request{Command: worker.CommandGetStats})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !reply.Success {
		t.Fatalf("reply not successful: %+v", reply)
	}
}

func TestCallTimesOut(t *testing.T) {
	reqR, reqW := io.Pipe()
	repR, repW := io.Pipe()
	t.Cleanup(func() { reqW.Close(); repW.Close() })

	echoBackend(t, reqR, repW, func(worker.Request) *worker.Reply { return nil })

	conn := worker.NewConn(reqW, repR)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := conn.Call(ctx, worker.Request{Command: worker.CommandProcessFrame})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestCallSkipsStaleReplies(t *testing.T) {
	reqR, reqW := io.Pipe()
	repR, repW := io.Pipe()
	t.Cleanup(func() { reqW.Close(); repW.Close() })

	first := true
	echoBackend(t, reqR, repW, func(req worker.Request) *worker.Reply {
		if first {
			first = false
			// Simulate a late reply to an abandoned request arriving before
			// the reply for the current one.
			enc := json.NewEncoder(repW)
			_ = enc.Encode(worker.Reply{ID: "stale-request", Success: false})
		}
		return &worker.Reply{ID: req.ID, Success: true}
	})

	conn := worker.NewConn(reqW, repR)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	reply, err := conn.Call(ctx, worker.Request{Command: worker.CommandGetStats})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !reply.Success {
		t.Fatal("expected the fresh reply, got the stale one")
	}
}

func TestCallFailsWhenStreamEnds(t *testing.T) {
	reqR, reqW := io.Pipe()
	repR, repW := io.Pipe()

	go func() {
		// Drain one request, then hang up like a crashed worker.
		scanner := bufio.NewScanner(reqR)
		scanner.Scan()
		repW.Close()
	}()

	conn := worker.NewConn(reqW, repR)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := conn.Call(ctx, worker.Request{Command: worker.CommandGetStats})
	if !errors.Is(err, worker.ErrConnClosed) {
		t.Fatalf("expected ErrConnClosed, got %v", err)
	}
}

func TestMalformedReplySurfacesError(t *testing.T) {
	reqR, reqW := io.Pipe()
	repR, repW := io.Pipe()
	t.Cleanup(func() { reqW.Close(); repW.Close() })

	go func() {
		scanner := bufio.NewScanner(reqR)
		scanner.Scan()
		_, _ = io.WriteString(repW, "not json\n")
	}()

	conn := worker.NewConn(reqW, repR)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	reply, err := conn.Call(ctx, worker.Request{Command: worker.CommandGetStats})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if reply.Success || reply.Error == "" {
		t.Fatalf("expected malformed-reply error, got %+v", reply)
	}
}

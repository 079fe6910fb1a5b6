package ipc_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"courtside/internal/daemon"
	"courtside/internal/ipc"
	"courtside/internal/logging"
	"courtside/internal/testsupport"
)

func newServerAndClient(t *testing.T) (*daemon.Daemon, *ipc.Client) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	d, err := daemon.New(cfg, logging.NewNop(), daemon.Options{Launcher: &testsupport.FakeLauncher{}})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}

	socket := filepath.Join(t.TempDir(), "courtsided.sock")
	srv, err := ipc.NewServer(context.Background(), socket, d, logging.NewNop())
	if err != nil {
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return d, client
}

func TestStatusRoundTrip(t *testing.T) {
	_, client := newServerAndClient(t)

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || len(status.Pool.Workers) == 0 {
		t.Fatalf("status = %+v, want running pool", status)
	}
	for _, w := range status.Pool.Workers {
		if w.ID == "" || w.Status == "" {
			t.Fatalf("worker entry missing identity: %+v", w)
		}
	}
	if status.PID == 0 || status.LockPath == "" {
		t.Fatalf("status missing identity fields: %+v", status)
	}
}

func TestStreamAndLinkOperations(t *testing.T) {
	_, client := newServerAndClient(t)

	if _, err := client.StreamRegister(ipc.StreamRegisterRequest{
		ID: "mic-1", Modality: "audio", ExpectedRate: 100,
	}); err != nil {
		t.Fatalf("StreamRegister mic-1: %v", err)
	}
	if _, err := client.StreamRegister(ipc.StreamRegisterRequest{
		ID: "cam-1", Modality: "visual", ExpectedRate: 30, LatencyOffsetMS: 10,
	}); err != nil {
		t.Fatalf("StreamRegister cam-1: %v", err)
	}
	if _, err := client.StreamRegister(ipc.StreamRegisterRequest{
		ID: "cam-1", Modality: "visual", ExpectedRate: 30,
	}); err == nil || !strings.Contains(err.Error(), "already registered") {
		t.Fatalf("duplicate register: %v", err)
	}

	link, err := client.Link(ipc.LinkRequest{AudioID: "mic-1", VisualID: "cam-1"})
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if link.LinkID == "" {
		t.Fatal("link id missing")
	}

	links, err := client.LinkList()
	if err != nil {
		t.Fatalf("LinkList: %v", err)
	}
	if len(links.Links) != 1 || links.Links[0].AudioID != "mic-1" {
		t.Fatalf("links = %+v", links.Links)
	}

	streams, err := client.StreamList()
	if err != nil {
		t.Fatalf("StreamList: %v", err)
	}
	if len(streams.Streams) != 2 {
		t.Fatalf("streams = %+v, want 2", streams.Streams)
	}

	if _, err := client.StreamStop("mic-1"); err != nil {
		t.Fatalf("StreamStop: %v", err)
	}
	links, err = client.LinkList()
	if err != nil {
		t.Fatalf("LinkList after stop: %v", err)
	}
	if len(links.Links) != 0 {
		t.Fatalf("links after stream stop = %+v, want none", links.Links)
	}
	if _, err := client.Unlink(link.LinkID); err == nil {
		t.Fatal("unlink of removed link must error")
	}
}

func TestProcessFrameOverIPC(t *testing.T) {
	_, client := newServerAndClient(t)

	if _, err := client.StreamRegister(ipc.StreamRegisterRequest{
		ID: "cam-1", Modality: "visual", ExpectedRate: 30,
	}); err != nil {
		t.Fatalf("StreamRegister: %v", err)
	}

	res, err := client.ProcessFrame(ipc.ProcessFrameRequest{StreamID: "cam-1"})
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if !res.Success || res.WorkerID == "" {
		t.Fatalf("result = %+v, want success", res)
	}

	stats, err := client.Stats(10)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Frames != 1 || stats.SuccessRate != 1 {
		t.Fatalf("stats = %+v, want one successful frame", stats)
	}
}

func TestProcessFrameFailureSurfacesKind(t *testing.T) {
	_, client := newServerAndClient(t)

	res, err := client.ProcessFrame(ipc.ProcessFrameRequest{StreamID: "ghost"})
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if res.Success || res.FailureKind != "stream_not_registered" {
		t.Fatalf("res = %+v, want stream_not_registered failure", res)
	}
}

func TestLogTailOverIPC(t *testing.T) {
	d, client := newServerAndClient(t)

	logFile := d.LogPath()
	if err := os.WriteFile(logFile, []byte("line one\nline two\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	resp, err := client.LogTail(ipc.LogTailRequest{Offset: -1, Limit: 1})
	if err != nil {
		t.Fatalf("LogTail: %v", err)
	}
	if len(resp.Lines) != 1 || resp.Lines[0] != "line two" {
		t.Fatalf("lines = %v", resp.Lines)
	}
	if resp.Offset == 0 {
		t.Fatal("offset should advance past the tailed lines")
	}
}

func TestStopOverIPC(t *testing.T) {
	d, client := newServerAndClient(t)

	resp, err := client.Stop()
	if err != nil || !resp.Stopped {
		t.Fatalf("Stop: resp=%+v err=%v", resp, err)
	}
	if d.Status().Running {
		t.Fatal("daemon still running after IPC stop")
	}
}

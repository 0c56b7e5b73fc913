package control

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Interactions-AI/odin/internal/cluster"
	fakecluster "github.com/Interactions-AI/odin/internal/cluster/fake"
	"github.com/Interactions-AI/odin/internal/domain"
	"github.com/Interactions-AI/odin/internal/executor"
	"github.com/Interactions-AI/odin/internal/handler"
	"github.com/Interactions-AI/odin/internal/store/sqlite"
)

func writeMainDescriptor(t *testing.T, root, name, body string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "main.yml"), []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func testServer(t *testing.T) (addr string, fc *fakecluster.Client, root, data string) {
	t.Helper()
	s, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	fc = fakecluster.New()
	registry := handler.NewRegistry(fc, "odin", time.Minute)
	exec := executor.New(s, registry, executor.Config{PollInterval: 5 * time.Millisecond, SubmitBackoffBase: time.Millisecond, SubmitMaxAttempts: 3})

	root = t.TempDir()
	data = t.TempDir()
	srv := New(s, registry, exec, root, data)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	addr = ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.ListenAndServe(ctx, addr)

	pollUntilDialable(t, addr, time.Second)
	return addr, fc, root, data
}

func pollUntilDialable(t *testing.T, addr string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("server never became dialable")
}

func roundTrip(t *testing.T, addr string, req request) response {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	if err := writeJSON(conn, req); err != nil {
		t.Fatalf("writeJSON: %v", err)
	}
	var resp response
	if err := readJSON(conn, &resp); err != nil {
		t.Fatalf("readJSON: %v", err)
	}
	return resp
}

func TestPingEchoesArgument(t *testing.T) {
	addr, _, _, _ := testServer(t)
	resp := roundTrip(t, addr, request{Op: "PING", Echo: "hello"})
	if !resp.Success || resp.Response != "PONG hello" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestPingWithoutEcho(t *testing.T) {
	addr, _, _, _ := testServer(t)
	resp := roundTrip(t, addr, request{Op: "PING"})
	if !resp.Success || resp.Response != "PONG" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestUnknownOpReturnsError(t *testing.T) {
	addr, _, _, _ := testServer(t)
	resp := roundTrip(t, addr, request{Op: "BOGUS"})
	if resp.Status != "ERROR" {
		t.Fatalf("expected error response, got %+v", resp)
	}
}

func TestRunLaunchesPipelineAndStatusReportsIt(t *testing.T) {
	addr, fc, root, _ := testServer(t)
	writeMainDescriptor(t, root, "flow", "name: flow\ntasks:\n  - name: prep\n    image: img\n")

	runResp := roundTrip(t, addr, request{Op: "RUN", Pipeline: "flow"})
	if !runResp.Success {
		t.Fatalf("RUN failed: %+v", runResp)
	}
	label, ok := runResp.Response.(string)
	if !ok || label == "" {
		t.Fatalf("expected a pipeline label, got %+v", runResp.Response)
	}

	prepLabel := domain.TaskLabel(label, "prep")
	pollUntil(t, time.Second, func() bool {
		_, err := fc.Get(context.Background(), domain.Pod, "odin", prepLabel)
		return err == nil
	})
	fc.SetPhase(domain.Pod, "odin", prepLabel, cluster.PhaseSucceeded)

	pollUntil(t, time.Second, func() bool {
		resp := roundTrip(t, addr, request{Op: "STATUS", Label: label})
		return resp.Success
	})
}

func TestShowListsMatchingRuns(t *testing.T) {
	addr, _, root, _ := testServer(t)
	writeMainDescriptor(t, root, "flow", "name: flow\ntasks:\n  - name: prep\n    image: img\n")

	runResp := roundTrip(t, addr, request{Op: "RUN", Pipeline: "flow"})
	label := runResp.Response.(string)

	showResp := roundTrip(t, addr, request{Op: "SHOW", Query: "flow"})
	if !showResp.Success {
		t.Fatalf("SHOW failed: %+v", showResp)
	}
	runs, ok := showResp.Response.([]any)
	if !ok || len(runs) == 0 {
		t.Fatalf("expected at least one matching run, got %+v", showResp.Response)
	}
	_ = label
}

func TestCleanupPurgesStoreAndWorkspace(t *testing.T) {
	addr, _, root, data := testServer(t)
	writeMainDescriptor(t, root, "flow", "name: flow\ntasks:\n  - name: prep\n    image: img\n")

	runResp := roundTrip(t, addr, request{Op: "RUN", Pipeline: "flow"})
	label := runResp.Response.(string)

	cleanupResp := roundTrip(t, addr, request{Op: "CLEANUP", Label: label, DB: true, FS: true})
	if !cleanupResp.Success {
		t.Fatalf("CLEANUP failed: %+v", cleanupResp)
	}

	statusResp := roundTrip(t, addr, request{Op: "STATUS", Label: label})
	if statusResp.Success {
		t.Fatalf("expected no status after purge, got %+v", statusResp)
	}

	runPath := filepath.Join(data, label)
	if _, err := os.Stat(runPath); !os.IsNotExist(err) {
		t.Fatalf("expected run workspace to be removed, stat err=%v", err)
	}
}

func pollUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

package e2e

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"testing"
	"time"

	"voiced/pkg/types"
)

// projectRoot resolves the repo root from this file's location:
// <root>/internal/e2e/spawn_e2e_test.go.
func projectRoot(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))
}

func buildBinary(t *testing.T) string {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "voiced")
	cmd := exec.Command("go", "build", "-o", bin, "./cmd/voiced")
	cmd.Dir = projectRoot(t)
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("go build failed: %v\n%s", err, out)
	}
	return bin
}

func findFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

// startDaemon spawns `voiced serve` pointed at an empty models dir and a
// nonexistent engine binary, so every backend probe and load fails in a
// controlled way.
func startDaemon(t *testing.T, bin string) (*exec.Cmd, string) {
	t.Helper()
	port := findFreePort(t)
	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	cmd := exec.Command(bin, "serve",
		"--addr", fmt.Sprintf(":%d", port),
		"--models-dir", t.TempDir(),
		"--engine-bin", filepath.Join(t.TempDir(), "missing-engine"),
	)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	t.Cleanup(func() {
		if cmd.ProcessState == nil {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
		}
	})

	deadline := time.Now().Add(10 * time.Second)
	for {
		resp, err := http.Get(base + "/healthz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("daemon did not become healthy in time")
		}
		time.Sleep(50 * time.Millisecond)
	}
	return cmd, base
}

func TestSpawnedDaemonFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping spawned daemon test in -short mode")
	}
	bin := buildBinary(t)
	cmd, base := startDaemon(t, bin)

	// Catalog is served before anything is loaded.
	resp, body := httpGet(t, base+"/v1/models")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("models: status=%d body=%s", resp.StatusCode, body)
	}
	var models types.ModelsResponse
	if err := json.Unmarshal(body, &models); err != nil {
		t.Fatalf("models json: %v body=%s", err, body)
	}
	if len(models.Models) != 3 {
		t.Fatalf("models count = %d", len(models.Models))
	}
	for _, ms := range models.Models {
		if ms.State != "idle" {
			t.Fatalf("model %s state = %s", ms.Key, ms.State)
		}
	}

	// The startup probe runs in the background; readiness follows shortly.
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, _ = httpGet(t, base+"/readyz")
		if resp.StatusCode == http.StatusOK {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("readyz did not become ready; last=%d", resp.StatusCode)
		}
		time.Sleep(25 * time.Millisecond)
	}

	// With no artifacts and no engine, a load streams progress and ends
	// with a terminal failure line rather than an HTTP error.
	resp, body = httpPostJSON(t, base+"/v1/load", `{"model":"text-generation"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("load: status=%d body=%s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("load content type = %s", ct)
	}
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	var last types.LoadProgress
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &last); err != nil {
		t.Fatalf("terminal line %q: %v", lines[len(lines)-1], err)
	}
	if last.Percent != -1 || last.Error == "" {
		t.Fatalf("terminal line = %+v", last)
	}

	resp, body = httpGet(t, base+"/v1/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: status=%d", resp.StatusCode)
	}
	var st types.StatusResponse
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("status json: %v body=%s", err, body)
	}
	if st.LastError == "" {
		t.Fatalf("status did not record the failed load: %+v", st)
	}

	// SIGTERM drains and exits cleanly.
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		t.Fatalf("signal: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("daemon exit: %v", err)
		}
	case <-time.After(10 * time.Second):
		_ = cmd.Process.Kill()
		t.Fatal("daemon did not exit after SIGTERM")
	}
}

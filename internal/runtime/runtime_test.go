package runtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/speakuplabs/speakup-core/internal/config"
	"github.com/speakuplabs/speakup-core/internal/pidfile"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubDaemon answers the health probe the way a live instance would and
// returns the port it is listening on.
func stubDaemon(t *testing.T) int {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "service": "speakup-core"})
	}))
	t.Cleanup(ts.Close)

	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("parse stub url: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse stub port: %v", err)
	}
	return port
}

// deadPort reserves a loopback port and releases it, so nothing answers.
func deadPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestStartRefusesWhenInstanceAnswersProbe(t *testing.T) {
	cfg := config.Default()
	cfg.PIDFile = filepath.Join(t.TempDir(), "speakup.pid")
	cfg.HTTP.Port = stubDaemon(t)

	// The pidfile names this test process, which is certainly alive.
	if err := pidfile.Write(cfg.PIDFile); err != nil {
		t.Fatalf("write pidfile: %v", err)
	}

	rt := New(cfg, newLogger())
	err := rt.Start(context.Background())
	if err == nil {
		t.Fatal("expected startup refusal while another instance answers")
	}
	if !strings.Contains(err.Error(), "already running") {
		t.Fatalf("unexpected error: %v", err)
	}

	// The refusal must leave the running instance's pidfile in place.
	pid, alive := pidfile.Alive(cfg.PIDFile)
	if !alive || pid != os.Getpid() {
		t.Fatalf("pidfile disturbed: pid=%d alive=%v", pid, alive)
	}
}

func TestRefuseDuplicateTreatsSilentProcessAsStale(t *testing.T) {
	cfg := config.Default()
	cfg.PIDFile = filepath.Join(t.TempDir(), "speakup.pid")
	cfg.HTTP.Port = deadPort(t)

	// Live pid, but nothing answering the control port: a wedged or
	// unrelated process must not block restarts forever.
	if err := pidfile.Write(cfg.PIDFile); err != nil {
		t.Fatalf("write pidfile: %v", err)
	}

	rt := New(cfg, newLogger())
	if err := rt.refuseDuplicate(context.Background()); err != nil {
		t.Fatalf("expected stale instance to be ignored, got %v", err)
	}
}

func TestRefuseDuplicateIgnoresDeadPid(t *testing.T) {
	cfg := config.Default()
	cfg.PIDFile = filepath.Join(t.TempDir(), "speakup.pid")

	// Pid max on Linux defaults to 4194304, so this process cannot exist.
	if err := os.WriteFile(cfg.PIDFile, []byte("99999999\n"), 0o644); err != nil {
		t.Fatalf("seed pidfile: %v", err)
	}

	rt := New(cfg, newLogger())
	if err := rt.refuseDuplicate(context.Background()); err != nil {
		t.Fatalf("expected dead pid to be ignored, got %v", err)
	}
}

func TestRefuseDuplicateWithoutPidfile(t *testing.T) {
	cfg := config.Default()
	cfg.PIDFile = filepath.Join(t.TempDir(), "absent.pid")

	rt := New(cfg, newLogger())
	if err := rt.refuseDuplicate(context.Background()); err != nil {
		t.Fatalf("expected clean start with no pidfile, got %v", err)
	}
}

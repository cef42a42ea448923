package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/speakuplabs/speakup-core/internal/api"
	"github.com/speakuplabs/speakup-core/internal/config"
	"github.com/speakuplabs/speakup-core/internal/ledger"
	"github.com/speakuplabs/speakup-core/internal/queue"
	"github.com/speakuplabs/speakup-core/internal/synth"
)

type nullSink struct{}

func (nullSink) Start(int) error     { return nil }
func (nullSink) Feed([]float32) bool { return true }
func (nullSink) Finish() float64     { return 0 }
func (nullSink) Stop()               {}
func (nullSink) IsPlaying() bool     { return false }

func newTestServer(t *testing.T) (http.Handler, *ledger.Store) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

	cfg := config.Default()
	cfg.Ledger.Path = filepath.Join(t.TempDir(), "history.db")

	store, err := ledger.Open(context.Background(), cfg.Ledger, log)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	// The worker is never started here: handlers only enqueue and query, so
	// requests stay visible in the FIFO and the ledger.
	worker := queue.NewWorker(synth.NewMockEngine(22050, 1024), store, nullSink{}, log)
	return New(cfg, store, worker, nil, log).Handler(), store
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func getJSON(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestSpeakQueuesAnnouncement(t *testing.T) {
	h, store := newTestServer(t)

	rec := postJSON(t, h, "/api/speak", `{"text":"deploy finished","project":"api-server"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp api.SpeakResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.MessageID <= 0 {
		t.Fatalf("expected a positive message id, got %d", resp.MessageID)
	}
	if resp.QueuePosition != 1 {
		t.Fatalf("expected queue position 1, got %d", resp.QueuePosition)
	}

	queued, err := store.Queued(context.Background())
	if err != nil {
		t.Fatalf("queued: %v", err)
	}
	if len(queued) != 1 || queued[0].Text != "deploy finished" || queued[0].Project != "api-server" {
		t.Fatalf("unexpected queued rows: %+v", queued)
	}
}

func TestSpeakRejectsBlankText(t *testing.T) {
	h, store := newTestServer(t)

	rec := postJSON(t, h, "/api/speak", `{"text":"   "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	// A rejected request must leave no trace in the ledger.
	entries, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty ledger, got %d entries", len(entries))
	}
}

func TestSpeakValidation(t *testing.T) {
	h, _ := newTestServer(t)

	cases := []struct {
		name string
		body string
	}{
		{"negative speed", `{"text":"hi","speed":-1}`},
		{"bad announce", `{"text":"hi","announce":"shout"}`},
		{"bad json", `{"text":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := postJSON(t, h, "/api/speak", tc.body); rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestStatusReportsQueue(t *testing.T) {
	h, store := newTestServer(t)

	ctx := context.Background()
	if _, err := store.Add(ctx, "p", "one", "neutral"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := store.Add(ctx, "p", "two", "neutral"); err != nil {
		t.Fatalf("add: %v", err)
	}

	rec := getJSON(t, h, "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp api.StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Playing != nil {
		t.Fatalf("expected nothing playing, got %+v", resp.Playing)
	}
	if resp.QueueSize != 2 || len(resp.Queued) != 2 {
		t.Fatalf("expected 2 queued, got size=%d len=%d", resp.QueueSize, len(resp.Queued))
	}
}

func TestHistoryHonorsLimit(t *testing.T) {
	h, store := newTestServer(t)

	ctx := context.Background()
	for _, text := range []string{"a", "b", "c", "d", "e"} {
		if _, err := store.Add(ctx, "", text, "neutral"); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	rec := getJSON(t, h, "/api/history?limit=3")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp api.HistoryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(resp.Messages))
	}
	if resp.Messages[0].Text != "e" {
		t.Fatalf("expected newest first, got %q", resp.Messages[0].Text)
	}

	if rec := getJSON(t, h, "/api/history?limit=zero"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestStopClearsPendingRequests(t *testing.T) {
	h, _ := newTestServer(t)

	postJSON(t, h, "/api/speak", `{"text":"one"}`)
	postJSON(t, h, "/api/speak", `{"text":"two"}`)

	rec := postJSON(t, h, "/api/stop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp api.StopResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Cleared != 2 {
		t.Fatalf("expected 2 cleared, got %d", resp.Cleared)
	}

	// A second stop finds nothing.
	rec = postJSON(t, h, "/api/stop", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Cleared != 0 {
		t.Fatalf("expected idempotent stop, got %d cleared", resp.Cleared)
	}
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t)
	rec := getJSON(t, h, "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp api.HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" {
		t.Fatalf("expected ok, got %q", resp.Status)
	}
}

func TestUnknownRouteReturnsJSONError(t *testing.T) {
	h, _ := newTestServer(t)
	rec := getJSON(t, h, "/api/nope")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var resp api.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("expected JSON error body, got %q", rec.Body.String())
	}
}

func TestMethodGuards(t *testing.T) {
	h, _ := newTestServer(t)
	if rec := getJSON(t, h, "/api/speak"); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET speak, got %d", rec.Code)
	}
	if rec := postJSON(t, h, "/api/status", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for POST status, got %d", rec.Code)
	}
}

func TestStatusPageServed(t *testing.T) {
	h, _ := newTestServer(t)
	rec := getJSON(t, h, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("expected html, got %q", ct)
	}
}

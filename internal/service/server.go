// Package service hosts the loopback HTTP control surface: announcement
// submission, queue status, history, interrupt, and health.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/speakuplabs/speakup-core/internal/api"
	"github.com/speakuplabs/speakup-core/internal/config"
	"github.com/speakuplabs/speakup-core/internal/ledger"
	"github.com/speakuplabs/speakup-core/internal/queue"
)

type Server struct {
	cfg     config.Config
	store   *ledger.Store
	worker  *queue.Worker
	metrics http.Handler
	log     *slog.Logger

	httpSrv *http.Server
	wg      sync.WaitGroup
}

// New builds the server. metrics may be nil when the exporter is disabled.
func New(cfg config.Config, store *ledger.Store, worker *queue.Worker, metrics http.Handler, log *slog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		store:   store,
		worker:  worker,
		metrics: metrics,
		log:     log.With(slog.String("component", "http")),
	}
}

// Handler assembles the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/speak", s.handleSpeak)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/stop", s.handleStop)
	mux.HandleFunc("/api/health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	mux.HandleFunc("/", s.handleIndex)
	return mux
}

// Start binds the listener and begins serving. Binding happens synchronously
// so a port conflict (most often a second daemon instance) surfaces as an
// error here rather than a log line from a goroutine.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.HTTP.Bind, s.cfg.HTTP.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", addr, err)
	}

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	s.log.Info("control surface listening", slog.String("addr", addr))
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	err := s.httpSrv.Shutdown(ctx)
	s.wg.Wait()
	return err
}

func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req api.SpeakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.Speed < 0 {
		writeError(w, http.StatusBadRequest, "speed must be positive")
		return
	}
	if req.Speed == 0 {
		req.Speed = 1.0
	}
	if req.Tone == "" {
		req.Tone = "neutral"
	}
	switch req.Announce {
	case "":
		req.Announce = "prefix"
	case "none", "prefix", "full":
	default:
		writeError(w, http.StatusBadRequest, "announce must be none, prefix, or full")
		return
	}

	ctx := r.Context()
	id, err := s.store.Add(ctx, req.Project, req.Text, req.Tone)
	if err != nil {
		s.log.Error("record announcement", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to record announcement")
		return
	}

	// Position is 1-based and counts this request among the queued rows.
	position := 1
	if queued, err := s.store.Queued(ctx); err == nil {
		position = len(queued)
	}

	s.worker.Enqueue(ctx, &queue.Request{
		MessageID: id,
		Project:   req.Project,
		Text:      req.Text,
		Tone:      req.Tone,
		Speed:     req.Speed,
		Announce:  req.Announce,
	})

	s.log.Info("announcement queued",
		slog.Int64("id", id),
		slog.String("project", req.Project),
		slog.String("tone", req.Tone))
	writeJSON(w, http.StatusOK, api.SpeakResponse{MessageID: id, QueuePosition: position})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	snap, err := s.worker.Snapshot(r.Context())
	if err != nil {
		s.log.Error("assemble status", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to assemble status")
		return
	}
	queued := snap.Queued
	if queued == nil {
		queued = []ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, api.StatusResponse{
		Playing:   snap.Playing,
		Queued:    queued,
		QueueSize: len(queued),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	limit := s.cfg.Ledger.HistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	entries, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		s.log.Error("query history", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to query history")
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, api.HistoryResponse{Messages: entries})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	cleared := s.worker.StopAndClear(r.Context())
	s.log.Info("queue cleared", slog.Int("cleared", cleared))
	writeJSON(w, http.StatusOK, api.StopResponse{Cleared: cleared})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok", Service: s.cfg.ServiceName})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(statusPage))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, api.ErrorResponse{Error: msg})
}

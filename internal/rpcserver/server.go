// Package rpcserver exposes the scan engine over HTTP and WebSocket.
package rpcserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/probeworks/sitescan/internal/logger"
	"github.com/probeworks/sitescan/pkg/engine"
)

// streamPollInterval is how often the log stream checks for new entries.
const streamPollInterval = 250 * time.Millisecond

// Config configures the RPC server.
type Config struct {
	ListenAddr string
	Log        *logger.Logger
}

// Server routes scan operations to an Engine. Scans started through it run in
// the background; observers poll the logs and results endpoints or attach to
// the WebSocket stream.
type Server struct {
	cfg      Config
	engine   *engine.Engine
	router   chi.Router
	upgrader websocket.Upgrader
	log      *logger.Logger
}

// New creates a Server around an existing engine.
func New(cfg Config, eng *engine.Engine) *Server {
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}

	s := &Server{
		cfg:    cfg,
		engine: eng,
		router: chi.NewRouter(),
		log:    log.WithComponent("rpcserver"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Post("/scans", s.handleStartScan)
	r.Get("/scans/{scanID}/logs", s.handleScanLogs)
	r.Get("/scans/{scanID}/results", s.handleScanResults)
	r.Post("/scans/{scanID}/pause", s.handlePause)
	r.Post("/scans/{scanID}/resume", s.handleResume)
	r.Post("/scans/{scanID}/stop", s.handleStop)
	r.Get("/scans/{scanID}/stream", s.handleStream)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// HTTPServer wraps the router in an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:        s.cfg.ListenAddr,
		Handler:     s,
		ReadTimeout: 15 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleStartScan accepts a scan config, assigns a scan ID, and starts the
// crawl in the background. The response carries the ID immediately so the
// caller can begin observing.
func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	cfg := engine.DefaultConfig()
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if cfg.ScanID == "" {
		cfg.ScanID = uuid.New().String()
	}

	log := s.log.WithScan(cfg.ScanID)
	log.WithURL(cfg.URL).Info("scan accepted")

	// The request context dies with the response; the crawl outlives it.
	go func() {
		if _, err := s.engine.ScanWebsite(context.Background(), cfg); err != nil {
			log.WithError(err).Error("scan failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"scanId": cfg.ScanID})
}

func (s *Server) handleScanLogs(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "scanID")
	writeJSON(w, http.StatusOK, s.engine.GetScanLogs(scanID))
}

func (s *Server) handleScanResults(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "scanID")
	writeJSON(w, http.StatusOK, s.engine.GetScanResults(scanID))
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.writeOpStatus(w, s.engine.PauseScan(chi.URLParam(r, "scanID")))
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.writeOpStatus(w, s.engine.ResumeScan(chi.URLParam(r, "scanID")))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.writeOpStatus(w, s.engine.StopScan(chi.URLParam(r, "scanID")))
}

func (s *Server) writeOpStatus(w http.ResponseWriter, status engine.OpStatus) {
	code := http.StatusOK
	if !status.Success {
		code = http.StatusNotFound
	}
	writeJSON(w, code, status)
}

// handleStream upgrades to a WebSocket and pushes scan log entries as they
// appear, starting from the current buffer. The connection closes when the
// client goes away or the request context ends.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "scanID")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sent := 0
	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	for {
		logs := s.engine.GetScanLogs(scanID)
		if len(logs) < sent {
			// Buffer trimmed or session evicted; resync to the tail.
			sent = len(logs)
		}
		for _, entry := range logs[sent:] {
			if err := conn.WriteJSON(entry); err != nil {
				return
			}
			sent++
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

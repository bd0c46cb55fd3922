// Package api provides the HTTP API served by `remit serve`.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grovetools/remit/config"
	"github.com/grovetools/remit/errors"
	"github.com/grovetools/remit/logging"
	"github.com/grovetools/remit/pkg/banks"
	"github.com/grovetools/remit/pkg/sessions"
	"github.com/grovetools/remit/pkg/transfer"
	"github.com/grovetools/remit/version"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Messages returned to the web front end.
const (
	msgIncomplete    = "Dados de transferência incompletos"
	msgUnknownBank   = "Banco não suportado"
	msgNotConfigured = "Sistema não configurado. Configure DEMO_MODE ou REAL_TRANSACTIONS."
	msgInternal      = "Erro interno do servidor"
)

// Service performs transfers. *transfer.Engine and *transfer.Demo both satisfy it.
type Service interface {
	Run(ctx context.Context, req transfer.Request) (*transfer.Result, error)
	SubmitCode(ctx context.Context, sessionID, code string) (*transfer.Result, error)
}

// Server serves the transfer API over HTTP/1.1 and cleartext HTTP/2.
type Server struct {
	logger  *logrus.Entry
	server  *http.Server
	cfg     config.ServerConfig
	banks   *banks.Registry
	store   *sessions.Store
	service Service
}

// New creates a server. service may be nil when the mode is disabled and
// store may be nil when no session lookups are served.
func New(cfg config.ServerConfig, registry *banks.Registry, store *sessions.Store, service Service, logger *logrus.Entry) *Server {
	return &Server{
		logger:  logger,
		cfg:     cfg,
		banks:   registry,
		store:   store,
		service: service,
	}
}

// Handler returns the routed API handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/receiver-iban", s.handleReceiverIBAN)
	mux.HandleFunc("GET /api/banks", s.handleBanks)
	mux.HandleFunc("GET /api/sessions/stream", s.handleStreamSessions)
	mux.HandleFunc("GET /api/sessions/ws", s.handleSessionsSocket)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("POST /api/transfer", s.handleTransfer)
	return s.cors(mux)
}

// ListenAndServe listens on addr and serves until the server is shut down.
func (s *Server) ListenAndServe(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(listener)
}

// Serve serves on an existing listener. It returns nil after Shutdown.
func (s *Server) Serve(listener net.Listener) error {
	s.server = &http.Server{
		Handler:           h2c.NewHandler(s.Handler(), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.WithFields(logrus.Fields{
		"addr": listener.Addr().String(),
		"mode": s.cfg.Mode,
	}).Info("API listening")
	if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && slices.Contains(s.cfg.AllowedOrigins, origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v before writing the header, so a value that cannot be
// encoded turns into a 500 instead of a success status with an empty body.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.NewLogger("api").WithError(err).Error("Failed to encode response")
		status = http.StatusInternalServerError
		data, _ = json.Marshal(failure{Message: msgInternal, Timestamp: time.Now().UTC()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		logging.NewLogger("api").WithError(err).Debug("Failed to write response")
	}
}

// failure is the body of every 4xx/5xx answer.
type failure struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, failure{Message: msg, Timestamp: time.Now().UTC()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "OK",
		"message":   "Bank Transfer API is running",
		"mode":      s.cfg.Mode,
		"version":   version.GetInfo().Short(),
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleReceiverIBAN(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("Receiver IBAN requested")
	writeJSON(w, http.StatusOK, map[string]string{"iban": s.cfg.ReceiverIBAN})
}

func (s *Server) handleBanks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.banks.List())
}

// handleGetSession returns a session record with its credentials redacted.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "session store not configured", http.StatusServiceUnavailable)
		return
	}
	rec, err := s.store.Get(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, errors.ErrCodeSessionNotFound) {
			writeFailure(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.WithError(err).Error("Failed to read session")
		writeFailure(w, http.StatusInternalServerError, msgInternal)
		return
	}
	writeJSON(w, http.StatusOK, rec.Redacted())
}

// sessionEvent is one event of the session streams.
type sessionEvent struct {
	Kind      sessions.EventKind `json:"kind"`
	SessionID string             `json:"session_id"`
	Record    *sessions.Record   `json:"record,omitempty"`
}

// watchSessions forwards store changes, credentials redacted, until ctx ends.
func (s *Server) watchSessions(ctx context.Context) <-chan sessionEvent {
	out := make(chan sessionEvent, 16)
	go func() {
		err := s.store.Watch(ctx, func(ev sessions.Event) {
			e := sessionEvent{Kind: ev.Kind, SessionID: ev.SessionID}
			if ev.Record != nil {
				e.Record = ev.Record.Redacted()
			}
			select {
			case out <- e:
			case <-ctx.Done():
			}
		})
		if err != nil && ctx.Err() == nil {
			s.logger.WithError(err).Warn("Session watch stopped")
		}
	}()
	return out
}

// handleStreamSessions streams session record changes as Server-Sent Events,
// so a front end can follow a pending transfer without polling.
func (s *Server) handleStreamSessions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "session store not configured", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()
	s.logger.Debug("SSE client connected")

	ctx := r.Context()
	events := s.watchSessions(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("SSE client disconnected")
			return
		case ev := <-events:
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.WithError(err).Error("Failed to marshal session event")
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

const wsWriteTimeout = 5 * time.Second

// checkOrigin accepts clients without an Origin header, same-host pages and
// the configured front-end origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" || slices.Contains(s.cfg.AllowedOrigins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// handleSessionsSocket streams the same events as handleStreamSessions over
// a websocket, one JSON message per event.
func (s *Server) handleSessionsSocket(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "session store not configured", http.StatusServiceUnavailable)
		return
	}
	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Debug("Websocket upgrade failed")
		return
	}
	defer conn.Close()
	s.logger.Debug("Websocket client connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// Clients only listen; reading still has to happen to notice a close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	events := s.watchSessions(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Websocket client disconnected")
			return
		case ev := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.WithError(err).Debug("Websocket write failed")
				return
			}
		}
	}
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quarryhq/quarry/internal/model"
	"github.com/quarryhq/quarry/internal/session"
	"github.com/quarryhq/quarry/internal/store"
)

// Server exposes research sessions over HTTP and WebSocket.
type Server struct {
	registry *session.Registry
	cfg      model.ServerConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// New builds a server around an existing session registry. The zero values
// in cfg fall back to the defaults from model.DefaultConfig.
func New(registry *session.Registry, cfg model.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if s.cfg.AllowedOrigin == "" || s.cfg.AllowedOrigin == "*" {
				return true
			}
			return r.Header.Get("Origin") == s.cfg.AllowedOrigin
		},
	}
	return s
}

// Handler returns the fully routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/research", s.handleResearch)
	mux.HandleFunc("GET /api/sessions/{id}/report", s.handleReport)
	mux.HandleFunc("POST /api/sessions/{id}/conflicts/{conflictID}/resolution", s.handleResolveConflict)
	mux.HandleFunc("POST /api/sessions/{id}/claims/{claimID}/supersede", s.handleSupersede)
	mux.HandleFunc("GET /ws/research/{id}", s.handleStream)
	return s.withCORS(mux)
}

// Run serves until ctx is canceled, then drains in-flight requests within
// the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("server listening", zap.String("addr", s.cfg.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type researchRequest struct {
	SessionID string         `json:"session_id,omitempty"`
	Query     string         `json:"query"`
	Sources   []model.Source `json:"sources,omitempty"`
}

type researchResponse struct {
	SessionID string `json:"session_id"`
}

// handleResearch submits a round. With no session_id it opens a fresh
// session; with one it queues a follow-up on the existing session.
func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var (
		ctl   *session.Controller
		fresh bool
	)
	if req.SessionID == "" {
		ctl = s.registry.Open()
		fresh = true
	} else {
		var ok bool
		ctl, ok = s.registry.Get(req.SessionID)
		if !ok {
			s.httpError(w, http.StatusNotFound, "session not found")
			return
		}
	}

	if err := ctl.Submit(req.Query, req.Sources); err != nil {
		if fresh {
			_ = s.registry.Close(ctl.ID)
		}
		s.httpError(w, submitStatus(err), err.Error())
		return
	}

	s.logger.Info("research round accepted",
		zap.String("session_id", ctl.ID),
		zap.Bool("follow_up", !fresh))
	s.writeJSON(w, http.StatusAccepted, researchResponse{SessionID: ctl.ID})
}

func submitStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrSessionClosed):
		return http.StatusConflict
	case errors.Is(err, session.ErrRoundQueueFull):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

type reportResponse struct {
	SessionID string         `json:"session_id"`
	Stage     model.Stage    `json:"stage"`
	Document  model.Document `json:"document"`
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	ctl, ok := s.registry.Get(r.PathValue("id"))
	if !ok {
		s.httpError(w, http.StatusNotFound, "session not found")
		return
	}
	s.writeJSON(w, http.StatusOK, reportResponse{
		SessionID: ctl.ID,
		Stage:     ctl.Stage(),
		Document:  ctl.Document(),
	})
}

type resolveRequest struct {
	Resolution string `json:"resolution"`
}

func (s *Server) handleResolveConflict(w http.ResponseWriter, r *http.Request) {
	ctl, ok := s.registry.Get(r.PathValue("id"))
	if !ok {
		s.httpError(w, http.StatusNotFound, "session not found")
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Resolution == "" {
		s.httpError(w, http.StatusBadRequest, "resolution is required")
		return
	}

	if err := ctl.ResolveConflict(r.PathValue("conflictID"), req.Resolution); err != nil {
		if errors.Is(err, store.ErrConflictNotFound) {
			s.httpError(w, http.StatusNotFound, err.Error())
			return
		}
		s.httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type supersedeRequest struct {
	ReplacementID string `json:"replacement_id"`
}

func (s *Server) handleSupersede(w http.ResponseWriter, r *http.Request) {
	ctl, ok := s.registry.Get(r.PathValue("id"))
	if !ok {
		s.httpError(w, http.StatusNotFound, "session not found")
		return
	}

	var req supersedeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ReplacementID == "" {
		s.httpError(w, http.StatusBadRequest, "replacement_id is required")
		return
	}

	if err := ctl.SupersedeClaim(r.PathValue("claimID"), req.ReplacementID); err != nil {
		if errors.Is(err, store.ErrClaimNotFound) {
			s.httpError(w, http.StatusNotFound, err.Error())
			return
		}
		s.httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := s.cfg.AllowedOrigin
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("response encode failed", zap.Error(err))
	}
}

func (s *Server) httpError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}

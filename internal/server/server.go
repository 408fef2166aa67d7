package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"dlgen/internal/audit"
	"dlgen/internal/auth"
	"dlgen/internal/logging"
	"dlgen/internal/pipeline"
	"dlgen/internal/services"
	"dlgen/internal/session"
)

// AuditLister is the slice of the audit store the API needs.
type AuditLister interface {
	ListRuns(ctx context.Context, identity string, limit, offset int) ([]audit.Run, error)
}

// Runner is the slice of the pipeline the API needs.
type Runner interface {
	Run(ctx context.Context, sess *session.Session, events func(pipeline.Event)) (pipeline.Result, error)
	Placeholders(ctx context.Context, sess *session.Session) ([]string, error)
}

// Printer is the slice of the printing service the API needs.
type Printer interface {
	Printers(ctx context.Context) ([]string, error)
	Print(ctx context.Context, printer string, files []string) error
}

// Server exposes the generation API over HTTP.
type Server struct {
	bind     string
	logger   *slog.Logger
	sessions *session.Store
	runner   Runner
	printer  Printer
	audits   AuditLister
	auths    *auth.Store
	provider auth.Provider

	listener net.Listener
	server   *http.Server
}

// Options carries the server's collaborators. Auth fields may be nil, in
// which case the API runs unauthenticated for single-operator deployments.
type Options struct {
	Bind      string
	Logger    *slog.Logger
	Sessions  *session.Store
	Runner    Runner
	Printer   Printer
	Audits    AuditLister
	AuthStore *auth.Store
	Provider  auth.Provider
}

// New constructs the API server.
func New(opts Options) (*Server, error) {
	bind := strings.TrimSpace(opts.Bind)
	if bind == "" {
		return nil, services.Wrap(services.ErrConfiguration, "server", "", "bind address required", nil)
	}
	if opts.Sessions == nil || opts.Runner == nil {
		return nil, services.Wrap(services.ErrConfiguration, "server", "",
			"session store and pipeline required", nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	srv := &Server{
		bind:     bind,
		logger:   logging.WithComponent(logger, "api-server"),
		sessions: opts.Sessions,
		runner:   opts.Runner,
		printer:  opts.Printer,
		audits:   opts.Audits,
		auths:    opts.AuthStore,
		provider: opts.Provider,
	}

	srv.server = &http.Server{
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

// Routes builds the request mux, applying auth middleware when configured.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/api/upload_excel", s.authed(http.HandlerFunc(s.handleUploadExcel)))
	mux.Handle("/api/set_mode", s.authed(http.HandlerFunc(s.handleSetMode)))
	mux.Handle("/api/set_output_format", s.authed(http.HandlerFunc(s.handleSetOutputFormat)))
	mux.Handle("/api/placeholders", s.authed(http.HandlerFunc(s.handlePlaceholders)))
	mux.Handle("/api/generate", s.authed(http.HandlerFunc(s.handleGenerate)))
	mux.Handle("/api/download_zip", s.authed(http.HandlerFunc(s.handleDownloadZip)))
	mux.Handle("/api/printers", s.authed(http.HandlerFunc(s.handlePrinters)))
	mux.Handle("/api/print_files/", s.authed(http.HandlerFunc(s.handlePrintFiles)))
	mux.Handle("/api/cleanup", s.authed(http.HandlerFunc(s.handleCleanup)))
	mux.Handle("/api/audit_trail", s.adminOnly(http.HandlerFunc(s.handleAuditTrail)))

	if s.auths != nil && s.provider != nil {
		mux.HandleFunc("/auth/login", s.handleLogin)
		mux.HandleFunc("/auth/callback", s.handleCallback)
		mux.HandleFunc("/auth/logout", s.handleLogout)
	}
	return mux
}

func (s *Server) authed(next http.Handler) http.Handler {
	if s.auths == nil {
		return next
	}
	return s.auths.Require(next)
}

func (s *Server) adminOnly(next http.Handler) http.Handler {
	if s.auths == nil {
		return next
	}
	return s.auths.RequireAdmin(next)
}

// Start begins serving until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Stop shuts the server down.
func (s *Server) Stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// identity resolves the caller's identity; "local" when auth is disabled.
func (s *Server) identity(r *http.Request) string {
	if identity, ok := auth.FromContext(r.Context()); ok {
		return identity.Email
	}
	return "local"
}

func (s *Server) sessionFor(r *http.Request) (*session.Session, error) {
	return s.sessions.Get(s.identity(r))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps the error taxonomy onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrConflict):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

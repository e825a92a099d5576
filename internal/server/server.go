package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/ghostpni/ghostpni/internal/config"
	apperrors "github.com/ghostpni/ghostpni/internal/errors"
	"github.com/ghostpni/ghostpni/internal/observability"
	"github.com/ghostpni/ghostpni/internal/server/handlers"
	servermw "github.com/ghostpni/ghostpni/internal/server/middleware"
)

// Options configure the HTTP server. Engine and Journal are optional; the
// routes they back are only mounted when set.
type Options struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// WaitTimeout bounds blocking transaction submissions.
	WaitTimeout time.Duration
	CORSOrigins []string
	// AdminToken guards /api/v1/admin and /admin/signal. Empty disables both.
	AdminToken  string
	MetricsPort int

	Engine  handlers.Engine
	Journal handlers.JournalReader
}

// OptionsFromConfig maps loaded configuration onto server options. The
// admin token only ever comes from the environment.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		WaitTimeout:  cfg.Server.WaitTimeout,
		CORSOrigins:  cfg.Server.CORSOrigins,
		AdminToken:   strings.TrimSpace(os.Getenv(config.EnvName("ADMIN_TOKEN"))),
		MetricsPort:  cfg.Metrics.Port,
	}
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	opts   Options

	mu       sync.Mutex
	listener net.Listener
}

// New creates a new HTTP server instance
func New(opts Options) *Server {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 120 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)

	// RequestID → Metrics → Recovery
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", servermw.RequestIDHeader},
			ExposedHeaders:   []string{servermw.RequestIDHeader, "Location"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	s := &Server{
		router: r,
		opts:   opts,
		server: &http.Server{
			Handler:      r,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
			IdleTimeout:  opts.IdleTimeout,
		},
	}

	handlers.SetHTTPErrorResponder(apperrors.RespondWithError)
	s.registerRoutes()

	return s
}

// Start binds the listener and serves until Shutdown. It returns nil after
// a graceful shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(listener)
}

// Serve runs the server on an existing listener.
func (s *Server) Serve(listener net.Listener) error {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	if logger := observability.Logger(); logger != nil {
		logger.Info("Starting HTTP server",
			zap.String("addr", listener.Addr().String()),
			zap.Bool("engine", s.opts.Engine != nil),
			zap.Bool("journal", s.opts.Journal != nil),
			zap.Bool("admin", s.opts.AdminToken != ""))
	}

	err := s.server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if logger := observability.Logger(); logger != nil {
		logger.Info("Shutting down HTTP server")
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the bound port, or the configured one before Start.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
			return addr.Port
		}
	}
	return s.opts.Port
}

package server

import (
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ghostpni/ghostpni/internal/observability"
	"github.com/ghostpni/ghostpni/internal/server/handlers"
	servermw "github.com/ghostpni/ghostpni/internal/server/middleware"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	s.router.Get("/health", handlers.HealthHandler)
	s.router.Get("/health/live", handlers.LivenessHandler)
	s.router.Get("/health/ready", handlers.ReadinessHandler)
	s.router.Get("/health/startup", handlers.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", MetricsHandler(s.opts.MetricsPort))

	s.registerEngineRoutes()
	s.registerAdminSignalEndpoint()
}

func (s *Server) registerEngineRoutes() {
	if s.opts.Engine == nil && s.opts.Journal == nil {
		return
	}

	engineHandler := handlers.NewEngineHandler(s.opts.Engine, s.opts.WaitTimeout)
	s.router.Route("/api/v1", func(r chi.Router) {
		if s.opts.Engine != nil {
			r.Get("/status", engineHandler.Status)
			r.Get("/endpoints", engineHandler.Endpoints)

			r.Post("/transactions", engineHandler.SubmitTransaction)
			r.Get("/transactions/{id}", engineHandler.GetTransaction)
			r.Delete("/transactions/{id}", engineHandler.CancelTransaction)

			if s.opts.AdminToken != "" {
				r.Route("/admin", func(r chi.Router) {
					r.Use(servermw.BearerToken(s.opts.AdminToken))
					r.Post("/pause", engineHandler.Pause)
					r.Post("/resume", engineHandler.Resume)
					r.Post("/storm", engineHandler.Storm)
				})
			}
		}

		if s.opts.Journal != nil {
			journalHandler := handlers.NewJournalHandler(s.opts.Journal)
			r.Get("/journal", journalHandler.List)
			r.Get("/journal/stats", journalHandler.Stats)
		}
	})

	if s.opts.Engine != nil {
		s.router.Post("/rpc", engineHandler.RPCProxy)
	}
}

// registerAdminSignalEndpoint exposes gofulmen signal delivery when an
// admin token is configured.
func (s *Server) registerAdminSignalEndpoint() {
	logger := observability.Logger()

	if s.opts.AdminToken == "" {
		if logger != nil {
			logger.Debug("Admin endpoints disabled (no admin token set)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.opts.AdminToken,
		RateLimit: 10, // requests per minute
		RateBurst: 5,
		Manager:   nil, // default global manager
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin endpoints enabled",
			zap.Strings("paths", []string{"/admin/signal", "/api/v1/admin/pause", "/api/v1/admin/resume", "/api/v1/admin/storm"}),
			zap.String("auth", "bearer token"))
		logger.Warn("Admin endpoints enabled - ensure this server is not exposed to public internet")
	}
}

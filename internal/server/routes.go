package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/health", s.health)

	// Command routes
	r.Route("/command", func(r chi.Router) {
		r.Get("/", s.listCommands)
		r.Get("/{name}", s.getCommand)
		r.Post("/{name}/bind", s.bindCommand)
	})

	// Run routes
	r.Route("/run", func(r chi.Router) {
		r.Get("/", s.listRuns)
		r.Post("/", s.startRun)

		r.Route("/{runID}", func(r chi.Router) {
			r.Get("/", s.getRun)
			r.Post("/signal", s.signalRun)
		})
	})

	// Event streaming (SSE)
	r.Get("/event", s.events)
}

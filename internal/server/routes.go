package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.logRequests)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.recordRequests)

	r.Get("/healthz", s.handleHealth)

	if s.opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		if s.opts.RateLimitRequests > 0 {
			r.Use(httprate.LimitByIP(s.opts.RateLimitRequests, s.opts.RateLimitWindow))
		}

		r.Post("/artists", s.handleArtists)
		r.Post("/artists/similar", s.handleSimilarArtists)
		r.Post("/playlists", s.handlePlaylists)
		r.Get("/status", s.handleStatus)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/save", s.handleSave)
			r.Get("/save", s.handleSaveStatus)
		})
	})

	return r
}

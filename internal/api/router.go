/**
 * @description
 * This file sets up the HTTP router for the claim service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies
 * the authentication and observability middleware.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/prometheus/client_golang: Metrics endpoint.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ClaimRoutes creates and returns a new router for the claim service.
func ClaimRoutes(h *ClaimHandlers, jwksURL string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(MetricsMiddleware())

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL))

		r.Route("/claims", func(r chi.Router) {
			r.Post("/", h.CreateClaimHandler)
			r.Get("/", h.ListClaimsHandler)

			r.Route("/{claimID}", func(r chi.Router) {
				r.Get("/", h.GetClaimHandler)
				r.Get("/history", h.ListHistoryHandler)

				// Lifecycle transitions
				r.Post("/access-code", h.SubmitAccessCodeHandler)
				r.Post("/access-code/decision", h.ProcessAccessCodeHandler)
				r.Post("/claim-code", h.SubmitClaimCodeHandler)
				r.Post("/funds/request", h.RequestFundsHandler)
				r.Post("/funds/received", h.MarkFundsReceivedHandler)
				r.Post("/deposit", h.ApplyDepositHandler)
				r.Post("/complete", h.CompleteClaimHandler)
				r.Post("/cancel", h.CancelClaimHandler)
				r.Post("/reject", h.RejectClaimHandler)
				r.Post("/expire", h.ExpireClaimHandler)
				r.Post("/transition", h.TransitionClaimHandler)

				// Attachments
				r.Post("/notes", h.AddNoteHandler)
				r.Get("/notes", h.ListNotesHandler)
				r.Post("/documents", h.AttachDocumentHandler)
				r.Get("/documents", h.ListDocumentsHandler)
			})
		})
	})

	return r
}

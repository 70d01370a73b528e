package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"payerhub/internal/platform/middleware"
)

// NewRouter wires the public endpoints. The transport stays thin: handlers
// delegate to the orchestrator and services without embedding business
// logic. Token issuance and rate limiting live at the front door, not here.
func NewRouter(h *Handler, validator middleware.JWTValidator) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireAuth(validator, h.logger))

		r.Post("/documents/process", h.handleProcessDocument)
		r.Get("/runs/{correlationID}", h.handleGetRun)

		r.Post("/consents", h.handleGrantConsent)
		r.Post("/consents/{consentID}/revoke", h.handleRevokeConsent)
		r.Get("/patients/{patientID}/consents", h.handleListConsents)
		r.Get("/patients/{patientID}/audit", h.handleListAudit)
	})

	return r
}

/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend
  5. Metrics:    Per-route latency histograms

ROUTE GROUPS:
  /api/claims/*        Claim intake, review and adjudication
  /api/members/*       Membership register
  /api/meetings/*      Committee governance
  /api/appeals/*       Appeal resolution
  /api/payments/*      Payout reconciliation
  /api/scales          Reimbursement scale reference data
  /api/settings/*      Key/value fund settings
  /api/audit           Audit trail queries
  /metrics             Prometheus scrape endpoint
  /healthz             Liveness probe

SECURITY NOTE:
  Identity arrives via X-Actor-ID / X-Actor-Role headers from the gateway.
  This service performs authorization, not authentication.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-ID", "X-Actor-Role"},
		AllowCredentials: true,
	}))
	r.Use(metricsMiddleware)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Claim routes
		r.Route("/claims", func(r chi.Router) {
			r.Get("/", h.ListClaims)
			r.Post("/", h.CreateClaim)
			r.Get("/{id}", h.GetClaim)
			r.Post("/{id}/submit", h.SubmitClaim)
			r.Post("/{id}/status", h.SetClaimStatus)
			r.Post("/{id}/reviews", h.RecordReview)
			r.Get("/{id}/reviews", h.ListReviews)
			r.Post("/{id}/items", h.AddItem)
			r.Put("/{id}/items/{item}", h.UpdateItem)
			r.Post("/{id}/exclusion", h.SetExclusion)
			r.Post("/{id}/recompute", h.RecomputeClaim)
			r.Post("/{id}/attachments", h.RecordAttachment)
			r.Get("/{id}/appeals", h.ListAppeals)
			r.Post("/{id}/appeals", h.FileAppeal)
		})

		// Item routes (delete by item id alone)
		r.Route("/items", func(r chi.Router) {
			r.Delete("/{item}", h.RemoveItem)
		})

		// Member routes
		r.Route("/members", func(r chi.Router) {
			r.Get("/", h.ListMembers)
			r.Post("/", h.RegisterMember)
			r.Get("/{id}", h.GetMember)
			r.Post("/{id}/approve", h.ApproveMember)
			r.Post("/{id}/reject", h.RejectMember)
			r.Post("/{id}/dependants", h.AddDependant)
			r.Get("/{id}/eligibility", h.CheckEligibility)
		})

		// Membership tier routes
		r.Route("/membership-types", func(r chi.Router) {
			r.Get("/", h.ListMembershipTypes)
		})

		// Governance routes
		r.Route("/meetings", func(r chi.Router) {
			r.Post("/", h.CreateMeeting)
			r.Post("/{id}/lock", h.LockMeeting)
			r.Post("/{id}/attendance", h.RecordAttendance)
			r.Post("/{id}/claims", h.LinkClaim)
		})

		r.Route("/appeals", func(r chi.Router) {
			r.Post("/{id}/resolve", h.ResolveAppeal)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/{id}/reconcile", h.ReconcilePayment)
		})

		// Reference data routes
		r.Route("/scales", func(r chi.Router) {
			r.Get("/", h.ListScales)
			r.Put("/", h.PutScale)
		})
		r.Route("/settings", func(r chi.Router) {
			r.Get("/{key}", h.GetSetting)
			r.Put("/{key}", h.PutSetting)
		})

		// Audit routes
		r.Get("/audit", h.QueryAudit)
	})

	// Operational endpoints
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/campioncollege/beadle-core/internal/auth"
)

// Route permission requirements.
var (
	reqAuthenticated = auth.Authenticated()
	reqBeadle        = auth.AnyOf(auth.RoleBeadle)
	reqSlipReader    = auth.AnyOf(slipReaders...)
	reqSlipReviewer  = auth.AnyOf(auth.RoleSupervisor, auth.RoleAdmin)
	reqLiveFeed      = auth.AnyOf(auth.RoleSupervisor, auth.RoleStaff, auth.RoleAdmin)
	reqAccountReader = auth.AnyOf(auth.RoleAdmin, auth.RoleTechTeam)
	reqAdmin         = auth.AnyOf(auth.RoleAdmin)
	reqOperator      = auth.AnyOf(auth.RoleTechTeam, auth.RoleAdmin)
	reqDashboard     = auth.AllOf(auth.RoleAdmin, auth.RoleTechTeam)
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Public
		r.Get("/health", s.handleHealth)
		r.Post("/auth/signup", s.handleSignup)
		r.Post("/auth/login", s.handleLogin)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Any signed-in user
		r.Group(func(r chi.Router) {
			r.Use(s.requireRoles(reqAuthenticated))

			r.Post("/auth/logout", s.handleLogout)
			r.Get("/auth/me", s.handleMe)
			r.Patch("/auth/me", s.handleUpdateMe)
			r.Post("/auth/password", s.handleChangePassword)
			r.Get("/roles", s.handleListRoles)
			r.Get("/schedule", s.handleSchedule)
			r.Get("/schedule/class-time", s.handleClassTime)
		})

		r.With(s.requireRoles(reqLiveFeed)).Post("/auth/ws-ticket", s.handleWSTicket)

		r.Route("/users", func(r chi.Router) {
			r.With(s.requireRoles(reqAccountReader)).Get("/", s.handleListUsers)
			r.With(s.requireRoles(reqAccountReader)).Get("/{id}/roles", s.handleGetUserRoles)

			r.Group(func(r chi.Router) {
				r.Use(s.requireRoles(reqAdmin))
				r.Post("/{id}/roles", s.handleAddUserRole)
				r.Put("/{id}/roles", s.handleSetUserRoles)
				r.Delete("/{id}/roles/{role}", s.handleRemoveUserRole)
			})
		})

		r.Route("/slips", func(r chi.Router) {
			r.With(s.requireRoles(reqBeadle)).Post("/", s.handleSubmitSlip)
			r.With(s.requireRoles(reqBeadle)).Get("/mine", s.handleListMySlips)
			r.With(s.requireRoles(reqSlipReader)).Get("/", s.handleListSlips)
			// Readers see any slip; its submitter sees their own.
			r.With(s.requireRoles(reqAuthenticated)).Get("/{id}", s.handleGetSlip)
			r.With(s.requireRoles(reqSlipReviewer)).Post("/{id}/review", s.handleReviewSlip)
		})

		r.With(s.requireRoles(reqAdmin)).Get("/audit", s.handleListAuditLogs)
		r.With(s.requireRoles(reqOperator)).Get("/metrics", s.handleMetrics)
		r.With(s.requireRoles(reqDashboard)).Get("/admin/dashboard", s.handleAdminDashboard)
	})

	return r
}

// handleHealth reports whether the service and its database are up.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.HealthCheck(r.Context()); err != nil {
			s.logger.Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":  "degraded",
				"version": s.version,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// Package api wires all API routes onto the provided ServeMux.
package api

import (
	"log/slog"
	"net/http"

	"github.com/d9705996/confera/internal/api/handler"
	"github.com/d9705996/confera/internal/api/jsonapi"
	"github.com/d9705996/confera/internal/api/middleware"
	"github.com/d9705996/confera/internal/apperr"
	"github.com/d9705996/confera/internal/auth"
	"github.com/d9705996/confera/internal/health"
	"github.com/d9705996/confera/internal/membership"
	"github.com/d9705996/confera/internal/observability"
)

// Routes are the handlers and gate dependencies mounted by RegisterRoutes.
type Routes struct {
	Health       *health.Handler
	Auth         *handler.AuthHandler
	Organization *handler.OrganizationHandler
	Codec        *auth.Codec
	Members      *membership.Resolver
	Metrics      *observability.Metrics
	Limiter      *middleware.RateLimiter
}

// RegisterRoutes registers all application routes on mux.
func RegisterRoutes(mux *http.ServeMux, rt Routes) {
	// Public health endpoints (no auth required)
	mux.HandleFunc("GET /api/v1/health", rt.Health.ServeHealth)
	mux.HandleFunc("GET /api/v1/ready", rt.Health.ServeReady)

	// Credential-accepting endpoints are rate limited per client IP.
	limited := func(h http.HandlerFunc) http.Handler { return rt.Limiter.Middleware(h) }
	mux.Handle("POST /api/v1/auth/register", limited(rt.Auth.Register))
	mux.Handle("POST /api/v1/auth/login", limited(rt.Auth.Login))
	mux.Handle("POST /api/v1/auth/google", limited(rt.Auth.Google))
	mux.Handle("POST /api/v1/auth/forgot-password", limited(rt.Auth.ForgotPassword))
	mux.Handle("POST /api/v1/auth/reset-password", limited(rt.Auth.ResetPassword))

	// Cookie or query authenticated, no access token.
	mux.HandleFunc("POST /api/v1/auth/refresh", rt.Auth.Refresh)
	mux.HandleFunc("POST /api/v1/auth/logout", rt.Auth.Logout)
	mux.HandleFunc("GET /api/v1/auth/verify-email", rt.Auth.VerifyEmail)

	// Auth-required routes, wrapped with the request gate.
	protected := middleware.RequireAuth(rt.Codec, rt.Members, rt.Metrics)
	mux.Handle("GET /api/v1/auth/me", protected(http.HandlerFunc(rt.Auth.Me)))
	mux.Handle("GET /api/v1/auth/memberships", protected(http.HandlerFunc(rt.Auth.Memberships)))
	mux.Handle("POST /api/v1/auth/switch-org", protected(http.HandlerFunc(rt.Auth.SwitchOrg)))

	adminOnly := func(h http.HandlerFunc) http.Handler {
		return protected(middleware.RequireRole(string(membership.RoleAdmin))(h))
	}
	mux.Handle("GET /api/v1/organization/members", adminOnly(rt.Organization.ListMembers))
	mux.Handle("DELETE /api/v1/organization/members/{userID}", adminOnly(rt.Organization.RemoveMember))

	// Catch-all 404
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		jsonapi.RenderAppError(w, apperr.New(apperr.NotFound))
	})
}

// Wrap applies the outer middleware chain shared by every route.
func Wrap(h http.Handler, log *slog.Logger, metrics *observability.Metrics, frontendURL string) http.Handler {
	return middleware.Chain(h,
		middleware.RequestLogger(log),
		middleware.Recover,
		middleware.Metrics(metrics),
		middleware.CORS(frontendURL),
	)
}

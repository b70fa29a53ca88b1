package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/alecgard/entretien/internal/auth"
	"github.com/alecgard/entretien/internal/conversation"
	"github.com/alecgard/entretien/internal/cycle"
	"github.com/alecgard/entretien/internal/metrics"
	"github.com/alecgard/entretien/internal/user"
)

// Pinger reports database reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Auth          *auth.Service
	Guard         *auth.Guard
	Users         UserDirectory
	Importer      *user.Importer
	Cycles        *cycle.Service
	Conversations *conversation.Service
	Metrics       *metrics.Metrics
	DB            Pinger

	AllowedOrigins []string
	LoginRateLimit int // attempts per minute per IP; 0 uses the default
}

const defaultLoginRateLimit = 10

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(secureHeaders)
	r.Use(requestIDMiddleware)
	r.Use(corsMiddleware(deps.AllowedOrigins))
	r.Use(metricsMiddleware(deps.Metrics))
	r.Use(slogRequestLogger)

	// Handlers.
	authH := newAuthHandler(deps.Auth, deps.Metrics)
	usersH := newUsersHandler(deps.Users, deps.Importer, deps.Auth, deps.Metrics)
	cyclesH := newCyclesHandler(deps.Cycles, deps.Metrics)
	convsH := newConversationsHandler(deps.Conversations, deps.Metrics)

	// Health check.
	r.Get("/health", healthHandler(deps.DB))

	// Metrics summary.
	if deps.Metrics != nil {
		r.Get("/metrics", deps.Metrics.Handler())
	}

	// Public (unauthenticated) routes.
	limit := deps.LoginRateLimit
	if limit <= 0 {
		limit = defaultLoginRateLimit
	}
	loginLimiter := newLoginRateLimiter(limit, time.Minute)
	r.Post("/api/v1/auth/login", rateLimitLogin(loginLimiter, authH.Login))

	// Session-authed routes.
	r.Route("/api/v1", func(ar chi.Router) {
		ar.Use(auth.SessionMiddleware(deps.Auth))

		// Reachable even when a password change is pending.
		ar.Post("/auth/logout", authH.Logout)
		ar.Get("/auth/me", authH.Me)
		ar.Post("/auth/change-password", authH.ChangePassword)

		// Everything else is blocked until a forced rotation completes.
		ar.Group(func(gr chi.Router) {
			gr.Use(auth.PasswordChangeGate)

			gr.Get("/cycles/active", cyclesH.GetActiveCycle)

			// Own conversation in the active cycle.
			gr.Get("/conversations/me", convsH.GetMine)
			gr.Put("/conversations/me", convsH.UpdateMine)

			// History read across cycles.
			gr.Get("/conversations/{id}", convsH.GetByID)

			// Manager surface. Authorization is resource-scoped inside the
			// service, so there is no blanket role middleware here.
			gr.Get("/reports", convsH.ListReports)
			gr.Get("/reports/{email}/conversation", convsH.GetReportConversation)
			gr.Put("/reports/{email}/conversation", convsH.UpdateReportConversation)

			// Admin surface.
			gr.Route("/admin", func(adm chi.Router) {
				adm.Use(requireAdmin(deps.Guard))

				adm.Get("/users", usersH.ListUsers)
				adm.Get("/users/{email}", usersH.GetUser)
				adm.Put("/users/{email}", usersH.UpdateUser)
				adm.Delete("/users/{email}", usersH.DeleteUser)
				adm.Post("/users/import", usersH.ImportUsers)
				adm.Post("/users/reset-passwords", usersH.ResetPasswords)
				adm.Post("/users/{email}/reset-password", usersH.ResetPassword)

				adm.Post("/cycles", cyclesH.CreateCycle)
				adm.Get("/cycles", cyclesH.ListCycles)
				adm.Get("/cycles/{id}", cyclesH.GetCycle)
				adm.Patch("/cycles/{id}", cyclesH.SetCycleStatus)
				adm.Get("/cycles/{id}/conversations", convsH.ListCycleConversations)
			})
		})
	})

	return r
}

// healthHandler reports server and database status. With no pool wired (as
// in tests) the database is reported as connected.
func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbStatus := "connected"
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				dbStatus = "unreachable"
			}
		}

		status := http.StatusOK
		overall := "ok"
		if dbStatus != "connected" {
			status = http.StatusServiceUnavailable
			overall = "degraded"
		}
		writeJSON(w, status, map[string]string{
			"status":   overall,
			"database": dbStatus,
		})
	}
}

// slogRequestLogger is a simple structured logging middleware using slog.
func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes", ww.BytesWritten(),
			"request_id", RequestIDFromContext(r.Context()),
		)
	})
}

// Package router assembles the HTTP surface of the portal.
package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/carewellhealth/patient-portal/internal/chat"
	"github.com/carewellhealth/patient-portal/internal/guard"
	httpmiddleware "github.com/carewellhealth/patient-portal/internal/http/middleware"
	"github.com/carewellhealth/patient-portal/internal/identity"
	"github.com/carewellhealth/patient-portal/internal/records"
	"github.com/carewellhealth/patient-portal/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger          *logging.Logger
	Sessions        *identity.SessionManager
	IdentityHandler *identity.Handler
	GuardHandler    *guard.Handler
	ChatHandler     *chat.Handler
	RecordsHandler  *records.Handler
	MetricsHandler  http.Handler

	CORSAllowedOrigins []string

	// Login throttling (per client IP). Zero values fall back to 1 req/s
	// with a burst of 5.
	LoginRatePerSecond float64
	LoginBurst         int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	// Every route sees the session when one exists; only the protected group
	// below insists on it.
	r.Use(httpmiddleware.WithSession(cfg.Sessions))

	loginRate := cfg.LoginRatePerSecond
	if loginRate <= 0 {
		loginRate = 1
	}
	loginBurst := cfg.LoginBurst
	if loginBurst <= 0 {
		loginBurst = 5
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}

		public.With(httpmiddleware.RateLimit(loginRate, loginBurst)).
			Post("/api/auth", cfg.IdentityHandler.Login)
		public.Post("/api/logout", cfg.IdentityHandler.Logout)

		public.Post("/api/prompt-guard", cfg.GuardHandler.PromptGuard)

		// Session-optional: these bind anonymous callers to the sentinel
		// identity rather than rejecting them.
		public.Post("/api/validate-prompt", cfg.GuardHandler.ValidatePrompt)
		public.Post("/api/chat", cfg.ChatHandler.Chat)
	})

	// Patient-scoped endpoints
	r.Group(func(protected chi.Router) {
		protected.Use(httpmiddleware.RequireSession)

		protected.Get("/api/user", cfg.IdentityHandler.CurrentUser)
		protected.Get("/api/billing", cfg.RecordsHandler.Billing)
		protected.Get("/api/lab-results", cfg.RecordsHandler.LabResults)
		protected.Get("/api/prescriptions", cfg.RecordsHandler.Prescriptions)
	})

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

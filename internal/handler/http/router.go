package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/guard"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/navigation"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/health"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/middleware"
)

// RouterConfig holds the router's tunables.
type RouterConfig struct {
	ServiceName    string
	Development    bool
	DebugCIDRs     []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// Deps holds the collaborators the portal routes call.
type Deps struct {
	Auth          AuthFlows
	Session       SessionReader
	Clearer       SessionClearer
	Tokens        TokenReader
	UserID        middleware.UserIDFunc
	Subscriptions Subscriptions
	Nutrition     NutritionPlans
	Affiliates    Affiliates
	History       *navigation.History
	Health        *health.Handler
	Logger        *slog.Logger
}

// NewRouter creates a chi router with all portal routes registered. Every
// page request is a navigation recorded in History; guards decide from the
// session state alone.
func NewRouter(d Deps, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.RequestLogging(d.Logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogger(d.Logger, d.UserID))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))

	// Health check endpoints
	r.Get("/health/live", d.Health.LivenessHandler())
	r.Get("/health/ready", d.Health.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	authHandler := NewAuthHandler(d.Auth, d.Logger)
	sessionHandler := NewSessionHandler(d.Session, d.Logger)
	subscriptionHandler := NewSubscriptionHandler(d.Subscriptions, d.Logger)
	nutritionHandler := NewNutritionHandler(d.Nutrition, d.Logger)
	affiliateHandler := NewAffiliateHandler(d.Affiliates, d.Logger)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, d.Logger))
		r.Use(d.History.Middleware)

		// Public
		r.Get("/api/session", sessionHandler.Get)
		r.Get("/nutrition/diseases", nutritionHandler.Diseases)
		r.Post("/nutrition/preview", nutritionHandler.Preview)
		r.Get("/nutrition/demo", nutritionHandler.Demo)
		r.Get("/register/referral/{code}", authHandler.CheckReferral)

		// Guest-only
		r.Group(func(r chi.Router) {
			r.Use(guard.Unauthenticated(d.Session))

			r.Get(guard.LoginPath, authHandler.LoginPage)
			r.Post(guard.LoginPath, authHandler.Login)
			r.Get(guard.RegisterPath, authHandler.RegisterPage)
			r.Post(guard.RegisterPath, authHandler.Register)
		})

		// Protected
		r.Group(func(r chi.Router) {
			r.Use(guard.Authenticated(d.Session))

			r.Get(guard.DashboardPath, sessionHandler.Dashboard)
			r.Post("/logout", authHandler.Logout)

			r.Get("/profile", authHandler.GetProfile)
			r.Put("/profile", authHandler.UpdateProfile)
			r.Post("/profile/password", authHandler.ChangePassword)

			r.Get("/subscription", subscriptionHandler.Status)
			r.Post("/subscription", subscriptionHandler.Create)
			r.Get("/subscription/plans", subscriptionHandler.Plans)
			r.Post("/subscription/cancel", subscriptionHandler.Cancel)
			r.Post("/subscription/payment-intent", subscriptionHandler.PaymentIntent)

			r.Get("/nutrition/plans", nutritionHandler.Plans)
			r.Post("/nutrition/plans", nutritionHandler.CreatePlan)
			r.Get("/nutrition/plans/{id}", nutritionHandler.Plan)
			r.Put("/nutrition/plans/{id}", nutritionHandler.UpdatePlan)
			r.Post("/nutrition/calculate", nutritionHandler.Calculate)
			r.Get("/nutrition/whatsapp", nutritionHandler.WhatsAppMessages)
			r.Post("/nutrition/whatsapp", nutritionHandler.SendWhatsAppMessage)

			r.Get("/affiliate", affiliateHandler.Dashboard)
			r.Get("/affiliate/stats", affiliateHandler.Stats)
			r.Get("/affiliate/commissions", affiliateHandler.Commissions)
			r.Get("/affiliate/referrals", affiliateHandler.Referrals)
			r.Get("/affiliate/payouts", affiliateHandler.Payouts)
			r.Post("/affiliate/payouts", affiliateHandler.CreatePayout)
			r.Post("/affiliate/link", affiliateHandler.GenerateLink)
		})
	})

	// Development diagnostics
	if cfg.Development {
		debugHandler := NewDebugHandler(d.Session, d.Clearer, d.Tokens, d.Logger)
		r.Group(func(r chi.Router) {
			r.Use(middleware.IPAllowlist(cfg.DebugCIDRs, d.Logger))

			r.Get("/debug/auth", debugHandler.Auth)
			r.Post("/debug/auth/clear", debugHandler.Clear)
		})
		middleware.RegisterPprof(r, d.Logger)
	}

	return r
}

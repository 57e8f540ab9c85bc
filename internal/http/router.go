// Package httpx wires the chi router: public checkout endpoints, API-key
// protected tenant endpoints, the webhook intake and the token-protected
// admin surface.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"paygate/internal/config"
	"paygate/internal/http/handlers"
	middlewarex "paygate/internal/http/middleware"
	"paygate/internal/services/payment"
	"paygate/internal/services/tenant"
	"paygate/internal/services/webhook"
)

// RouterDependencies holds everything the HTTP surface needs.
type RouterDependencies struct {
	Config         config.Cfg
	PaymentService *payment.Service
	TenantService  *tenant.Service
	WebhookService *webhook.Service
}

func NewRouter(deps RouterDependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middlewarex.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Admin-Token"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// checkout-facing, no tenant credential involved
	r.Get("/api/v1/storefronts/{id}/payment-methods", handlers.AvailableMethods(deps.PaymentService))

	// tenant API, bearer key auth
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middlewarex.APIKeyAuth(deps.TenantService))

		r.Post("/payments/intents", handlers.CreateIntent(deps.PaymentService))
		r.Get("/payments/{id}", handlers.GetPayment(deps.PaymentService))
		r.Post("/payments/{id}/refund", handlers.RefundPayment(deps.PaymentService))
		r.Post("/payments/{id}/cancel", handlers.CancelPayment(deps.PaymentService))
		r.Get("/payments", handlers.ListPayments(deps.PaymentService))
		r.Get("/analytics", handlers.Analytics(deps.PaymentService))
	})

	// provider callbacks, authenticated by signature inside the service
	r.Post("/webhooks/{provider}", handlers.ProviderWebhook(deps.WebhookService))

	// operator surface
	r.Route("/admin", func(r chi.Router) {
		r.Use(middlewarex.AdminAuth(deps.Config.Sec.AdminToken))

		r.Post("/tenants", handlers.OnboardTenant(deps.TenantService))
		r.Post("/tenants/{tenantID}/providers", handlers.ConfigureProvider(deps.TenantService))
		r.Get("/tenants/{tenantID}/providers", handlers.ListProviders(deps.TenantService))
		r.Patch("/tenants/{tenantID}/providers/{provider}", handlers.UpdateProvider(deps.TenantService))
		r.Delete("/tenants/{tenantID}/providers/{provider}", handlers.DisableProvider(deps.TenantService))
		r.Post("/storefronts/{id}/methods", handlers.UpsertMethod(deps.TenantService))
		r.Get("/storefronts/{id}/methods", handlers.ListMethods(deps.TenantService))
		r.Get("/webhook-events", handlers.ListWebhookEvents(deps.WebhookService))
	})

	return r
}

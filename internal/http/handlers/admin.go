package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"paygate/internal/domain/providercfg"
	"paygate/internal/services/tenant"
	"paygate/internal/services/webhook"
)

type onboardRequest struct {
	Name string `json:"name" validate:"required,min=2"`
}

// OnboardTenant creates a tenant. The response is the only place the
// plaintext API key ever appears.
func OnboardTenant(tenants *tenant.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req onboardRequest
		if !decode(w, r, &req) {
			return
		}
		t, key, err := tenants.Onboard(r.Context(), req.Name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"tenant_id": t.ID,
			"name":      t.Name,
			"api_key":   key,
		})
	}
}

type configureProviderRequest struct {
	Provider    string            `json:"provider" validate:"required"`
	Mode        string            `json:"mode" validate:"required,oneof=test live"`
	Credentials map[string]string `json:"credentials" validate:"required,min=1"`
	FeeBearer   string            `json:"fee_bearer" validate:"omitempty,oneof=wholesaler retailer customer split"`
	Fees        map[string]any    `json:"fees"`
}

func ConfigureProvider(tenants *tenant.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := uuid.Parse(chi.URLParam(r, "tenantID"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errBody("invalid_id", "tenant id must be a UUID"))
			return
		}
		var req configureProviderRequest
		if !decode(w, r, &req) {
			return
		}

		summary, err := tenants.ConfigureProvider(r.Context(), tenant.ConfigureProviderInput{
			TenantID:    tenantID,
			Provider:    req.Provider,
			Mode:        providercfg.Mode(req.Mode),
			Credentials: req.Credentials,
			FeeBearer:   providercfg.FeeBearer(req.FeeBearer),
			Fees:        req.Fees,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, summary)
	}
}

type updateProviderRequest struct {
	Mode        *string           `json:"mode" validate:"omitempty,oneof=test live"`
	Credentials map[string]string `json:"credentials"`
	FeeBearer   *string           `json:"fee_bearer" validate:"omitempty,oneof=wholesaler retailer customer split"`
	Fees        map[string]any    `json:"fees"`
	Enabled     *bool             `json:"enabled"`
}

func UpdateProvider(tenants *tenant.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := uuid.Parse(chi.URLParam(r, "tenantID"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errBody("invalid_id", "tenant id must be a UUID"))
			return
		}
		var req updateProviderRequest
		if !decode(w, r, &req) {
			return
		}

		in := tenant.UpdateProviderInput{
			TenantID:    tenantID,
			Provider:    chi.URLParam(r, "provider"),
			Credentials: req.Credentials,
			Fees:        req.Fees,
			Enabled:     req.Enabled,
		}
		if req.Mode != nil {
			m := providercfg.Mode(*req.Mode)
			in.Mode = &m
		}
		if req.FeeBearer != nil {
			fb := providercfg.FeeBearer(*req.FeeBearer)
			in.FeeBearer = &fb
		}

		summary, err := tenants.UpdateProvider(r.Context(), in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func DisableProvider(tenants *tenant.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := uuid.Parse(chi.URLParam(r, "tenantID"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errBody("invalid_id", "tenant id must be a UUID"))
			return
		}
		if err := tenants.DisableProvider(r.Context(), tenantID, chi.URLParam(r, "provider")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func ListProviders(tenants *tenant.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := uuid.Parse(chi.URLParam(r, "tenantID"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errBody("invalid_id", "tenant id must be a UUID"))
			return
		}
		summaries, err := tenants.ListProviders(r.Context(), tenantID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": summaries})
	}
}

type upsertMethodRequest struct {
	TenantID           uuid.UUID `json:"tenant_id" validate:"required"`
	Provider           string    `json:"provider" validate:"required"`
	Enabled            bool      `json:"enabled"`
	DisplayName        string    `json:"display_name"`
	DisplayDescription string    `json:"display_description"`
	DisplayOrder       int       `json:"display_order" validate:"gte=0"`
	MinAmount          int64     `json:"min_amount" validate:"gte=0"`
	MaxAmount          int64     `json:"max_amount" validate:"gte=0"`
}

func UpsertMethod(tenants *tenant.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storefrontID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errBody("invalid_id", "storefront id must be a UUID"))
			return
		}
		var req upsertMethodRequest
		if !decode(w, r, &req) {
			return
		}

		m, err := tenants.UpsertMethod(r.Context(), tenant.MethodInput{
			TenantID:           req.TenantID,
			StorefrontID:       storefrontID,
			Provider:           req.Provider,
			Enabled:            req.Enabled,
			DisplayName:        req.DisplayName,
			DisplayDescription: req.DisplayDescription,
			DisplayOrder:       req.DisplayOrder,
			MinAmount:          req.MinAmount,
			MaxAmount:          req.MaxAmount,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, m)
	}
}

func ListMethods(tenants *tenant.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storefrontID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errBody("invalid_id", "storefront id must be a UUID"))
			return
		}
		methods, err := tenants.ListMethods(r.Context(), storefrontID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": methods})
	}
}

// ListWebhookEvents exposes the delivery audit log to operators. Payloads are
// omitted; they may embed provider identifiers not meant for the admin UI.
func ListWebhookEvents(webhooks *webhook.Service) http.HandlerFunc {
	type eventDTO struct {
		ID            uuid.UUID `json:"id"`
		Provider      string    `json:"provider"`
		EventType     string    `json:"event_type"`
		EventID       string    `json:"event_id"`
		Verified      bool      `json:"verified"`
		Outcome       string    `json:"outcome"`
		ErrorMessage  string    `json:"error_message,omitempty"`
		TransactionID any       `json:"transaction_id,omitempty"`
		ProcessingMS  int64     `json:"processing_ms"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := 50, 0
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
				limit = n
			}
		}
		if v := r.URL.Query().Get("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		events, err := webhooks.Recent(r.Context(), limit, offset)
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]eventDTO, 0, len(events))
		for _, e := range events {
			dto := eventDTO{
				ID:           e.ID,
				Provider:     e.Provider,
				EventType:    e.EventType,
				EventID:      e.EventID,
				Verified:     e.Verified,
				Outcome:      string(e.Outcome),
				ErrorMessage: e.ErrorMessage,
				ProcessingMS: e.ProcessingMS,
			}
			if e.TransactionID != nil {
				dto.TransactionID = *e.TransactionID
			}
			out = append(out, dto)
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": out})
	}
}

package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"paygate/internal/domain/transaction"
	middlewarex "paygate/internal/http/middleware"
	"paygate/internal/services/payment"
	"paygate/internal/store/repositories"
)

type transactionDTO struct {
	ID               uuid.UUID  `json:"id"`
	StorefrontID     uuid.UUID  `json:"storefront_id"`
	OrderID          uuid.UUID  `json:"order_id"`
	Provider         string     `json:"provider"`
	Amount           int64      `json:"amount"`
	AmountFormatted  string     `json:"amount_formatted"`
	Currency         string     `json:"currency"`
	Status           string     `json:"status"`
	RefundedAmount   int64      `json:"refunded_amount"`
	ProviderIntentID string     `json:"provider_intent_id,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

func toDTO(t *transaction.Transaction) transactionDTO {
	return transactionDTO{
		ID:               t.ID,
		StorefrontID:     t.StorefrontID,
		OrderID:          t.OrderID,
		Provider:         t.Provider,
		Amount:           int64(t.Amount),
		AmountFormatted:  t.Amount.Format(),
		Currency:         string(t.Currency),
		Status:           string(t.Status),
		RefundedAmount:   int64(t.RefundedAmount),
		ProviderIntentID: t.ProviderIntentID,
		ErrorMessage:     t.ErrorMessage,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
		CompletedAt:      t.CompletedAt,
	}
}

type createIntentRequest struct {
	StorefrontID  uuid.UUID `json:"storefront_id" validate:"required"`
	OrderID       uuid.UUID `json:"order_id" validate:"required"`
	Provider      string    `json:"provider" validate:"required"`
	Amount        int64     `json:"amount" validate:"required,gt=0"`
	Currency      string    `json:"currency" validate:"required,len=3"`
	CustomerEmail string    `json:"customer_email" validate:"omitempty,email"`
	ReturnURL     string    `json:"return_url" validate:"omitempty,url"`
	CancelURL     string    `json:"cancel_url" validate:"omitempty,url"`
}

func CreateIntent(payments *payment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := middlewarex.TenantID(r.Context())
		if !ok {
			http.Error(w, "tenant not found", http.StatusUnauthorized)
			return
		}
		var req createIntentRequest
		if !decode(w, r, &req) {
			return
		}

		out, err := payments.CreateIntent(r.Context(), payment.CreateIntentInput{
			TenantID:      tenantID,
			StorefrontID:  req.StorefrontID,
			OrderID:       req.OrderID,
			Provider:      req.Provider,
			Amount:        transaction.Money(req.Amount),
			Currency:      transaction.Currency(req.Currency),
			CustomerEmail: req.CustomerEmail,
			ReturnURL:     req.ReturnURL,
			CancelURL:     req.CancelURL,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"transaction":   toDTO(out.Transaction),
			"client_secret": out.ClientSecret,
			"redirect_url":  out.RedirectURL,
			"metadata":      out.Metadata,
		})
	}
}

func GetPayment(payments *payment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := middlewarex.TenantID(r.Context())
		if !ok {
			http.Error(w, "tenant not found", http.StatusUnauthorized)
			return
		}
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errBody("invalid_id", "id must be a UUID"))
			return
		}

		t, err := payments.Get(r.Context(), tenantID, id)
		if err != nil {
			writeError(w, err)
			return
		}
		history, err := payments.History(r.Context(), tenantID, id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"transaction": toDTO(t),
			"history":     history,
		})
	}
}

type refundRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Reason string `json:"reason"`
}

func RefundPayment(payments *payment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := middlewarex.TenantID(r.Context())
		if !ok {
			http.Error(w, "tenant not found", http.StatusUnauthorized)
			return
		}
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errBody("invalid_id", "id must be a UUID"))
			return
		}
		var req refundRequest
		if !decode(w, r, &req) {
			return
		}

		t, err := payments.Refund(r.Context(), tenantID, id, transaction.Money(req.Amount), req.Reason)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transaction": toDTO(t)})
	}
}

func CancelPayment(payments *payment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := middlewarex.TenantID(r.Context())
		if !ok {
			http.Error(w, "tenant not found", http.StatusUnauthorized)
			return
		}
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errBody("invalid_id", "id must be a UUID"))
			return
		}

		t, err := payments.Cancel(r.Context(), tenantID, id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transaction": toDTO(t)})
	}
}

func ListPayments(payments *payment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := middlewarex.TenantID(r.Context())
		if !ok {
			http.Error(w, "tenant not found", http.StatusUnauthorized)
			return
		}

		f := repositories.TransactionFilter{
			Status:   transaction.Status(r.URL.Query().Get("status")),
			Provider: r.URL.Query().Get("provider"),
			Limit:    50,
		}
		if v := r.URL.Query().Get("storefront_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errBody("invalid_id", "storefront_id must be a UUID"))
				return
			}
			f.StorefrontID = &id
		}
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
				f.Limit = n
			}
		}
		if v := r.URL.Query().Get("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				f.Offset = n
			}
		}

		txns, err := payments.List(r.Context(), tenantID, f)
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]transactionDTO, 0, len(txns))
		for _, t := range txns {
			out = append(out, toDTO(t))
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": out})
	}
}

func Analytics(payments *payment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := middlewarex.TenantID(r.Context())
		if !ok {
			http.Error(w, "tenant not found", http.StatusUnauthorized)
			return
		}

		to := time.Now().UTC()
		from := to.AddDate(0, -1, 0)
		if v := r.URL.Query().Get("from"); v != "" {
			parsed, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errBody("invalid_range", "from must be RFC3339"))
				return
			}
			from = parsed
		}
		if v := r.URL.Query().Get("to"); v != "" {
			parsed, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errBody("invalid_range", "to must be RFC3339"))
				return
			}
			to = parsed
		}

		stats, err := payments.Stats(r.Context(), tenantID, from, to)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"from": from, "to": to, "providers": stats})
	}
}

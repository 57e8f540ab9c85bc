package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"paygate/internal/services/payment"
)

// AvailableMethods lists the checkout options for a storefront and amount.
// Public: storefront checkouts call this before the customer authenticates.
func AvailableMethods(payments *payment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storefrontID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errBody("invalid_id", "storefront id must be a UUID"))
			return
		}
		amount := int64(0)
		if v := r.URL.Query().Get("amount"); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				writeJSON(w, http.StatusBadRequest, errBody("invalid_amount", "amount must be a non-negative integer of minor units"))
				return
			}
			amount = n
		}

		methods, err := payments.AvailableMethods(r.Context(), storefrontID, amount)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": methods})
	}
}

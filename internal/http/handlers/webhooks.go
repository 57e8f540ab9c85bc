package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"paygate/internal/provider"
	"paygate/internal/services/webhook"
)

// maxWebhookBody bounds inbound payloads; providers send kilobytes, not megabytes.
const maxWebhookBody = 1 << 20

// ProviderWebhook receives provider notifications. Anything the service could
// record is acknowledged with 200 so the provider stops retrying; only an
// unknown provider or an unparseable payload earns an error status.
func ProviderWebhook(webhooks *webhook.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerName := chi.URLParam(r, "provider")

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errBody("unreadable_body", "could not read request body"))
			return
		}

		evt, err := webhooks.Ingest(r.Context(), providerName, payload, r.Header)
		if errors.Is(err, provider.ErrUnknownProvider) {
			writeJSON(w, http.StatusNotFound, errBody("unknown_provider", providerName))
			return
		}
		if err != nil && evt == nil {
			writeJSON(w, http.StatusBadRequest, errBody("unparseable_payload", "payload could not be parsed"))
			return
		}
		if err != nil {
			// event recorded but bookkeeping failed; let the provider retry
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "outcome": evt.Outcome})
	}
}

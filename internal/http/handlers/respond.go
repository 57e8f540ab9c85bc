package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"paygate/internal/domain/transaction"
	"paygate/internal/provider"
	"paygate/internal/services/payment"
	"paygate/internal/services/tenant"
	"paygate/internal/store/repositories"
	"paygate/internal/vault"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid_json", "request body is not valid JSON"))
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("validation_failed", err.Error()))
		return false
	}
	return true
}

func errBody(code, message string) map[string]any {
	return map[string]any{"error": map[string]string{"code": code, "message": message}}
}

// writeError maps the service error taxonomy onto HTTP statuses. Provider
// errors keep their stable codes; internal failures are logged and masked.
func writeError(w http.ResponseWriter, err error) {
	var pe *provider.Error
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errBody("not_found", "resource not found"))
	case errors.Is(err, payment.ErrNotConfigured),
		errors.Is(err, payment.ErrMethodUnavailable),
		errors.Is(err, tenant.ErrProviderNotEnabled),
		errors.Is(err, provider.ErrUnknownProvider):
		writeJSON(w, http.StatusUnprocessableEntity, errBody("not_configured", err.Error()))
	case errors.Is(err, transaction.ErrInvalidTransition),
		errors.Is(err, transaction.ErrRefundRejected),
		errors.Is(err, payment.ErrNotCancelable):
		writeJSON(w, http.StatusConflict, errBody("conflict", err.Error()))
	case errors.Is(err, provider.ErrTimeout):
		writeJSON(w, http.StatusGatewayTimeout, errBody(provider.CodeProviderTimeout, "provider did not answer in time"))
	case errors.As(err, &pe):
		writeJSON(w, http.StatusUnprocessableEntity, errBody(pe.Code, pe.Message))
	case vault.IsVaultError(err):
		log.Error().Err(err).Msg("credential vault failure")
		writeJSON(w, http.StatusInternalServerError, errBody("credential_error", "credential storage failure, contact support"))
	default:
		log.Error().Err(err).Msg("unhandled request error")
		writeJSON(w, http.StatusInternalServerError, errBody("internal", "internal error"))
	}
}

package provider

import (
	"errors"
	"fmt"
)

// Error categories. Callers branch with errors.Is; the concrete *Error carries
// the stable code and human-readable reason.
var (
	ErrRejected           = errors.New("provider rejected request")
	ErrTimeout            = errors.New("provider timed out")
	ErrVerificationFailed = errors.New("webhook verification failed")
	ErrUnknownProvider    = errors.New("unknown provider")
)

// Error is a categorized provider failure with a stable caller-facing code.
type Error struct {
	Provider string
	Code     string
	Message  string
	kind     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s [%s]: %s", e.Provider, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.kind }

// Stable error codes surfaced to API callers.
const (
	CodeInvalidCredentials  = "invalid_credentials"
	CodeUnsupportedCurrency = "unsupported_currency"
	CodeAmountOutOfBounds   = "amount_out_of_bounds"
	CodeChargeNotRefundable = "charge_not_refundable"
	CodeProviderTimeout     = "provider_timeout"
	CodeProviderError       = "provider_error"
	CodeBadSignature        = "bad_signature"
)

// NewRejected builds a ProviderRejected-class error.
func NewRejected(providerName, code, message string) *Error {
	return &Error{Provider: providerName, Code: code, Message: message, kind: ErrRejected}
}

// NewTimeout builds a ProviderTimeout-class error.
func NewTimeout(providerName string) *Error {
	return &Error{Provider: providerName, Code: CodeProviderTimeout, Message: "request exceeded the call timeout", kind: ErrTimeout}
}

// NewVerificationFailed builds a webhook authenticity failure.
func NewVerificationFailed(providerName, message string) *Error {
	return &Error{Provider: providerName, Code: CodeBadSignature, Message: message, kind: ErrVerificationFailed}
}

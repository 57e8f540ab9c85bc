package webhook

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Outcome is the processing result of one inbound provider notification.
type Outcome string

const (
	OutcomePending            Outcome = "pending"
	OutcomeProcessed          Outcome = "processed"
	OutcomeDuplicate          Outcome = "duplicate"
	OutcomeVerificationFailed Outcome = "verification_failed"
	OutcomeIgnored            Outcome = "ignored" // unroutable: no matching transaction
	OutcomeFailed             Outcome = "failed"
)

// Event is the append-only record of one webhook delivery. Rows are written
// once at ingestion and finalized once; they are never updated afterwards.
type Event struct {
	ID             uuid.UUID
	Provider       string
	EventType      string
	EventID        string // provider-issued id, deduplication key
	Payload        []byte
	Signature      string
	Verified       bool
	Outcome        Outcome
	ErrorMessage   string
	TransactionID  *uuid.UUID
	ProcessingMS   int64
	ReceivedAt     time.Time
	ProcessedAt    *time.Time
}

// New creates an event in pending outcome.
func New(providerName, eventType, eventID string, payload []byte, signature string) (*Event, error) {
	if strings.TrimSpace(providerName) == "" {
		return nil, fmt.Errorf("provider is required")
	}
	if strings.TrimSpace(eventID) == "" {
		return nil, fmt.Errorf("event ID is required")
	}
	return &Event{
		ID:         uuid.New(),
		Provider:   providerName,
		EventType:  eventType,
		EventID:    eventID,
		Payload:    payload,
		Signature:  signature,
		Outcome:    OutcomePending,
		ReceivedAt: time.Now().UTC(),
	}, nil
}

// Finalize stamps the processing outcome and duration.
func (e *Event) Finalize(outcome Outcome, errMsg string, started time.Time) {
	now := time.Now().UTC()
	e.Outcome = outcome
	e.ErrorMessage = errMsg
	e.ProcessingMS = now.Sub(started).Milliseconds()
	e.ProcessedAt = &now
}

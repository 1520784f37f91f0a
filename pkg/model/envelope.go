package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the canonical event envelope published to NATS.
// The bot transport consumes these to notify users.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	UserID        int64           `json:"user_id,omitempty"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope builds an envelope around a JSON-marshalable payload.
func NewEnvelope(eventType string, userID int64, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		UserID:        userID,
		EventType:     eventType,
		Version:       "v1",
		Timestamp:     time.Now().UTC(),
		Payload:       data,
	}, nil
}

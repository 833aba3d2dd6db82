package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	EventTypeSpinStarted = "spin.started"
	EventTypeSpinSettled = "spin.settled"
	EventTypeSpinFailed  = "spin.failed"
)

// Event is one spin lifecycle notification.
type Event struct {
	ID         uuid.UUID
	SpinID     uuid.UUID
	SessionID  string
	EventType  string
	Payload    []byte
	OccurredAt time.Time
}

// SpinPayload is the body of every spin event.
type SpinPayload struct {
	CaseID     int64   `json:"case_id"`
	UserID     int64   `json:"user_id"`
	GiftID     int64   `json:"gift_id"`
	Pattern    string  `json:"pattern,omitempty"`
	TargetSlot int     `json:"target_slot"`
	Offset     float64 `json:"offset,omitempty"`
	Mismatch   bool    `json:"mismatch"`
	Error      string  `json:"error,omitempty"`
}

// NewSpinEvent builds an event carrying payload.
func NewSpinEvent(eventType string, spinID uuid.UUID, sessionID string, payload SpinPayload) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:         uuid.New(),
		SpinID:     spinID,
		SessionID:  sessionID,
		EventType:  eventType,
		Payload:    data,
		OccurredAt: time.Now().UTC(),
	}, nil
}

// Publisher delivers events to whoever listens for them.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// envelope is the wire form of an event.
func envelope(event Event) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"eventId":   event.ID.String(),
		"eventType": event.EventType,
		"spinId":    event.SpinID.String(),
		"sessionId": event.SessionID,
		"timestamp": event.OccurredAt,
		"payload":   jsoniter.RawMessage(event.Payload),
	})
}

package events

import (
	"context"

	"github.com/rs/zerolog/log"
)

// LogPublisher writes events to the log. It is used when no NATS server is
// configured.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, event Event) error {
	log.Info().
		Str("event_type", event.EventType).
		Str("event_id", event.ID.String()).
		Str("spin_id", event.SpinID.String()).
		Str("session_id", event.SessionID).
		RawJSON("payload", event.Payload).
		Msg("spin event")
	return nil
}

func (LogPublisher) Close() error { return nil }

package gateway

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Conversation events pushed to connections bound to a session.
const (
	EventMessageAppended = "chat.message"
	EventConversationNew = "chat.reset"
)

// EventBroadcaster pushes conversation events to every WebSocket bound to the
// same session, so several tabs on one cookie stay in step.
type EventBroadcaster struct {
	clients *ClientRegistry
	logger  zerolog.Logger
	seq     uint64
}

// NewEventBroadcaster creates a new event broadcaster
func NewEventBroadcaster(clients *ClientRegistry, logger zerolog.Logger) *EventBroadcaster {
	return &EventBroadcaster{
		clients: clients,
		logger:  logger,
	}
}

// Publish sends event to the connections of sessionID, skipping the
// connection with id except (the one that caused the event, if any).
func (b *EventBroadcaster) Publish(sessionID, except, event string, data interface{}) int {
	msg := EventMessage{
		Type:      "event",
		Event:     event,
		Session:   sessionID,
		Seq:       b.nextSeq(),
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}

	sent, failed := 0, 0
	for _, client := range b.clients.BySession(sessionID) {
		if client.ID == except {
			continue
		}
		if err := client.WriteJSON(msg); err != nil {
			b.logger.Warn().
				Err(err).
				Str("client_id", client.ID).
				Str("event", event).
				Int64("seq", msg.Seq).
				Msg("Failed to push event to client")
			failed++
			continue
		}
		sent++
	}

	if sent+failed > 0 {
		b.logger.Debug().
			Str("session_id", sessionID).
			Str("event", event).
			Int64("seq", msg.Seq).
			Int("success", sent).
			Int("failed", failed).
			Msg("Event published")
	}
	return sent
}

func (b *EventBroadcaster) nextSeq() int64 {
	return int64(atomic.AddUint64(&b.seq, 1))
}

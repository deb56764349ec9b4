package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cliptube/accounts/internal/mq"
	"go.uber.org/zap"
)

// ChannelAccountEvents is the broker channel account lifecycle events
// are published on.
const ChannelAccountEvents = "account-events"

const (
	EventUserRegistered   = "user.registered"
	EventSessionStarted   = "session.started"
	EventSessionRefreshed = "session.refreshed"
	EventSessionRevoked   = "session.revoked"
)

// AccountEvent is the payload published for account lifecycle events.
type AccountEvent struct {
	Type   string    `json:"type"`
	UserID int       `json:"user_id"`
	At     time.Time `json:"at"`
}

// Emitter publishes account events best-effort: publish failures are
// logged and never surfaced to the request that triggered them.
type Emitter struct {
	mq  *mq.MQ
	log *zap.Logger
}

// NewEmitter constructs an Emitter over the given broker.
func NewEmitter(m *mq.MQ, log *zap.Logger) *Emitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Emitter{mq: m, log: log}
}

// Emit publishes an event for the user. Safe to call on a nil Emitter.
func (e *Emitter) Emit(ctx context.Context, eventType string, userID int) {
	if e == nil || e.mq == nil {
		return
	}

	data, err := json.Marshal(AccountEvent{
		Type:   eventType,
		UserID: userID,
		At:     time.Now().UTC(),
	})
	if err != nil {
		e.log.Warn("failed to encode account event", zap.String("type", eventType), zap.Error(err))
		return
	}

	if _, err := e.mq.Publish(ctx, ChannelAccountEvents, data, map[string]string{"type": eventType}); err != nil {
		e.log.Warn("failed to publish account event",
			zap.String("type", eventType),
			zap.Int("user_id", userID),
			zap.Error(err),
		)
	}
}

package display

import (
	"context"
	"github.com/lefinal/gacha-arena/battle"
	"github.com/lefinal/gacha-arena/errors"
	"github.com/lefinal/gacha-arena/event"
	"github.com/lefinal/gacha-arena/ws"
)

// MessageTypeMatchUpdate is the ws.MessageType for match updates.
const MessageTypeMatchUpdate ws.MessageType = "match-update"

// Broadcaster sends messages to all spectators. Implemented by ws.Hub.
type Broadcaster interface {
	Broadcast(ctx context.Context, message ws.Message) error
}

// Spectators forwards match updates to websocket spectators.
type Spectators struct {
	broadcaster Broadcaster
}

// NewSpectators creates a new Spectators display.
func NewSpectators(broadcaster Broadcaster) *Spectators {
	return &Spectators{broadcaster: broadcaster}
}

// OnExchange broadcasts the snapshot as event.MatchUpdateEvent.
func (d *Spectators) OnExchange(ctx context.Context, m battle.Match) error {
	err := d.broadcaster.Broadcast(ctx, ws.Message{
		Type:    MessageTypeMatchUpdate,
		Payload: event.MatchUpdateEventFromMatch(m),
	})
	if err != nil {
		return errors.Wrap(err, "broadcast match update", errors.Details{"match_id": m.ID})
	}
	return nil
}

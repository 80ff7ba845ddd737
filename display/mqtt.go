package display

import (
	"context"
	"github.com/lefinal/gacha-arena/battle"
	"github.com/lefinal/gacha-arena/event"
	"github.com/lefinal/gacha-arena/portal"
)

// TopicMatchUpdate is the topic where match updates are published.
const TopicMatchUpdate = portal.Topic(portal.BaseTopic + "/match/update")

// MQTT publishes match updates via a portal.Portal so that the bot can render
// them.
type MQTT struct {
	portal portal.Portal
}

// NewMQTT creates a new MQTT display.
func NewMQTT(p portal.Portal) *MQTT {
	return &MQTT{portal: p}
}

// OnExchange publishes the snapshot as event.MatchUpdateEvent. Publish errors
// are logged by the portal.
func (d *MQTT) OnExchange(ctx context.Context, m battle.Match) error {
	d.portal.Publish(ctx, TopicMatchUpdate, event.MatchUpdateEventFromMatch(m))
	return nil
}

package battle

import (
	"fmt"
	"github.com/lefinal/gacha-arena/errors"
)

// TeamSize is the number of slots in a team. Every slot must be filled in order
// to fight.
const TeamSize = 4

// Playstyle is the optional passive ability of a card that is applied by
// ApplyBuffs at battle start.
type Playstyle string

const (
	// PlaystyleNone is used for cards without a playstyle.
	PlaystyleNone Playstyle = ""
	// PlaystyleLeader grants +5 strength to all allies including the card itself.
	PlaystyleLeader Playstyle = "LEADER"
	// PlaystyleVIP grants +5 speed to all allies.
	PlaystyleVIP Playstyle = "VIP"
	// PlaystyleTactic grants +5 defense to all allies.
	PlaystyleTactic Playstyle = "TACTIC"
	// PlaystyleSpirit grants +20 max and current HP to all allies.
	PlaystyleSpirit Playstyle = "SPIRIT"
	// PlaystyleLoner grants +5 strength to the card itself when it occupies the
	// last slot.
	PlaystyleLoner Playstyle = "LONER"
	// PlaystyleFear reduces the strength of all opponents by 5. Only applied when
	// enabled for ApplyBuffs.
	PlaystyleFear Playstyle = "FEAR"
)

// Stats of a card.
type Stats struct {
	HP       int `json:"hp"`
	Strength int `json:"strength"`
	Defense  int `json:"defense"`
	Speed    int `json:"speed"`
}

// BattleCard is a card instance that is owned by exactly one match.
type BattleCard struct {
	// ID is the id of the card in its owner's collection.
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Playstyle Playstyle `json:"playstyle,omitempty"`
	// OriginalStats is the snapshot taken when the card was prepared for battle.
	// Buffs are always applied on top of it.
	OriginalStats Stats `json:"original_stats"`
	// CurrentStats are the stats after buffs.
	CurrentStats Stats `json:"current_stats"`
	CurrentHP    int   `json:"current_hp"`
	Defeated     bool  `json:"defeated"`
}

// NewBattleCard creates a BattleCard with the given stats. Missing or invalid
// stats are rejected with errors.KindInvalidCardStats instead of being
// defaulted.
func NewBattleCard(id string, name string, playstyle Playstyle, stats Stats) (*BattleCard, error) {
	if id == "" {
		return nil, errors.NewBadRequestError(errors.KindMissingID, "missing card id", errors.Details{"name": name})
	}
	details := errors.Details{"card_id": id, "stats": stats}
	switch {
	case stats.HP <= 0:
		return nil, errors.NewBadRequestError(errors.KindInvalidCardStats, "hp must be positive", details)
	case stats.Strength <= 0:
		return nil, errors.NewBadRequestError(errors.KindInvalidCardStats, "strength must be positive", details)
	case stats.Defense < 0:
		return nil, errors.NewBadRequestError(errors.KindInvalidCardStats, "defense must not be negative", details)
	case stats.Speed < 0:
		return nil, errors.NewBadRequestError(errors.KindInvalidCardStats, "speed must not be negative", details)
	}
	switch playstyle {
	case PlaystyleNone, PlaystyleLeader, PlaystyleVIP, PlaystyleTactic, PlaystyleSpirit, PlaystyleLoner, PlaystyleFear:
	default:
		return nil, errors.NewBadRequestError(errors.KindInvalidCardStats, fmt.Sprintf("unknown playstyle %q", playstyle), details)
	}
	return &BattleCard{
		ID:            id,
		Name:          name,
		Playstyle:     playstyle,
		OriginalStats: stats,
		CurrentStats:  stats,
		CurrentHP:     stats.HP,
	}, nil
}

// Alive checks whether the card still has HP left.
func (c *BattleCard) Alive() bool {
	return c != nil && c.CurrentHP > 0
}

// Clone returns a deep copy of the card.
func (c *BattleCard) Clone() *BattleCard {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Team is a full set of battle cards in slot order.
type Team [TeamSize]*BattleCard

// Clone deep-copies all cards of the team.
func (t Team) Clone() Team {
	var clone Team
	for i, card := range t {
		clone[i] = card.Clone()
	}
	return clone
}

// AliveCards returns all cards that still have HP left in slot order.
func (t Team) AliveCards() []*BattleCard {
	alive := make([]*BattleCard, 0, TeamSize)
	for _, card := range t {
		if card.Alive() {
			alive = append(alive, card)
		}
	}
	return alive
}

// Undefeated returns the number of cards that are not marked as defeated.
func (t Team) Undefeated() int {
	n := 0
	for _, card := range t {
		if card != nil && !card.Defeated {
			n++
		}
	}
	return n
}

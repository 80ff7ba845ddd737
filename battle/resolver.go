package battle

import (
	"context"
	"fmt"
	"github.com/lefinal/gacha-arena/errors"
	"math/rand"
)

// DefaultMaxLogEntries is the exchange cap after which a match is aborted as a
// draw.
const DefaultMaxLogEntries = 100

// Damage calculates the damage an attacker with the given strength deals to a
// defender with the given defense. It is always at least 1.
func Damage(strength int, defense int) int {
	return max(1, strength*2-defense)
}

// Resolver resolves matches slot by slot until one side has no cards left.
type Resolver struct {
	// rng picks retarget victims.
	rng *rand.Rand
	// maxLogEntries is the number of exchanges a match may exceed without a
	// winner before it is aborted as a draw.
	maxLogEntries int
}

// NewResolver creates a Resolver. The given rand.Rand must not be shared with
// other goroutines. If maxLogEntries is not positive, DefaultMaxLogEntries is
// used.
func NewResolver(rng *rand.Rand, maxLogEntries int) *Resolver {
	if maxLogEntries <= 0 {
		maxLogEntries = DefaultMaxLogEntries
	}
	return &Resolver{
		rng:           rng,
		maxLogEntries: maxLogEntries,
	}
}

// Resolve runs the given match until it is done or aborted. The emit function
// is called synchronously after every exchange. Buffs are expected to be
// applied already. If the given context.Context is done, the match is aborted
// and the context's cause is returned. An exceeded exchange cap aborts the
// match and returns an errors.KindMatchAborted error.
func (r *Resolver) Resolve(ctx context.Context, m *Match, emit func(e Exchange)) error {
	if m.State != StateRunning {
		return errors.NewInternalError("resolve match that is not running",
			errors.Details{"match_id": m.ID, "state": m.State})
	}
	for _, player := range m.Players {
		player.RemainingCards = player.Team.Undefeated()
	}
	for sweep := 0; ; sweep++ {
		m.Sweep = sweep
		for slot := 0; slot < TeamSize; slot++ {
			if ctx.Err() != nil {
				m.Abort(fmt.Sprintf("cancelled: %v", context.Cause(ctx)))
				return context.Cause(ctx)
			}
			m.CurrentRound = slot
			if r.resolveSlot(m, sweep, slot, emit) {
				return nil
			}
		}
		if len(m.Log) > r.maxLogEntries {
			m.Abort(fmt.Sprintf("exceeded %d exchanges without a winner", r.maxLogEntries))
			return errors.NewMatchAbortedError(m.ID, m.AbortReason)
		}
	}
}

// resolveSlot resolves the given slot of the current sweep and reports whether
// the match is done.
func (r *Resolver) resolveSlot(m *Match, sweep int, slot int, emit func(e Exchange)) bool {
	p1, p2 := m.Players[0], m.Players[1]
	card1, card2 := p1.Team[slot], p2.Team[slot]
	var first, second *MatchPlayer
	switch {
	case card1.Alive() && card2.Alive():
		if card1.CurrentStats.Speed >= card2.CurrentStats.Speed {
			first, second = p1, p2
		} else {
			first, second = p2, p1
		}
	case card1.Alive():
		first = p1
	case card2.Alive():
		first = p2
	default:
		return false
	}
	defender := p2
	if first == p2 {
		defender = p1
	}
	if r.attack(m, sweep, slot, first, defender, emit) {
		return true
	}
	if second == nil || !second.Team[slot].Alive() {
		return false
	}
	return r.attack(m, sweep, slot, second, first, emit)
}

// attack lets the slot card of the attacker hit the defending team and reports
// whether the attacker won.
func (r *Resolver) attack(m *Match, sweep int, slot int, attacker *MatchPlayer, defender *MatchPlayer, emit func(e Exchange)) bool {
	attackerCard := attacker.Team[slot]
	defenderCard := defender.Team[slot]
	retargeted := false
	if !defenderCard.Alive() {
		alive := defender.Team.AliveCards()
		if len(alive) == 0 {
			m.finish(attacker, defender)
			return true
		}
		defenderCard = alive[r.rng.Intn(len(alive))]
		retargeted = true
	}
	damage := Damage(attackerCard.CurrentStats.Strength, defenderCard.CurrentStats.Defense)
	defenderCard.CurrentHP = max(0, defenderCard.CurrentHP-damage)
	attacker.DamageDealt += damage
	won := false
	if defenderCard.CurrentHP == 0 && !defenderCard.Defeated {
		defenderCard.Defeated = true
		defender.RemainingCards--
		attacker.CardsDefeated++
		if defender.RemainingCards <= 0 {
			m.finish(attacker, defender)
			won = true
		}
	}
	exchange := Exchange{
		Round:               slot,
		Sweep:               sweep,
		AttackerID:          attacker.UserID,
		DefenderID:          defender.UserID,
		AttackerCardID:      attackerCard.ID,
		DefenderCardID:      defenderCard.ID,
		Damage:              damage,
		Retargeted:          retargeted,
		AttackerCardHPAfter: attackerCard.CurrentHP,
		DefenderCardHPAfter: defenderCard.CurrentHP,
	}
	m.Log = append(m.Log, exchange)
	if emit != nil {
		emit(exchange)
	}
	return won
}

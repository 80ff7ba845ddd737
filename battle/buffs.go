package battle

const (
	// StatBuff is the amount by which LEADER, VIP, TACTIC, LONER and FEAR modify
	// a stat.
	StatBuff = 5
	// SpiritHPBuff is the amount of HP granted by SPIRIT.
	SpiritHPBuff = 20
)

// BuffConfig configures ApplyBuffs.
type BuffConfig struct {
	// ApplyFear enables the FEAR debuff on the opposing team.
	ApplyFear bool
}

// ApplyBuffs resets both teams to their original stats and applies all
// playstyle buffs in team order. Ally buffs are applied first. FEAR debuffs are
// applied afterwards, so the result does not depend on which team is listed
// first. Calling it again yields the same stats. It returns the number of
// applied buffs per team.
func ApplyBuffs(teams [2]*Team, config BuffConfig) [2]int {
	var applied [2]int
	for _, team := range teams {
		resetTeam(team)
	}
	for t, team := range teams {
		for i, card := range team {
			if card == nil {
				continue
			}
			if applyAllyBuff(team, i, card) {
				applied[t]++
			}
		}
	}
	if !config.ApplyFear {
		return applied
	}
	for t, team := range teams {
		opponents := teams[1-t]
		for _, card := range team {
			if card == nil || card.Playstyle != PlaystyleFear {
				continue
			}
			for _, opponent := range opponents {
				if opponent == nil {
					continue
				}
				opponent.CurrentStats.Strength = max(0, opponent.CurrentStats.Strength-StatBuff)
			}
			applied[t]++
		}
	}
	return applied
}

func resetTeam(team *Team) {
	for _, card := range team {
		if card == nil {
			continue
		}
		card.CurrentStats = card.OriginalStats
		card.CurrentHP = card.OriginalStats.HP
		card.Defeated = false
	}
}

// applyAllyBuff applies the buff of the card at the given slot to its own team
// and reports whether a buff was applied.
func applyAllyBuff(team *Team, slot int, card *BattleCard) bool {
	forAllies := func(apply func(ally *BattleCard)) {
		for _, ally := range team {
			if ally != nil {
				apply(ally)
			}
		}
	}
	switch card.Playstyle {
	case PlaystyleLeader:
		forAllies(func(ally *BattleCard) { ally.CurrentStats.Strength += StatBuff })
	case PlaystyleVIP:
		forAllies(func(ally *BattleCard) { ally.CurrentStats.Speed += StatBuff })
	case PlaystyleTactic:
		forAllies(func(ally *BattleCard) { ally.CurrentStats.Defense += StatBuff })
	case PlaystyleSpirit:
		forAllies(func(ally *BattleCard) {
			ally.CurrentStats.HP += SpiritHPBuff
			ally.CurrentHP += SpiritHPBuff
		})
	case PlaystyleLoner:
		if slot != TeamSize-1 {
			return false
		}
		card.CurrentStats.Strength += StatBuff
	default:
		return false
	}
	return true
}

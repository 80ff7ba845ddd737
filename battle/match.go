package battle

import (
	"github.com/gobuffalo/nulls"
	"github.com/lefinal/gacha-arena/errors"
)

// State of a Match.
type State string

const (
	// StateRunning is used while exchanges are still being resolved.
	StateRunning State = "running"
	// StateDone is used when a winner has been determined.
	StateDone State = "done"
	// StateAborted is used for matches that ended without a winner. They are
	// reported as draws.
	StateAborted State = "aborted"
)

// MatchPlayer is one of both sides of a Match.
type MatchPlayer struct {
	UserID         string `json:"user_id"`
	DisplayName    string `json:"display_name"`
	Rating         int    `json:"rating"`
	Team           Team   `json:"team"`
	RemainingCards int    `json:"remaining_cards"`
	CardsDefeated  int    `json:"cards_defeated"`
	DamageDealt    int    `json:"damage_dealt"`
}

// NewMatchPlayer creates a MatchPlayer with a deep copy of the given team.
func NewMatchPlayer(userID string, displayName string, rating int, team Team) *MatchPlayer {
	clone := team.Clone()
	return &MatchPlayer{
		UserID:         userID,
		DisplayName:    displayName,
		Rating:         rating,
		Team:           clone,
		RemainingCards: clone.Undefeated(),
	}
}

// Exchange is a single resolved attack.
type Exchange struct {
	// Round is the slot index the exchange happened in.
	Round int `json:"round"`
	// Sweep is the 0-based number of the sweep over all slots.
	Sweep          int    `json:"sweep"`
	AttackerID     string `json:"attacker_id"`
	DefenderID     string `json:"defender_id"`
	AttackerCardID string `json:"attacker_card_id"`
	DefenderCardID string `json:"defender_card_id"`
	Damage         int    `json:"damage"`
	// Retargeted is set when the same-slot defender was already down and a random
	// alive card was attacked instead.
	Retargeted          bool `json:"retargeted"`
	AttackerCardHPAfter int  `json:"attacker_card_hp_after"`
	DefenderCardHPAfter int  `json:"defender_card_hp_after"`
}

// PlayerStats is the outcome of a Match for one side.
type PlayerStats struct {
	UserID        string `json:"user_id"`
	RatingBefore  int    `json:"rating_before"`
	RatingAfter   int    `json:"rating_after"`
	RatingChange  int    `json:"rating_change"`
	CardsDefeated int    `json:"cards_defeated"`
	DamageDealt   int    `json:"damage_dealt"`
}

// MatchStats holds the PlayerStats for both sides once a winner is known.
type MatchStats struct {
	Winner PlayerStats `json:"winner"`
	Loser  PlayerStats `json:"loser"`
}

// Match is a battle between two players.
type Match struct {
	ID      string          `json:"id"`
	Players [2]*MatchPlayer `json:"players"`
	// CurrentRound is the slot that is currently being fought in.
	CurrentRound int          `json:"current_round"`
	Sweep        int          `json:"sweep"`
	State        State        `json:"state"`
	WinnerID     nulls.String `json:"winner_id"`
	LoserID      nulls.String `json:"loser_id"`
	// AbortReason is set for aborted matches.
	AbortReason string `json:"abort_reason,omitempty"`
	// Forfeited is set when the loser gave up.
	Forfeited  bool       `json:"forfeited"`
	Log        []Exchange `json:"log"`
	IsFriendly bool       `json:"is_friendly"`
	// Stats is set by the arena after rating updates have been calculated.
	Stats MatchStats `json:"stats"`
}

// NewMatch creates a running Match between both players.
func NewMatch(id string, player1 *MatchPlayer, player2 *MatchPlayer, isFriendly bool) *Match {
	return &Match{
		ID:         id,
		Players:    [2]*MatchPlayer{player1, player2},
		State:      StateRunning,
		Log:        make([]Exchange, 0),
		IsFriendly: isFriendly,
	}
}

// Snapshot returns a deep copy of the match that is safe to hand out while the
// match itself is still being resolved.
func (m *Match) Snapshot() Match {
	snapshot := *m
	for i, player := range m.Players {
		if player == nil {
			continue
		}
		p := *player
		p.Team = player.Team.Clone()
		snapshot.Players[i] = &p
	}
	snapshot.Log = make([]Exchange, len(m.Log))
	copy(snapshot.Log, m.Log)
	return snapshot
}

// Player returns the side of the given user.
func (m *Match) Player(userID string) (*MatchPlayer, bool) {
	for _, player := range m.Players {
		if player != nil && player.UserID == userID {
			return player, true
		}
	}
	return nil, false
}

// Opponent returns the side opposing the given user.
func (m *Match) Opponent(userID string) (*MatchPlayer, bool) {
	for i, player := range m.Players {
		if player != nil && player.UserID == userID {
			return m.Players[1-i], true
		}
	}
	return nil, false
}

// Winner returns the winning side for done matches.
func (m *Match) Winner() (*MatchPlayer, bool) {
	if m.State != StateDone || !m.WinnerID.Valid {
		return nil, false
	}
	return m.Player(m.WinnerID.String)
}

// Loser returns the losing side for done matches.
func (m *Match) Loser() (*MatchPlayer, bool) {
	if m.State != StateDone || !m.LoserID.Valid {
		return nil, false
	}
	return m.Player(m.LoserID.String)
}

// finish marks the match as done.
func (m *Match) finish(winner *MatchPlayer, loser *MatchPlayer) {
	m.State = StateDone
	m.WinnerID = nulls.NewString(winner.UserID)
	m.LoserID = nulls.NewString(loser.UserID)
}

// Abort marks the match as aborted with the given reason.
func (m *Match) Abort(reason string) {
	m.State = StateAborted
	m.AbortReason = reason
	m.WinnerID = nulls.String{}
	m.LoserID = nulls.String{}
}

// Forfeit lets the given user lose the match regardless of the current state.
func (m *Match) Forfeit(userID string) error {
	loser, ok := m.Player(userID)
	if !ok {
		return errors.NewBadRequestError(errors.KindNotInMatch, "forfeiting user not in match",
			errors.Details{"match_id": m.ID, "user_id": userID})
	}
	winner, _ := m.Opponent(userID)
	m.finish(winner, loser)
	m.AbortReason = ""
	m.Forfeited = true
	return nil
}

package matchmaking

import (
	"context"
	"fmt"
	"github.com/gobuffalo/nulls"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lefinal/gacha-arena/battle"
	"github.com/lefinal/gacha-arena/errors"
	"github.com/lefinal/gacha-arena/rating"
	"github.com/lefinal/gacha-arena/store"
	"go.uber.org/zap"
	"slices"
)

// DefaultPrivilegedTop is the default number of leaderboard positions that form
// the privileged pool.
const DefaultPrivilegedTop = 250

// ProfileStore provides player data needed for preparing teams.
type ProfileStore interface {
	// Profile retrieves the store.Profile of the player with the given id.
	Profile(ctx context.Context, userID string) (store.Profile, error)
	// TeamByID retrieves the store.Team with the given id.
	TeamByID(ctx context.Context, teamID string) (store.Team, error)
	// UserCards retrieves the current collection of the player with the given id.
	UserCards(ctx context.Context, userID string) ([]store.Card, error)
}

// LeaderboardProvider classifies players for pairing.
type LeaderboardProvider interface {
	// LeaderboardPositions retrieves the 1-indexed leaderboard positions of the
	// players with the given ids. Players without position are missing or not
	// set.
	LeaderboardPositions(ctx context.Context, userIDs []string) (map[string]nulls.Int, error)
}

// Config for Queue.
type Config struct {
	// PrivilegedTop is the number of leaderboard positions that form the
	// privileged pool. Zero disables the privileged pool.
	PrivilegedTop int
}

// PreparedTeam is a team ready for battle, built from the current collection of
// its owner.
type PreparedTeam struct {
	UserID      string
	TeamID      string
	DisplayName string
	Rating      int
	Team        battle.Team
}

// PairOutcome is the result of Queue.TryPair. If Match is set, both players
// have been removed from the queue. Otherwise, Position holds the queue
// position of the player.
type PairOutcome struct {
	Match    *battle.Match
	Position int
}

// Paired checks whether a match was created.
func (o PairOutcome) Paired() bool {
	return o.Match != nil
}

// Queue validates players that want to fight and pairs them using a Registry.
type Queue struct {
	logger      *zap.Logger
	config      Config
	registry    *Registry
	profiles    ProfileStore
	leaderboard LeaderboardProvider
	clock       clockwork.Clock
	// newMatchID generates ids for created matches.
	newMatchID func() string
}

// NewQueue creates a new Queue that uses the given Registry.
func NewQueue(logger *zap.Logger, config Config, registry *Registry, profiles ProfileStore,
	leaderboard LeaderboardProvider, clock clockwork.Clock) *Queue {
	return &Queue{
		logger:      logger,
		config:      config,
		registry:    registry,
		profiles:    profiles,
		leaderboard: leaderboard,
		clock:       clock,
		newMatchID:  uuid.NewString,
	}
}

// PrepareTeam validates that the given team belongs to the player and that all
// slots reference cards from the player's current collection. The returned
// battle cards are built from the collection, not from the stored team.
func (q *Queue) PrepareTeam(ctx context.Context, userID string, teamID string) (PreparedTeam, error) {
	profile, err := q.profiles.Profile(ctx, userID)
	if err != nil {
		return PreparedTeam{}, errors.Wrap(err, "profile", errors.Details{"user_id": userID})
	}
	team, err := q.profiles.TeamByID(ctx, teamID)
	if err != nil {
		return PreparedTeam{}, errors.Wrap(err, "team by id", errors.Details{"team_id": teamID})
	}
	if team.OwnerID != userID {
		return PreparedTeam{}, errors.NewBadRequestError(errors.KindTeamNotOwned, "team not owned",
			errors.Details{"user_id": userID, "team_id": teamID})
	}
	cards, err := q.profiles.UserCards(ctx, userID)
	if err != nil {
		return PreparedTeam{}, errors.Wrap(err, "user cards", errors.Details{"user_id": userID})
	}
	collection := make(map[string]store.Card, len(cards))
	for _, card := range cards {
		collection[card.ID] = card
	}
	prepared := PreparedTeam{
		UserID:      userID,
		TeamID:      teamID,
		DisplayName: profile.DisplayName,
		Rating:      rating.BaseRating,
	}
	if profile.Rating.Valid {
		prepared.Rating = profile.Rating.Int
	}
	for i, slot := range team.Slots {
		details := errors.Details{"team_id": teamID, "slot": i + 1}
		if !slot.Valid || slot.String == "" {
			return PreparedTeam{}, errors.NewBadRequestError(errors.KindTeamIncomplete,
				fmt.Sprintf("slot %d is empty", i+1), details)
		}
		card, ok := collection[slot.String]
		if !ok {
			details["card_id"] = slot.String
			return PreparedTeam{}, errors.NewBadRequestError(errors.KindCardNotInCollection,
				fmt.Sprintf("card in slot %d not found in collection", i+1), details)
		}
		battleCard, err := battleCardFromCard(card)
		if err != nil {
			return PreparedTeam{}, errors.Wrap(err, fmt.Sprintf("battle card for slot %d", i+1), details)
		}
		prepared.Team[i] = battleCard
	}
	return prepared, nil
}

// battleCardFromCard builds a battle.BattleCard. Missing stats are rejected.
func battleCardFromCard(card store.Card) (*battle.BattleCard, error) {
	if !card.HP.Valid || !card.Strength.Valid || !card.Defense.Valid || !card.Speed.Valid {
		return nil, errors.NewBadRequestError(errors.KindInvalidCardStats, "card is missing stats",
			errors.Details{"card_id": card.ID})
	}
	playstyle := battle.PlaystyleNone
	if card.Playstyle.Valid {
		playstyle = battle.Playstyle(card.Playstyle.String)
	}
	return battle.NewBattleCard(card.ID, card.Name, playstyle, battle.Stats{
		HP:       card.HP.Int,
		Strength: card.Strength.Int,
		Defense:  card.Defense.Int,
		Speed:    card.Speed.Int,
	})
}

// Join validates and enqueues the given player. Nothing is changed if
// validation fails.
func (q *Queue) Join(ctx context.Context, userID string, teamID string) (QueueEntry, error) {
	// Check before hitting the store. Enqueue checks again.
	if err := q.registry.CheckFree(userID); err != nil {
		return QueueEntry{}, err
	}
	prepared, err := q.PrepareTeam(ctx, userID, teamID)
	if err != nil {
		return QueueEntry{}, errors.Wrap(err, "prepare team", nil)
	}
	entry := QueueEntry{
		UserID:      userID,
		TeamID:      teamID,
		Rating:      prepared.Rating,
		DisplayName: prepared.DisplayName,
		Team:        prepared.Team,
		JoinedAt:    q.clock.Now(),
	}
	if err = q.registry.Enqueue(entry); err != nil {
		return QueueEntry{}, err
	}
	q.logger.Debug("player joined queue",
		zap.String("user_id", userID),
		zap.String("team_id", teamID),
		zap.Int("rating", entry.Rating))
	return entry, nil
}

// Leave removes the given player from the queue.
func (q *Queue) Leave(userID string) bool {
	ok := q.registry.Dequeue(userID)
	if ok {
		q.logger.Debug("player left queue", zap.String("user_id", userID))
	}
	return ok
}

// privilegedPlayers looks up the leaderboard positions of all given entries at
// once and returns the ids of the ones within the privileged pool.
func (q *Queue) privilegedPlayers(ctx context.Context, entries []QueueEntry) (map[string]struct{}, error) {
	privileged := make(map[string]struct{})
	if q.config.PrivilegedTop <= 0 || len(entries) == 0 {
		return privileged, nil
	}
	userIDs := make([]string, 0, len(entries))
	for _, entry := range entries {
		userIDs = append(userIDs, entry.UserID)
	}
	positions, err := q.leaderboard.LeaderboardPositions(ctx, userIDs)
	if err != nil {
		return nil, errors.Wrap(err, "leaderboard positions", errors.Details{"players": len(userIDs)})
	}
	for userID, position := range positions {
		if position.Valid && position.Int >= 1 && position.Int <= q.config.PrivilegedTop {
			privileged[userID] = struct{}{}
		}
	}
	return privileged, nil
}

// TryPair looks for an opponent for the given queued player. Leaderboard
// positions are retrieved without holding the Registry, so pairing re-checks
// that both players are still queued. If this fails, the player stays queued.
func (q *Queue) TryPair(ctx context.Context, userID string) (PairOutcome, error) {
	entries := q.registry.Entries()
	privileged, err := q.privilegedPlayers(ctx, entries)
	if err != nil {
		return PairOutcome{}, err
	}
	return q.pair(userID, entries, privileged)
}

// pair selects an opponent for the given player among the entries and pairs
// both in the Registry.
func (q *Queue) pair(userID string, entries []QueueEntry, privileged map[string]struct{}) (PairOutcome, error) {
	var seeker Candidate
	found := false
	candidates := make([]Candidate, 0, len(entries))
	for _, entry := range entries {
		_, isPrivileged := privileged[entry.UserID]
		candidate := Candidate{UserID: entry.UserID, Rating: entry.Rating, Privileged: isPrivileged}
		if entry.UserID == userID {
			seeker = candidate
			found = true
			continue
		}
		candidates = append(candidates, candidate)
	}
	if !found {
		return PairOutcome{}, errors.NewBadRequestError(errors.KindNotQueued, "not queued", errors.Details{"user_id": userID})
	}
	if opponent, ok := SelectOpponent(seeker, candidates); ok {
		if m, ok := q.registry.Pair(userID, opponent.UserID, q.buildMatch); ok {
			q.logger.Debug("paired players",
				zap.String("match_id", m.ID),
				zap.String("user_id", userID),
				zap.String("opponent_id", opponent.UserID),
				zap.Int("rating_diff", seeker.Rating-opponent.Rating))
			return PairOutcome{Match: m}, nil
		}
	}
	position, ok := q.registry.Position(userID)
	if !ok {
		return PairOutcome{}, errors.NewBadRequestError(errors.KindNotQueued, "not queued anymore",
			errors.Details{"user_id": userID})
	}
	return PairOutcome{Position: position}, nil
}

// buildMatch creates a ranked match between both entries.
func (q *Queue) buildMatch(a QueueEntry, b QueueEntry) *battle.Match {
	return battle.NewMatch(q.newMatchID(),
		battle.NewMatchPlayer(a.UserID, a.DisplayName, a.Rating, a.Team),
		battle.NewMatchPlayer(b.UserID, b.DisplayName, b.Rating, b.Team),
		false)
}

// Sweep tries to pair every queued player in queue order and returns all
// created matches. Leaderboard positions are looked up once for the whole
// pass. Players that join meanwhile wait for the next pass.
func (q *Queue) Sweep(ctx context.Context) []*battle.Match {
	matches := make([]*battle.Match, 0)
	entries := q.registry.Entries()
	privileged, err := q.privilegedPlayers(ctx, entries)
	if err != nil {
		errors.Log(q.logger, errors.Wrap(err, "privileged players for sweep", nil))
		return matches
	}
	remaining := entries
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if _, queued := q.registry.Position(entry.UserID); !queued {
			continue
		}
		outcome, err := q.pair(entry.UserID, remaining, privileged)
		if err != nil {
			if !errors.HasKind(err, errors.KindNotQueued) {
				errors.Log(q.logger, errors.Wrap(err, "pair during sweep", errors.Details{"user_id": entry.UserID}))
			}
			continue
		}
		if outcome.Paired() {
			matches = append(matches, outcome.Match)
			remaining = withoutPlayers(remaining, outcome.Match.Players[0].UserID, outcome.Match.Players[1].UserID)
		}
	}
	return matches
}

// withoutPlayers returns a copy of entries without the given players.
func withoutPlayers(entries []QueueEntry, userIDs ...string) []QueueEntry {
	kept := make([]QueueEntry, 0, len(entries))
	for _, entry := range entries {
		if !slices.Contains(userIDs, entry.UserID) {
			kept = append(kept, entry)
		}
	}
	return kept
}

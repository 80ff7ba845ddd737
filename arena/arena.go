// Package arena runs matches between players. It pairs queued players,
// resolves their battles while pacing the display and persists results.
package arena

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lefinal/gacha-arena/battle"
	"github.com/lefinal/gacha-arena/errors"
	"github.com/lefinal/gacha-arena/matchmaking"
	"github.com/lefinal/gacha-arena/rating"
	"github.com/lefinal/gacha-arena/store"
	"go.uber.org/zap"
	"math/rand"
	"sort"
	"sync"
)

// Store persists players and match results.
type Store interface {
	matchmaking.ProfileStore
	matchmaking.LeaderboardProvider
	// RecordMatchResult persists the outcome of a decided match.
	RecordMatchResult(ctx context.Context, result store.MatchResult) error
}

// Display shows match progress to players. It is called after every exchange
// and once more when the match has ended. It must tolerate calls for matches
// that have already been torn down.
type Display interface {
	OnExchange(ctx context.Context, m battle.Match) error
}

// JoinResult is the outcome of Arena.Join.
type JoinResult struct {
	// Position is the queue position if no match was started.
	Position int
	// MatchID is the id of the match the player was paired into. It is empty if
	// the player is still queued.
	MatchID string
	// Match is a snapshot of the started match. It is nil if the player is still
	// queued or the match is being started by a concurrent sweep.
	Match *battle.Match
}

// Paired checks whether the player was paired into a match.
func (r JoinResult) Paired() bool {
	return r.MatchID != ""
}

// runningMatch holds the arena-side state of a started match.
type runningMatch struct {
	// cancel cancels resolving and pacing.
	cancel context.CancelCauseFunc
	// latest is the snapshot that was last handed to the Display.
	latest battle.Match
	// forfeitedBy is the id of the user that forfeited the match.
	forfeitedBy string
	// finalizing is set once the outcome is being persisted. Forfeits are not
	// accepted anymore.
	finalizing bool
}

// errShutdown is the cancel cause for matches that are still running when the
// Arena shuts down.
var errShutdown = errors.Error{
	Code:    errors.ErrAborted,
	Kind:    errors.KindMatchAborted,
	Message: "arena shutdown",
}

// Arena is the central component for running matches. Matches are started when
// players join and can be paired, when players challenge each other or when
// the queue is swept periodically while Run is active.
type Arena struct {
	logger     *zap.Logger
	config     Config
	registry   *matchmaking.Registry
	queue      *matchmaking.Queue
	store      Store
	display    Display
	clock      clockwork.Clock
	calculator rating.Calculator
	newMatchID func() string
	// seeds provides the seeds for the random number generators of matches.
	seeds *rand.Rand
	// seedsMutex locks seeds.
	seedsMutex sync.Mutex
	// lifetime is the parent context for all matches. It is cancelled when Run
	// returns.
	lifetime context.Context
	// shutdown cancels lifetime.
	shutdown context.CancelCauseFunc
	// running holds all started matches by their id until they are torn down.
	running map[string]*runningMatch
	// stopped is set once running matches are stopped. No matches are started
	// afterwards.
	stopped bool
	// runningMutex locks running and stopped. matchesWG is only added to while
	// holding it.
	runningMutex sync.RWMutex
	// matchesWG waits for all match goroutines.
	matchesWG sync.WaitGroup
}

// NewArena creates a new Arena. The Config is expected to be valid.
func NewArena(logger *zap.Logger, config Config, s Store, display Display, clock clockwork.Clock) *Arena {
	registry := matchmaking.NewRegistry()
	lifetime, shutdown := context.WithCancelCause(context.Background())
	return &Arena{
		logger:   logger,
		config:   config,
		registry: registry,
		queue: matchmaking.NewQueue(logger.Named("queue"), matchmaking.Config{PrivilegedTop: config.PrivilegedTop},
			registry, s, s, clock),
		store:      s,
		display:    display,
		clock:      clock,
		calculator: config.calculator(),
		newMatchID: uuid.NewString,
		seeds:      rand.New(rand.NewSource(newSeed())),
		lifetime:   lifetime,
		shutdown:   shutdown,
		running:    make(map[string]*runningMatch),
	}
}

// newSeed reads a seed from crypto/rand. If this fails, the seed is taken from
// math/rand's global source.
func newSeed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return rand.Int63()
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}

// newRand creates a rand.Rand for a single match.
func (a *Arena) newRand() *rand.Rand {
	a.seedsMutex.Lock()
	defer a.seedsMutex.Unlock()
	return rand.New(rand.NewSource(a.seeds.Int63()))
}

// Join validates the given team and enqueues the player. If an opponent is
// found immediately, the match is started.
func (a *Arena) Join(ctx context.Context, userID string, teamID string) (JoinResult, error) {
	if a.isStopped() {
		return JoinResult{}, errShutdown
	}
	_, err := a.queue.Join(ctx, userID, teamID)
	if err != nil {
		return JoinResult{}, errors.Wrap(err, "join queue", errors.Details{"user_id": userID, "team_id": teamID})
	}
	outcome, err := a.queue.TryPair(ctx, userID)
	if err != nil {
		// A sweep might have paired the player in the meantime. The match might
		// not be started yet.
		if matchID, ok := a.registry.MatchOf(userID); ok {
			result := JoinResult{MatchID: matchID}
			if m, ok := a.MatchOf(userID); ok && m.ID == matchID {
				result.Match = &m
			}
			return result, nil
		}
		errors.Log(a.logger, errors.Wrap(err, "try pair after join", errors.Details{"user_id": userID}))
		position, _ := a.registry.Position(userID)
		return JoinResult{Position: position}, nil
	}
	if !outcome.Paired() {
		return JoinResult{Position: outcome.Position}, nil
	}
	snapshot, err := a.startMatch(outcome.Match)
	if err != nil {
		return JoinResult{}, errors.Wrap(err, "start match", errors.Details{"match_id": outcome.Match.ID})
	}
	return JoinResult{MatchID: snapshot.ID, Match: &snapshot}, nil
}

// isStopped checks whether running matches have been stopped.
func (a *Arena) isStopped() bool {
	a.runningMutex.RLock()
	defer a.runningMutex.RUnlock()
	return a.stopped
}

// Leave removes the player from the queue.
func (a *Arena) Leave(userID string) error {
	if !a.queue.Leave(userID) {
		return errors.NewBadRequestError(errors.KindNotQueued, "not queued", errors.Details{"user_id": userID})
	}
	return nil
}

// Challenge starts a friendly match between both players. Ratings are not
// affected.
func (a *Arena) Challenge(ctx context.Context, challengerID string, challengerTeamID string, opponentID string,
	opponentTeamID string) (battle.Match, error) {
	details := errors.Details{"challenger_id": challengerID, "opponent_id": opponentID}
	if challengerID == opponentID {
		return battle.Match{}, errors.NewBadRequestError(errors.KindSelfChallenge, "cannot challenge oneself", details)
	}
	for _, userID := range []string{challengerID, opponentID} {
		if err := a.registry.CheckFree(userID); err != nil {
			return battle.Match{}, errors.Wrap(err, "check free", details)
		}
	}
	challenger, err := a.queue.PrepareTeam(ctx, challengerID, challengerTeamID)
	if err != nil {
		return battle.Match{}, errors.Wrap(err, "prepare challenger team", details)
	}
	opponent, err := a.queue.PrepareTeam(ctx, opponentID, opponentTeamID)
	if err != nil {
		return battle.Match{}, errors.Wrap(err, "prepare opponent team", details)
	}
	m := battle.NewMatch(a.newMatchID(),
		battle.NewMatchPlayer(challenger.UserID, challenger.DisplayName, challenger.Rating, challenger.Team),
		battle.NewMatchPlayer(opponent.UserID, opponent.DisplayName, opponent.Rating, opponent.Team),
		true)
	err = a.registry.AddMatch(m.ID, challengerID, opponentID)
	if err != nil {
		return battle.Match{}, errors.Wrap(err, "add match", details)
	}
	snapshot, err := a.startMatch(m)
	if err != nil {
		return battle.Match{}, errors.Wrap(err, "start match", details)
	}
	return snapshot, nil
}

// Forfeit lets the given player lose the match they are currently in.
func (a *Arena) Forfeit(ctx context.Context, userID string) error {
	matchID, ok := a.registry.MatchOf(userID)
	if !ok {
		return errors.NewBadRequestError(errors.KindNotInMatch, "not in match", errors.Details{"user_id": userID})
	}
	a.runningMutex.Lock()
	defer a.runningMutex.Unlock()
	rm, ok := a.running[matchID]
	if !ok || rm.finalizing {
		return errors.NewBadRequestError(errors.KindNotInMatch, "match already ended",
			errors.Details{"user_id": userID, "match_id": matchID})
	}
	if rm.forfeitedBy == "" {
		rm.forfeitedBy = userID
	}
	rm.cancel(errors.NewMatchAbortedError(matchID, "forfeit"))
	a.logger.Debug("player forfeited", zap.String("user_id", userID), zap.String("match_id", matchID))
	return nil
}

// MatchOf returns a snapshot of the match the given player is currently in.
func (a *Arena) MatchOf(userID string) (battle.Match, bool) {
	matchID, ok := a.registry.MatchOf(userID)
	if !ok {
		return battle.Match{}, false
	}
	a.runningMutex.RLock()
	defer a.runningMutex.RUnlock()
	rm, ok := a.running[matchID]
	if !ok {
		return battle.Match{}, false
	}
	return rm.latest, true
}

// Matches returns snapshots of all matches that have not been torn down yet,
// ordered by id.
func (a *Arena) Matches() []battle.Match {
	a.runningMutex.RLock()
	matches := make([]battle.Match, 0, len(a.running))
	for _, rm := range a.running {
		matches = append(matches, rm.latest)
	}
	a.runningMutex.RUnlock()
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].ID < matches[j].ID
	})
	return matches
}

// Queue returns all queued players in queue order.
func (a *Arena) Queue() []matchmaking.QueueEntry {
	return a.registry.Entries()
}

// QueueLen returns the number of queued players.
func (a *Arena) QueueLen() int {
	return a.registry.QueueLen()
}

// MatchCount returns the number of registered matches.
func (a *Arena) MatchCount() int {
	return a.registry.MatchCount()
}

// Position returns the queue position of the given player.
func (a *Arena) Position(userID string) (int, bool) {
	return a.registry.Position(userID)
}

// resweep tries to pair all queued players and starts the created matches.
func (a *Arena) resweep(ctx context.Context) {
	matches := a.queue.Sweep(ctx)
	for _, m := range matches {
		if _, err := a.startMatch(m); err != nil {
			errors.Log(a.logger, errors.Wrap(err, "start match from sweep", errors.Details{"match_id": m.ID}))
		}
	}
	if len(matches) > 0 {
		a.logger.Debug("started matches from sweep", zap.Int("matches", len(matches)))
	}
}

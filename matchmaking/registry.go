package matchmaking

import (
	"github.com/lefinal/gacha-arena/battle"
	"github.com/lefinal/gacha-arena/errors"
	"sync"
	"time"
)

// QueueEntry is a player waiting for an opponent.
type QueueEntry struct {
	UserID      string
	TeamID      string
	Rating      int
	DisplayName string
	// Team is the prepared team. It is copied when a match is created and must not
	// be mutated while queued.
	Team     battle.Team
	JoinedAt time.Time
}

// Registry keeps track of queued players and running matches. A player is
// either queued, in exactly one match or unknown to the Registry. All
// operations are atomic.
type Registry struct {
	// queue holds all entries in insertion order.
	queue []QueueEntry
	// matches holds the participants by match id.
	matches map[string][2]string
	// userToMatch maps participants to their match id.
	userToMatch map[string]string
	// mutex locks all fields.
	mutex sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		queue:       make([]QueueEntry, 0),
		matches:     make(map[string][2]string),
		userToMatch: make(map[string]string),
	}
}

// queueIndex returns the index of the given user in the queue or -1. The mutex
// must be held.
func (r *Registry) queueIndex(userID string) int {
	for i, entry := range r.queue {
		if entry.UserID == userID {
			return i
		}
	}
	return -1
}

// checkFree returns an error if the given user is queued or in a match. The
// mutex must be held.
func (r *Registry) checkFree(userID string) error {
	if r.queueIndex(userID) != -1 {
		return errors.NewBadRequestError(errors.KindAlreadyQueued, "already queued", errors.Details{"user_id": userID})
	}
	if matchID, ok := r.userToMatch[userID]; ok {
		return errors.NewBadRequestError(errors.KindAlreadyInMatch, "already in match",
			errors.Details{"user_id": userID, "match_id": matchID})
	}
	return nil
}

// CheckFree returns an errors.ErrBadRequest error with errors.KindAlreadyQueued
// or errors.KindAlreadyInMatch if the given user is busy.
func (r *Registry) CheckFree(userID string) error {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.checkFree(userID)
}

// Enqueue appends the given entry to the queue if the player is neither queued
// nor in a match.
func (r *Registry) Enqueue(entry QueueEntry) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if err := r.checkFree(entry.UserID); err != nil {
		return err
	}
	r.queue = append(r.queue, entry)
	return nil
}

// Dequeue removes the given user from the queue and reports whether they were
// queued.
func (r *Registry) Dequeue(userID string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	i := r.queueIndex(userID)
	if i == -1 {
		return false
	}
	r.queue = append(r.queue[:i], r.queue[i+1:]...)
	return true
}

// Entries returns a copy of the queue in insertion order.
func (r *Registry) Entries() []QueueEntry {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	entries := make([]QueueEntry, len(r.queue))
	copy(entries, r.queue)
	return entries
}

// Entry returns the queue entry of the given user.
func (r *Registry) Entry(userID string) (QueueEntry, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	i := r.queueIndex(userID)
	if i == -1 {
		return QueueEntry{}, false
	}
	return r.queue[i], true
}

// Position returns the 1-indexed queue position of the given user.
func (r *Registry) Position(userID string) (int, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	i := r.queueIndex(userID)
	if i == -1 {
		return 0, false
	}
	return i + 1, true
}

// QueueLen returns the number of queued players.
func (r *Registry) QueueLen() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.queue)
}

// Pair removes both users from the queue and registers the match created by
// the given build function. If any of both users is not queued anymore,
// nothing is changed and false is returned.
func (r *Registry) Pair(userA string, userB string, build func(a QueueEntry, b QueueEntry) *battle.Match) (*battle.Match, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if userA == userB {
		return nil, false
	}
	indexA := r.queueIndex(userA)
	indexB := r.queueIndex(userB)
	if indexA == -1 || indexB == -1 {
		return nil, false
	}
	m := build(r.queue[indexA], r.queue[indexB])
	remaining := make([]QueueEntry, 0, len(r.queue)-2)
	for i, entry := range r.queue {
		if i != indexA && i != indexB {
			remaining = append(remaining, entry)
		}
	}
	r.queue = remaining
	r.register(m.ID, userA, userB)
	return m, true
}

// register the match. The mutex must be held.
func (r *Registry) register(matchID string, userA string, userB string) {
	r.matches[matchID] = [2]string{userA, userB}
	r.userToMatch[userA] = matchID
	r.userToMatch[userB] = matchID
}

// AddMatch registers a match that was not created via the queue like friendly
// challenges. Both players must be free.
func (r *Registry) AddMatch(matchID string, userA string, userB string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if userA == userB {
		return errors.NewBadRequestError(errors.KindSelfChallenge, "match against oneself",
			errors.Details{"user_id": userA})
	}
	if _, ok := r.matches[matchID]; ok {
		return errors.NewInternalError("duplicate match id", errors.Details{"match_id": matchID})
	}
	for _, userID := range []string{userA, userB} {
		if err := r.checkFree(userID); err != nil {
			return err
		}
	}
	r.register(matchID, userA, userB)
	return nil
}

// RemoveMatch tears down the given match and frees both players.
func (r *Registry) RemoveMatch(matchID string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	players, ok := r.matches[matchID]
	if !ok {
		return false
	}
	for _, userID := range players {
		if r.userToMatch[userID] == matchID {
			delete(r.userToMatch, userID)
		}
	}
	delete(r.matches, matchID)
	return true
}

// MatchOf returns the id of the match the given user participates in.
func (r *Registry) MatchOf(userID string) (string, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	matchID, ok := r.userToMatch[userID]
	return matchID, ok
}

// MatchCount returns the number of registered matches.
func (r *Registry) MatchCount() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.matches)
}

// IsBusy checks whether the given user is queued or in a match.
func (r *Registry) IsBusy(userID string) bool {
	return r.CheckFree(userID) != nil
}

// MatchIDs returns the ids of all registered matches.
func (r *Registry) MatchIDs() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	ids := make([]string, 0, len(r.matches))
	for id := range r.matches {
		ids = append(ids, id)
	}
	return ids
}

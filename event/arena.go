package event

import (
	"github.com/gobuffalo/nulls"
	"github.com/lefinal/gacha-arena/battle"
)

// JoinRequest is used by players that want to enter the queue.
type JoinRequest struct {
	// RequestID is returned in the Reply.
	RequestID string `json:"request_id"`
	// UserID is the id of the joining player.
	UserID string `json:"user_id"`
	// TeamID is the id of the team to fight with.
	TeamID string `json:"team_id"`
}

// LeaveRequest is used by players that want to leave the queue.
type LeaveRequest struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
}

// ChallengeRequest is used for starting friendly matches.
type ChallengeRequest struct {
	RequestID        string `json:"request_id"`
	ChallengerID     string `json:"challenger_id"`
	ChallengerTeamID string `json:"challenger_team_id"`
	OpponentID       string `json:"opponent_id"`
	OpponentTeamID   string `json:"opponent_team_id"`
}

// ForfeitRequest is used by players that want to give up their current match.
type ForfeitRequest struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
}

// ReplyType is the type of request a Reply answers.
type ReplyType string

const (
	ReplyTypeJoin      ReplyType = "join"
	ReplyTypeLeave     ReplyType = "leave"
	ReplyTypeChallenge ReplyType = "challenge"
	ReplyTypeForfeit   ReplyType = "forfeit"
)

// Reply is published for every handled request.
type Reply struct {
	// RequestID is the id of the answered request.
	RequestID string `json:"request_id"`
	// Type is the type of the answered request.
	Type ReplyType `json:"type"`
	// UserID is the id of the requesting player.
	UserID string `json:"user_id"`
	// Success describes whether the request was handled successfully. Otherwise,
	// Error is set.
	Success bool `json:"success"`
	// Position is the queue position for join requests that did not start a match
	// immediately.
	Position nulls.Int `json:"position"`
	// MatchID is the id of the started match.
	MatchID nulls.String `json:"match_id"`
	// Error is set for failed requests.
	Error *ErrorEventPayload `json:"error,omitempty"`
}

// MatchUpdateEvent is published after every exchange and once more when a
// match has ended.
type MatchUpdateEvent struct {
	// Match is the current state.
	Match battle.Match `json:"match"`
	// Final is set once the match has a terminal state. The very last update of
	// a match additionally carries the rating stats.
	Final bool `json:"final"`
}

// MatchUpdateEventFromMatch creates a MatchUpdateEvent for the given snapshot.
func MatchUpdateEventFromMatch(m battle.Match) MatchUpdateEvent {
	return MatchUpdateEvent{
		Match: m,
		Final: m.State != battle.StateRunning,
	}
}

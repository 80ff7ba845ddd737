// Package arenasvc accepts arena commands via MQTT and replies with their
// outcome.
package arenasvc

import (
	"context"
	"github.com/gobuffalo/nulls"
	"github.com/lefinal/gacha-arena/arena"
	"github.com/lefinal/gacha-arena/battle"
	"github.com/lefinal/gacha-arena/errors"
	"github.com/lefinal/gacha-arena/event"
	"github.com/lefinal/gacha-arena/portal"
	"github.com/lefinal/gacha-arena/service"
	"go.uber.org/zap"
	"sync"
)

// Topics.
const (
	// topicJoin is used by players that want to enter the queue.
	topicJoin portal.Topic = portal.BaseTopic + "/join"
	// topicLeave is used by players that want to leave the queue.
	topicLeave portal.Topic = portal.BaseTopic + "/leave"
	// topicChallenge is used for friendly challenges.
	topicChallenge portal.Topic = portal.BaseTopic + "/challenge"
	// topicForfeit is used by players that give up their current match.
	topicForfeit portal.Topic = portal.BaseTopic + "/forfeit"
	// topicReply is where event.Reply is published for each handled request.
	topicReply portal.Topic = portal.BaseTopic + "/reply"
)

// Arena is the arena.Arena the service drives.
type Arena interface {
	// Join enqueues the player and starts a match if possible.
	Join(ctx context.Context, userID string, teamID string) (arena.JoinResult, error)
	// Leave removes the player from the queue.
	Leave(userID string) error
	// Challenge starts a friendly match.
	Challenge(ctx context.Context, challengerID string, challengerTeamID string, opponentID string,
		opponentTeamID string) (battle.Match, error)
	// Forfeit lets the player lose the current match.
	Forfeit(ctx context.Context, userID string) error
}

// arenaService handles arena requests.
type arenaService struct {
	logger *zap.Logger
	// portal to use for communication.
	portal portal.Portal
	// arena to forward requests to.
	arena Arena
}

// NewArenaService creates a new service.Service ready to run.
func NewArenaService(logger *zap.Logger, portal portal.Portal, arena Arena) service.Service {
	return &arenaService{
		logger: logger,
		portal: portal,
		arena:  arena,
	}
}

// serve runs the handler for each received event of the Newsletter in its own
// goroutine until the Newsletter is closed.
func serve[T any](wg *sync.WaitGroup, newsletter *portal.Newsletter[T], handle func(payload T)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		for e := range newsletter.Receive {
			handle(e.Payload)
		}
	}()
}

// Run the service until the given context is done.
func (s *arenaService) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	serve(&wg, portal.Subscribe[event.JoinRequest](ctx, s.portal, topicJoin), func(r event.JoinRequest) {
		s.handleJoin(ctx, r)
	})
	serve(&wg, portal.Subscribe[event.LeaveRequest](ctx, s.portal, topicLeave), func(r event.LeaveRequest) {
		s.handleLeave(ctx, r)
	})
	serve(&wg, portal.Subscribe[event.ChallengeRequest](ctx, s.portal, topicChallenge), func(r event.ChallengeRequest) {
		s.handleChallenge(ctx, r)
	})
	serve(&wg, portal.Subscribe[event.ForfeitRequest](ctx, s.portal, topicForfeit), func(r event.ForfeitRequest) {
		s.handleForfeit(ctx, r)
	})
	// Wait until all handlers done.
	wg.Wait()
	return nil
}

// reply publishes the given event.Reply. If err is set, the reply is marked as
// failed.
func (s *arenaService) reply(ctx context.Context, reply event.Reply, err error) {
	if err != nil {
		errors.Log(s.logger, err)
		payload := event.ErrorEventPayloadFromError(err)
		reply.Error = &payload
	} else {
		reply.Success = true
	}
	s.portal.Publish(ctx, topicReply, reply)
}

// handleJoin handles topicJoin.
func (s *arenaService) handleJoin(ctx context.Context, r event.JoinRequest) {
	reply := event.Reply{
		RequestID: r.RequestID,
		Type:      event.ReplyTypeJoin,
		UserID:    r.UserID,
	}
	result, err := s.arena.Join(ctx, r.UserID, r.TeamID)
	if err != nil {
		s.reply(ctx, reply, errors.Wrap(err, "join", nil))
		return
	}
	if result.Paired() {
		reply.MatchID = nulls.NewString(result.MatchID)
	} else {
		reply.Position = nulls.NewInt(result.Position)
	}
	s.reply(ctx, reply, nil)
}

// handleLeave handles topicLeave.
func (s *arenaService) handleLeave(ctx context.Context, r event.LeaveRequest) {
	err := s.arena.Leave(r.UserID)
	if err != nil {
		err = errors.Wrap(err, "leave", nil)
	}
	s.reply(ctx, event.Reply{
		RequestID: r.RequestID,
		Type:      event.ReplyTypeLeave,
		UserID:    r.UserID,
	}, err)
}

// handleChallenge handles topicChallenge.
func (s *arenaService) handleChallenge(ctx context.Context, r event.ChallengeRequest) {
	reply := event.Reply{
		RequestID: r.RequestID,
		Type:      event.ReplyTypeChallenge,
		UserID:    r.ChallengerID,
	}
	m, err := s.arena.Challenge(ctx, r.ChallengerID, r.ChallengerTeamID, r.OpponentID, r.OpponentTeamID)
	if err != nil {
		s.reply(ctx, reply, errors.Wrap(err, "challenge", nil))
		return
	}
	reply.MatchID = nulls.NewString(m.ID)
	s.reply(ctx, reply, nil)
}

// handleForfeit handles topicForfeit.
func (s *arenaService) handleForfeit(ctx context.Context, r event.ForfeitRequest) {
	err := s.arena.Forfeit(ctx, r.UserID)
	if err != nil {
		err = errors.Wrap(err, "forfeit", nil)
	}
	s.reply(ctx, event.Reply{
		RequestID: r.RequestID,
		Type:      event.ReplyTypeForfeit,
		UserID:    r.UserID,
	}, err)
}

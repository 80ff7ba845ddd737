package arenasvc

import (
	"context"
	nativeerrors "errors"
	"github.com/gobuffalo/nulls"
	"github.com/lefinal/gacha-arena/arena"
	"github.com/lefinal/gacha-arena/battle"
	"github.com/lefinal/gacha-arena/errors"
	"github.com/lefinal/gacha-arena/event"
	"github.com/lefinal/gacha-arena/portal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"sync"
	"testing"
	"time"
)

const timeout = 3 * time.Second

// arenaStub mocks Arena.
type arenaStub struct {
	mock.Mock
}

func (stub *arenaStub) Join(ctx context.Context, userID string, teamID string) (arena.JoinResult, error) {
	args := stub.Called(ctx, userID, teamID)
	return args.Get(0).(arena.JoinResult), args.Error(1)
}

func (stub *arenaStub) Leave(userID string) error {
	return stub.Called(userID).Error(0)
}

func (stub *arenaStub) Challenge(ctx context.Context, challengerID string, challengerTeamID string, opponentID string,
	opponentTeamID string) (battle.Match, error) {
	args := stub.Called(ctx, challengerID, challengerTeamID, opponentID, opponentTeamID)
	return args.Get(0).(battle.Match), args.Error(1)
}

func (stub *arenaStub) Forfeit(ctx context.Context, userID string) error {
	return stub.Called(ctx, userID).Error(0)
}

func TestNewArenaService(t *testing.T) {
	logger := zap.New(zapcore.NewNopCore())
	portalStub := &portal.Stub{}
	arenaStub := &arenaStub{}
	s := NewArenaService(logger, portalStub, arenaStub).(*arenaService)
	require.NotNil(t, s, "should not be nil")
	assert.Equal(t, logger, s.logger, "should set correct logger")
	assert.Equal(t, portalStub, s.portal, "should set correct portal")
	assert.Equal(t, arenaStub, s.arena, "should set correct arena")
}

// arenaServiceSuite tests arenaService.
type arenaServiceSuite struct {
	suite.Suite
	portalStub *portal.Stub
	arenaStub  *arenaStub
	service    *arenaService
}

func (suite *arenaServiceSuite) SetupTest() {
	suite.portalStub = &portal.Stub{}
	suite.arenaStub = &arenaStub{}
	suite.service = NewArenaService(zap.New(zapcore.NewNopCore()), suite.portalStub, suite.arenaStub).(*arenaService)
}

// handle runs the service, sends the given payload to the topic and returns the
// published event.Reply.
func (suite *arenaServiceSuite) handle(topic portal.Topic, payload interface{}) event.Reply {
	var wg sync.WaitGroup
	timeout, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	runCtx, cancelRun := context.WithCancel(timeout)
	// Setup.
	receive := make(chan event.Event[any])
	suite.portalStub.On("Subscribe", mock.Anything, topic).
		Return(portal.NewFeedNewsletter(runCtx, receive)).Once()
	suite.portalStub.On("Subscribe", mock.Anything, mock.Anything).
		Return(portal.NewIdleNewsletter(runCtx))
	replies := make(chan event.Reply, 1)
	suite.portalStub.On("Publish", mock.Anything, topicReply, mock.Anything).
		Run(func(args mock.Arguments) {
			replies <- args.Get(2).(event.Reply)
		}).Once()
	// Handle.
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := suite.service.Run(runCtx)
		suite.NoError(err, "should not fail")
	}()
	defer func() {
		cancelRun()
		wg.Wait()
	}()
	select {
	case <-timeout.Done():
		suite.Fail("timeout", "should have picked up event within timeout")
		return event.Reply{}
	case receive <- event.Event[any]{Payload: payload}:
	}
	select {
	case <-timeout.Done():
		suite.Fail("timeout", "should have replied within timeout")
		return event.Reply{}
	case reply := <-replies:
		return reply
	}
}

// TestSubscribeOnRun assures that we subscribe to all request topics.
func (suite *arenaServiceSuite) TestSubscribeOnRun() {
	timeout, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	subscribed := atomic.NewInt32(0)
	for _, topic := range []portal.Topic{topicJoin, topicLeave, topicChallenge, topicForfeit} {
		suite.portalStub.On("Subscribe", mock.Anything, topic).
			Run(func(_ mock.Arguments) {
				if subscribed.Inc() == 4 {
					cancel()
				}
			}).
			Return(portal.NewIdleNewsletter(timeout)).Once()
	}
	defer suite.portalStub.AssertExpectations(suite.T())
	err := suite.service.Run(timeout)
	suite.NoError(err, "should not fail")
	suite.Equal(context.Canceled, timeout.Err(), "should not time out")
}

func (suite *arenaServiceSuite) TestJoinQueued() {
	suite.arenaStub.On("Join", mock.Anything, "u1", "t1").Return(arena.JoinResult{Position: 3}, nil).Once()
	defer suite.arenaStub.AssertExpectations(suite.T())

	reply := suite.handle(topicJoin, event.JoinRequest{RequestID: "r1", UserID: "u1", TeamID: "t1"})
	suite.Equal(event.Reply{
		RequestID: "r1",
		Type:      event.ReplyTypeJoin,
		UserID:    "u1",
		Success:   true,
		Position:  nulls.NewInt(3),
	}, reply, "should reply with position")
}

func (suite *arenaServiceSuite) TestJoinPaired() {
	suite.arenaStub.On("Join", mock.Anything, "u1", "t1").
		Return(arena.JoinResult{MatchID: "m1", Match: &battle.Match{ID: "m1"}}, nil).Once()
	defer suite.arenaStub.AssertExpectations(suite.T())

	reply := suite.handle(topicJoin, event.JoinRequest{RequestID: "r1", UserID: "u1", TeamID: "t1"})
	suite.True(reply.Success, "should succeed")
	suite.Equal(nulls.NewString("m1"), reply.MatchID, "should reply with match id")
	suite.False(reply.Position.Valid, "should not set position")
}

func (suite *arenaServiceSuite) TestJoinRejected() {
	suite.arenaStub.On("Join", mock.Anything, "u1", "t1").
		Return(arena.JoinResult{}, errors.NewBadRequestError(errors.KindAlreadyQueued, "already queued", nil)).Once()
	defer suite.arenaStub.AssertExpectations(suite.T())

	reply := suite.handle(topicJoin, event.JoinRequest{RequestID: "r1", UserID: "u1", TeamID: "t1"})
	suite.False(reply.Success, "should fail")
	suite.Require().NotNil(reply.Error, "should set error")
	suite.Equal(string(errors.KindAlreadyQueued), reply.Error.Kind, "should expose kind")
}

func (suite *arenaServiceSuite) TestJoinInternalError() {
	suite.arenaStub.On("Join", mock.Anything, "u1", "t1").
		Return(arena.JoinResult{}, nativeerrors.New("sad life")).Once()
	defer suite.arenaStub.AssertExpectations(suite.T())

	reply := suite.handle(topicJoin, event.JoinRequest{RequestID: "r1", UserID: "u1", TeamID: "t1"})
	suite.False(reply.Success, "should fail")
	suite.Require().NotNil(reply.Error, "should set error")
	suite.Equal(string(errors.KindUnexpected), reply.Error.Kind, "should hide error")
	suite.Empty(reply.Error.Err, "should hide error")
}

func (suite *arenaServiceSuite) TestLeave() {
	suite.arenaStub.On("Leave", "u1").Return(nil).Once()
	defer suite.arenaStub.AssertExpectations(suite.T())

	reply := suite.handle(topicLeave, event.LeaveRequest{RequestID: "r1", UserID: "u1"})
	suite.Equal(event.Reply{
		RequestID: "r1",
		Type:      event.ReplyTypeLeave,
		UserID:    "u1",
		Success:   true,
	}, reply, "should reply with success")
}

func (suite *arenaServiceSuite) TestLeaveNotQueued() {
	suite.arenaStub.On("Leave", "u1").
		Return(errors.NewBadRequestError(errors.KindNotQueued, "not queued", nil)).Once()
	defer suite.arenaStub.AssertExpectations(suite.T())

	reply := suite.handle(topicLeave, event.LeaveRequest{RequestID: "r1", UserID: "u1"})
	suite.False(reply.Success, "should fail")
	suite.Require().NotNil(reply.Error, "should set error")
	suite.Equal(string(errors.KindNotQueued), reply.Error.Kind, "should expose kind")
}

func (suite *arenaServiceSuite) TestChallenge() {
	suite.arenaStub.On("Challenge", mock.Anything, "u1", "t1", "u2", "t2").
		Return(battle.Match{ID: "m1", IsFriendly: true}, nil).Once()
	defer suite.arenaStub.AssertExpectations(suite.T())

	reply := suite.handle(topicChallenge, event.ChallengeRequest{
		RequestID:        "r1",
		ChallengerID:     "u1",
		ChallengerTeamID: "t1",
		OpponentID:       "u2",
		OpponentTeamID:   "t2",
	})
	suite.Equal(event.Reply{
		RequestID: "r1",
		Type:      event.ReplyTypeChallenge,
		UserID:    "u1",
		Success:   true,
		MatchID:   nulls.NewString("m1"),
	}, reply, "should reply with match id")
}

func (suite *arenaServiceSuite) TestChallengeSelf() {
	suite.arenaStub.On("Challenge", mock.Anything, "u1", "t1", "u1", "t1").
		Return(battle.Match{}, errors.NewBadRequestError(errors.KindSelfChallenge, "self", nil)).Once()
	defer suite.arenaStub.AssertExpectations(suite.T())

	reply := suite.handle(topicChallenge, event.ChallengeRequest{
		RequestID:        "r1",
		ChallengerID:     "u1",
		ChallengerTeamID: "t1",
		OpponentID:       "u1",
		OpponentTeamID:   "t1",
	})
	suite.False(reply.Success, "should fail")
	suite.Require().NotNil(reply.Error, "should set error")
	suite.Equal(string(errors.KindSelfChallenge), reply.Error.Kind, "should expose kind")
	suite.False(reply.MatchID.Valid, "should not set match id")
}

func (suite *arenaServiceSuite) TestForfeit() {
	suite.arenaStub.On("Forfeit", mock.Anything, "u1").Return(nil).Once()
	defer suite.arenaStub.AssertExpectations(suite.T())

	reply := suite.handle(topicForfeit, event.ForfeitRequest{RequestID: "r1", UserID: "u1"})
	suite.Equal(event.Reply{
		RequestID: "r1",
		Type:      event.ReplyTypeForfeit,
		UserID:    "u1",
		Success:   true,
	}, reply, "should reply with success")
}

func (suite *arenaServiceSuite) TestForfeitNotInMatch() {
	suite.arenaStub.On("Forfeit", mock.Anything, "u1").
		Return(errors.NewBadRequestError(errors.KindNotInMatch, "not in match", nil)).Once()
	defer suite.arenaStub.AssertExpectations(suite.T())

	reply := suite.handle(topicForfeit, event.ForfeitRequest{RequestID: "r1", UserID: "u1"})
	suite.False(reply.Success, "should fail")
	suite.Require().NotNil(reply.Error, "should set error")
	suite.Equal(string(errors.KindNotInMatch), reply.Error.Kind, "should expose kind")
}

func TestArenaService(t *testing.T) {
	suite.Run(t, new(arenaServiceSuite))
}

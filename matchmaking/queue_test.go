package matchmaking

import (
	"context"
	nativeerrors "errors"
	"github.com/gobuffalo/nulls"
	"github.com/jonboulle/clockwork"
	"github.com/lefinal/gacha-arena/errors"
	"github.com/lefinal/gacha-arena/rating"
	"github.com/lefinal/gacha-arena/store"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"testing"
)

type QueueTestSuite struct {
	suite.Suite
	profiles    *ProfileStoreStub
	leaderboard *LeaderboardStub
	registry    *Registry
	q           *Queue
	ctx         context.Context
}

func (suite *QueueTestSuite) SetupTest() {
	suite.profiles = &ProfileStoreStub{}
	suite.leaderboard = &LeaderboardStub{}
	suite.registry = NewRegistry()
	suite.q = NewQueue(zap.New(zapcore.NewNopCore()), Config{PrivilegedTop: DefaultPrivilegedTop},
		suite.registry, suite.profiles, suite.leaderboard, clockwork.NewFakeClock())
	suite.ctx = context.Background()
}

// ranked makes the leaderboard report the given positions.
func (suite *QueueTestSuite) ranked(positions map[string]nulls.Int) {
	suite.leaderboard.On("LeaderboardPositions", mock.Anything, mock.Anything).Return(positions, nil)
}

// unranked sets the leaderboard position of all given players to a position
// outside the privileged pool.
func (suite *QueueTestSuite) unranked(userIDs ...string) {
	positions := make(map[string]nulls.Int, len(userIDs))
	for _, userID := range userIDs {
		positions[userID] = nulls.NewInt(1000)
	}
	suite.ranked(positions)
}

func (suite *QueueTestSuite) TestJoinOK() {
	StubPlayer(suite.profiles, "u1", "t1", nulls.NewInt(120), store.Card{
		Name:      "Leader",
		Playstyle: nulls.NewString("LEADER"),
		HP:        nulls.NewInt(80),
		Strength:  nulls.NewInt(90),
		Defense:   nulls.NewInt(5),
		Speed:     nulls.NewInt(12),
	})
	entry, err := suite.q.Join(suite.ctx, "u1", "t1")
	suite.Require().NoError(err, "should not fail")
	suite.Equal("u1", entry.UserID)
	suite.Equal("t1", entry.TeamID)
	suite.Equal(120, entry.Rating)
	suite.Equal("Player u1", entry.DisplayName)
	suite.Require().NotNil(entry.Team[0])
	suite.Equal("t1-1", entry.Team[0].ID)
	suite.EqualValues("LEADER", entry.Team[0].Playstyle)
	suite.Equal(90, entry.Team[0].OriginalStats.Strength, "should use collection stats")
	suite.Equal(80, entry.Team[0].CurrentHP)
	for i := 1; i < store.TeamSlots; i++ {
		suite.Require().NotNil(entry.Team[i], "slot %d should be filled", i)
	}
	pos, ok := suite.registry.Position("u1")
	suite.True(ok, "should be queued")
	suite.Equal(1, pos)
}

func (suite *QueueTestSuite) TestJoinDefaultRating() {
	StubPlayer(suite.profiles, "u1", "t1", nulls.Int{})
	entry, err := suite.q.Join(suite.ctx, "u1", "t1")
	suite.Require().NoError(err, "should not fail")
	suite.Equal(rating.BaseRating, entry.Rating, "should use base rating")
}

func (suite *QueueTestSuite) TestJoinAlreadyQueued() {
	suite.Require().NoError(suite.registry.Enqueue(QueueEntry{UserID: "u1"}))
	_, err := suite.q.Join(suite.ctx, "u1", "t1")
	suite.True(errors.HasKind(err, errors.KindAlreadyQueued), "should fail with already queued")
	suite.profiles.AssertNotCalled(suite.T(), "Profile", mock.Anything, mock.Anything)
}

func (suite *QueueTestSuite) TestJoinAlreadyInMatch() {
	suite.Require().NoError(suite.registry.AddMatch("m1", "u1", "u2"))
	_, err := suite.q.Join(suite.ctx, "u1", "t1")
	suite.True(errors.HasKind(err, errors.KindAlreadyInMatch), "should fail with already in match")
}

func (suite *QueueTestSuite) TestJoinUnknownUser() {
	suite.profiles.On("Profile", mock.Anything, "u1").
		Return(store.Profile{}, errors.NewResourceNotFoundError("user not found", nil))
	_, err := suite.q.Join(suite.ctx, "u1", "t1")
	e, _ := errors.Cast(err)
	suite.Equal(errors.ErrNotFound, e.Code, "should fail with not found")
	suite.Equal(0, suite.registry.QueueLen(), "should not enqueue")
}

func (suite *QueueTestSuite) TestJoinUnknownTeam() {
	suite.profiles.On("Profile", mock.Anything, "u1").Return(store.Profile{UserID: "u1"}, nil)
	suite.profiles.On("TeamByID", mock.Anything, "t1").
		Return(store.Team{}, errors.NewResourceNotFoundError("team not found", nil))
	_, err := suite.q.Join(suite.ctx, "u1", "t1")
	e, _ := errors.Cast(err)
	suite.Equal(errors.ErrNotFound, e.Code, "should fail with not found")
	suite.Equal(0, suite.registry.QueueLen(), "should not enqueue")
}

func (suite *QueueTestSuite) TestJoinTeamNotOwned() {
	StubPlayer(suite.profiles, "u2", "t2", nulls.Int{})
	suite.profiles.On("Profile", mock.Anything, "u1").Return(store.Profile{UserID: "u1"}, nil)
	_, err := suite.q.Join(suite.ctx, "u1", "t2")
	suite.True(errors.HasKind(err, errors.KindTeamNotOwned), "should fail with team not owned")
	suite.True(errors.BlameUser(err))
	suite.Equal(0, suite.registry.QueueLen(), "should not enqueue")
}

func (suite *QueueTestSuite) TestJoinSlotEmpty() {
	suite.profiles.On("Profile", mock.Anything, "u1").Return(store.Profile{UserID: "u1"}, nil)
	suite.profiles.On("TeamByID", mock.Anything, "t1").Return(store.Team{
		ID:      "t1",
		OwnerID: "u1",
		Slots:   [store.TeamSlots]nulls.String{nulls.NewString("c1"), {}, nulls.NewString("c3"), nulls.NewString("c4")},
	}, nil)
	stats := store.Card{HP: nulls.NewInt(1), Strength: nulls.NewInt(1), Defense: nulls.NewInt(1), Speed: nulls.NewInt(1)}
	c1, c3, c4 := stats, stats, stats
	c1.ID, c3.ID, c4.ID = "c1", "c3", "c4"
	suite.profiles.On("UserCards", mock.Anything, "u1").Return([]store.Card{c1, c3, c4}, nil)
	_, err := suite.q.Join(suite.ctx, "u1", "t1")
	suite.True(errors.HasKind(err, errors.KindTeamIncomplete), "should fail with team incomplete")
	e, _ := errors.Cast(err)
	suite.Equal(2, e.Details["slot"], "should report slot")
	suite.Equal(0, suite.registry.QueueLen(), "should not enqueue")
}

func (suite *QueueTestSuite) TestJoinCardNotInCollection() {
	suite.profiles.On("Profile", mock.Anything, "u1").Return(store.Profile{UserID: "u1"}, nil)
	suite.profiles.On("TeamByID", mock.Anything, "t1").Return(store.Team{
		ID:      "t1",
		OwnerID: "u1",
		Slots: [store.TeamSlots]nulls.String{
			nulls.NewString("c1"), nulls.NewString("c2"), nulls.NewString("sold"), nulls.NewString("c4"),
		},
	}, nil)
	stats := store.Card{HP: nulls.NewInt(1), Strength: nulls.NewInt(1), Defense: nulls.NewInt(1), Speed: nulls.NewInt(1)}
	c1, c2, c4 := stats, stats, stats
	c1.ID, c2.ID, c4.ID = "c1", "c2", "c4"
	suite.profiles.On("UserCards", mock.Anything, "u1").Return([]store.Card{c1, c2, c4}, nil)
	_, err := suite.q.Join(suite.ctx, "u1", "t1")
	suite.True(errors.HasKind(err, errors.KindCardNotInCollection), "should fail with card not in collection")
	e, _ := errors.Cast(err)
	suite.Equal(3, e.Details["slot"], "should report slot")
	suite.Equal(0, suite.registry.QueueLen(), "should not enqueue")
}

func (suite *QueueTestSuite) TestJoinMissingStats() {
	StubPlayer(suite.profiles, "u1", "t1", nulls.Int{}, store.Card{
		HP:       nulls.NewInt(100),
		Strength: nulls.NewInt(10),
		Speed:    nulls.NewInt(10),
	})
	_, err := suite.q.Join(suite.ctx, "u1", "t1")
	suite.True(errors.HasKind(err, errors.KindInvalidCardStats), "should fail with invalid card stats")
	suite.Equal(0, suite.registry.QueueLen(), "should not enqueue")
}

func (suite *QueueTestSuite) TestJoinStoreFailure() {
	suite.profiles.On("Profile", mock.Anything, "u1").Return(store.Profile{}, nativeerrors.New("sad life"))
	_, err := suite.q.Join(suite.ctx, "u1", "t1")
	suite.Error(err, "should fail")
	suite.False(errors.BlameUser(err), "should not blame user")
}

func (suite *QueueTestSuite) TestTryPairSameTier() {
	StubPlayer(suite.profiles, "u1", "t1", nulls.NewInt(120))
	StubPlayer(suite.profiles, "u2", "t2", nulls.NewInt(130))
	suite.unranked("u1", "u2")
	_, err := suite.q.Join(suite.ctx, "u1", "t1")
	suite.Require().NoError(err)
	outcome, err := suite.q.TryPair(suite.ctx, "u1")
	suite.Require().NoError(err)
	suite.False(outcome.Paired(), "should not pair alone")
	suite.Equal(1, outcome.Position)
	_, err = suite.q.Join(suite.ctx, "u2", "t2")
	suite.Require().NoError(err)
	outcome, err = suite.q.TryPair(suite.ctx, "u2")
	suite.Require().NoError(err)
	suite.Require().True(outcome.Paired(), "should pair")
	m := outcome.Match
	suite.NotEmpty(m.ID, "should generate match id")
	suite.Equal("u2", m.Players[0].UserID, "seeker should be first player")
	suite.Equal("u1", m.Players[1].UserID)
	suite.Equal(130, m.Players[0].Rating)
	suite.Equal(4, m.Players[0].RemainingCards)
	suite.False(m.IsFriendly)
	suite.Equal(0, suite.registry.QueueLen(), "should dequeue both")
	matchID, ok := suite.registry.MatchOf("u1")
	suite.True(ok)
	suite.Equal(m.ID, matchID)
}

func (suite *QueueTestSuite) TestTryPairDifferentTier() {
	StubPlayer(suite.profiles, "u1", "t1", nulls.NewInt(120))
	StubPlayer(suite.profiles, "u2", "t2", nulls.NewInt(600))
	suite.unranked("u1", "u2")
	_, err := suite.q.Join(suite.ctx, "u1", "t1")
	suite.Require().NoError(err)
	_, err = suite.q.Join(suite.ctx, "u2", "t2")
	suite.Require().NoError(err)
	outcome, err := suite.q.TryPair(suite.ctx, "u2")
	suite.Require().NoError(err)
	suite.False(outcome.Paired(), "should not pair across tiers")
	suite.Equal(2, outcome.Position)
}

func (suite *QueueTestSuite) TestTryPairPrivilegedOnlyWithPrivileged() {
	StubPlayer(suite.profiles, "u1", "t1", nulls.NewInt(5100))
	StubPlayer(suite.profiles, "u2", "t2", nulls.NewInt(5100))
	StubPlayer(suite.profiles, "u3", "t3", nulls.NewInt(900))
	suite.ranked(map[string]nulls.Int{"u1": nulls.NewInt(1), "u2": {}, "u3": nulls.NewInt(250)})
	for _, p := range [][2]string{{"u1", "t1"}, {"u2", "t2"}, {"u3", "t3"}} {
		_, err := suite.q.Join(suite.ctx, p[0], p[1])
		suite.Require().NoError(err)
	}
	outcome, err := suite.q.TryPair(suite.ctx, "u1")
	suite.Require().NoError(err)
	suite.Require().True(outcome.Paired(), "should pair")
	suite.Equal("u3", outcome.Match.Players[1].UserID, "should pair with privileged player across tiers")
	_, queued := suite.registry.Position("u2")
	suite.True(queued, "regular player should stay queued")
}

func (suite *QueueTestSuite) TestTryPairLeaderboardFailure() {
	StubPlayer(suite.profiles, "u1", "t1", nulls.NewInt(120))
	suite.leaderboard.On("LeaderboardPositions", mock.Anything, mock.Anything).Return(nil, nativeerrors.New("sad life"))
	_, err := suite.q.Join(suite.ctx, "u1", "t1")
	suite.Require().NoError(err)
	_, err = suite.q.TryPair(suite.ctx, "u1")
	suite.Error(err, "should fail")
	_, queued := suite.registry.Position("u1")
	suite.True(queued, "should stay queued")
}

func (suite *QueueTestSuite) TestTryPairLooksUpPositionsOnce() {
	StubPlayer(suite.profiles, "u1", "t1", nulls.NewInt(120))
	StubPlayer(suite.profiles, "u2", "t2", nulls.NewInt(600))
	StubPlayer(suite.profiles, "u3", "t3", nulls.NewInt(1200))
	for _, p := range [][2]string{{"u1", "t1"}, {"u2", "t2"}, {"u3", "t3"}} {
		_, err := suite.q.Join(suite.ctx, p[0], p[1])
		suite.Require().NoError(err)
	}
	suite.leaderboard.On("LeaderboardPositions", mock.Anything, mock.MatchedBy(func(userIDs []string) bool {
		return len(userIDs) == 3
	})).Return(map[string]nulls.Int{}, nil).Once()
	defer suite.leaderboard.AssertExpectations(suite.T())
	outcome, err := suite.q.TryPair(suite.ctx, "u3")
	suite.Require().NoError(err)
	suite.False(outcome.Paired(), "should not pair across tiers")
	suite.Equal(3, outcome.Position)
}

func (suite *QueueTestSuite) TestTryPairNotQueued() {
	_, err := suite.q.TryPair(suite.ctx, "u1")
	suite.True(errors.HasKind(err, errors.KindNotQueued))
}

func (suite *QueueTestSuite) TestPrivilegedPoolDisabled() {
	suite.q.config.PrivilegedTop = 0
	StubPlayer(suite.profiles, "u1", "t1", nulls.NewInt(120))
	StubPlayer(suite.profiles, "u2", "t2", nulls.NewInt(121))
	_, err := suite.q.Join(suite.ctx, "u1", "t1")
	suite.Require().NoError(err)
	_, err = suite.q.Join(suite.ctx, "u2", "t2")
	suite.Require().NoError(err)
	outcome, err := suite.q.TryPair(suite.ctx, "u2")
	suite.Require().NoError(err)
	suite.True(outcome.Paired(), "should pair")
	suite.leaderboard.AssertNotCalled(suite.T(), "LeaderboardPositions", mock.Anything, mock.Anything)
}

func (suite *QueueTestSuite) TestLeave() {
	StubPlayer(suite.profiles, "u1", "t1", nulls.NewInt(120))
	_, err := suite.q.Join(suite.ctx, "u1", "t1")
	suite.Require().NoError(err)
	suite.True(suite.q.Leave("u1"))
	suite.False(suite.q.Leave("u1"), "should not leave twice")
	suite.Equal(0, suite.registry.QueueLen())
	suite.Equal(0, suite.registry.MatchCount(), "should not create match")
}

func (suite *QueueTestSuite) TestSweep() {
	StubPlayer(suite.profiles, "u1", "t1", nulls.NewInt(100))
	StubPlayer(suite.profiles, "u2", "t2", nulls.NewInt(700))
	StubPlayer(suite.profiles, "u3", "t3", nulls.NewInt(200))
	StubPlayer(suite.profiles, "u4", "t4", nulls.NewInt(800))
	StubPlayer(suite.profiles, "u5", "t5", nulls.NewInt(1200))
	suite.unranked("u1", "u2", "u3", "u4", "u5")
	for _, p := range [][2]string{{"u1", "t1"}, {"u2", "t2"}, {"u3", "t3"}, {"u4", "t4"}, {"u5", "t5"}} {
		_, err := suite.q.Join(suite.ctx, p[0], p[1])
		suite.Require().NoError(err)
	}
	matches := suite.q.Sweep(suite.ctx)
	suite.leaderboard.AssertNumberOfCalls(suite.T(), "LeaderboardPositions", 1)
	suite.Require().Len(matches, 2)
	suite.Equal("u1", matches[0].Players[0].UserID)
	suite.Equal("u3", matches[0].Players[1].UserID)
	suite.Equal("u2", matches[1].Players[0].UserID)
	suite.Equal("u4", matches[1].Players[1].UserID)
	pos, ok := suite.registry.Position("u5")
	suite.True(ok, "lone player should stay queued")
	suite.Equal(1, pos)
}

func (suite *QueueTestSuite) TestSweepLeaderboardFailure() {
	StubPlayer(suite.profiles, "u1", "t1", nulls.NewInt(120))
	StubPlayer(suite.profiles, "u2", "t2", nulls.NewInt(130))
	suite.leaderboard.On("LeaderboardPositions", mock.Anything, mock.Anything).Return(nil, nativeerrors.New("sad life"))
	for _, p := range [][2]string{{"u1", "t1"}, {"u2", "t2"}} {
		_, err := suite.q.Join(suite.ctx, p[0], p[1])
		suite.Require().NoError(err)
	}
	suite.Empty(suite.q.Sweep(suite.ctx), "should not pair")
	suite.Equal(2, suite.registry.QueueLen(), "should keep players queued")
}

func TestQueue(t *testing.T) {
	suite.Run(t, new(QueueTestSuite))
}

package matchmaking

import (
	"fmt"
	"github.com/lefinal/gacha-arena/battle"
	"github.com/lefinal/gacha-arena/errors"
	"github.com/stretchr/testify/suite"
	"sync"
	"testing"
)

type RegistryTestSuite struct {
	suite.Suite
	r *Registry
}

func (suite *RegistryTestSuite) SetupTest() {
	suite.r = NewRegistry()
}

// build is a build function for Registry.Pair that creates matches without
// teams.
func build(id string) func(a QueueEntry, b QueueEntry) *battle.Match {
	return func(a QueueEntry, b QueueEntry) *battle.Match {
		return battle.NewMatch(id,
			battle.NewMatchPlayer(a.UserID, a.DisplayName, a.Rating, a.Team),
			battle.NewMatchPlayer(b.UserID, b.DisplayName, b.Rating, b.Team),
			false)
	}
}

func (suite *RegistryTestSuite) TestEnqueueOK() {
	suite.Require().NoError(suite.r.Enqueue(QueueEntry{UserID: "u1"}))
	suite.Require().NoError(suite.r.Enqueue(QueueEntry{UserID: "u2"}))
	pos, ok := suite.r.Position("u2")
	suite.True(ok)
	suite.Equal(2, pos, "should report 1-indexed insertion order")
	suite.Equal(2, suite.r.QueueLen())
}

func (suite *RegistryTestSuite) TestEnqueueAlreadyQueued() {
	suite.Require().NoError(suite.r.Enqueue(QueueEntry{UserID: "u1", Rating: 1}))
	err := suite.r.Enqueue(QueueEntry{UserID: "u1", Rating: 2})
	suite.True(errors.HasKind(err, errors.KindAlreadyQueued), "should fail with already queued")
	entry, _ := suite.r.Entry("u1")
	suite.Equal(1, entry.Rating, "should not overwrite entry")
	suite.Equal(1, suite.r.QueueLen())
}

func (suite *RegistryTestSuite) TestEnqueueAlreadyInMatch() {
	suite.Require().NoError(suite.r.AddMatch("m1", "u1", "u2"))
	err := suite.r.Enqueue(QueueEntry{UserID: "u1"})
	suite.True(errors.HasKind(err, errors.KindAlreadyInMatch), "should fail with already in match")
	suite.Equal(0, suite.r.QueueLen())
}

func (suite *RegistryTestSuite) TestDequeue() {
	suite.Require().NoError(suite.r.Enqueue(QueueEntry{UserID: "u1"}))
	suite.Require().NoError(suite.r.Enqueue(QueueEntry{UserID: "u2"}))
	suite.Require().NoError(suite.r.Enqueue(QueueEntry{UserID: "u3"}))
	suite.True(suite.r.Dequeue("u2"))
	suite.False(suite.r.Dequeue("u2"), "should not dequeue twice")
	pos, _ := suite.r.Position("u3")
	suite.Equal(2, pos, "should move up")
	_, matched := suite.r.MatchOf("u2")
	suite.False(matched, "should not create match")
}

func (suite *RegistryTestSuite) TestPairOK() {
	suite.Require().NoError(suite.r.Enqueue(QueueEntry{UserID: "u1"}))
	suite.Require().NoError(suite.r.Enqueue(QueueEntry{UserID: "u2"}))
	suite.Require().NoError(suite.r.Enqueue(QueueEntry{UserID: "u3"}))
	m, ok := suite.r.Pair("u3", "u1", build("m1"))
	suite.Require().True(ok, "should pair")
	suite.Equal("u3", m.Players[0].UserID, "seeker should be first player")
	suite.Equal("u1", m.Players[1].UserID)
	for _, userID := range []string{"u1", "u3"} {
		matchID, ok := suite.r.MatchOf(userID)
		suite.True(ok, "%s should be in match", userID)
		suite.Equal("m1", matchID)
		_, queued := suite.r.Position(userID)
		suite.False(queued, "%s should not be queued", userID)
	}
	pos, _ := suite.r.Position("u2")
	suite.Equal(1, pos)
}

func (suite *RegistryTestSuite) TestPairNotQueued() {
	suite.Require().NoError(suite.r.Enqueue(QueueEntry{UserID: "u1"}))
	called := false
	_, ok := suite.r.Pair("u1", "u2", func(a QueueEntry, b QueueEntry) *battle.Match {
		called = true
		return nil
	})
	suite.False(ok, "should not pair")
	suite.False(called, "should not build match")
	suite.Equal(1, suite.r.QueueLen(), "should keep entry")
}

func (suite *RegistryTestSuite) TestPairSelf() {
	suite.Require().NoError(suite.r.Enqueue(QueueEntry{UserID: "u1"}))
	_, ok := suite.r.Pair("u1", "u1", build("m1"))
	suite.False(ok, "should not pair with self")
}

func (suite *RegistryTestSuite) TestAddMatch() {
	suite.Require().NoError(suite.r.Enqueue(QueueEntry{UserID: "u3"}))
	suite.Require().NoError(suite.r.AddMatch("m1", "u1", "u2"))
	suite.True(errors.HasKind(suite.r.AddMatch("m2", "u2", "u4"), errors.KindAlreadyInMatch))
	suite.True(errors.HasKind(suite.r.AddMatch("m2", "u4", "u3"), errors.KindAlreadyQueued))
	suite.True(errors.HasKind(suite.r.AddMatch("m2", "u4", "u4"), errors.KindSelfChallenge))
	suite.Error(suite.r.AddMatch("m1", "u5", "u6"), "should reject duplicate id")
	_, ok := suite.r.MatchOf("u4")
	suite.False(ok, "failed add should not register players")
	suite.Equal(1, suite.r.MatchCount())
}

func (suite *RegistryTestSuite) TestRemoveMatch() {
	suite.Require().NoError(suite.r.AddMatch("m1", "u1", "u2"))
	suite.True(suite.r.RemoveMatch("m1"))
	suite.False(suite.r.RemoveMatch("m1"), "should not remove twice")
	suite.NoError(suite.r.CheckFree("u1"), "should free players")
	suite.NoError(suite.r.Enqueue(QueueEntry{UserID: "u2"}))
}

func (suite *RegistryTestSuite) TestConcurrentPairNeverDuplicates() {
	for i := 0; i < 20; i++ {
		suite.Require().NoError(suite.r.Enqueue(QueueEntry{UserID: fmt.Sprintf("u%d", i)}))
	}
	var wg sync.WaitGroup
	var pairedMutex sync.Mutex
	paired := make(map[string]int)
	for i := 0; i < 20; i++ {
		for j := 0; j < 20; j++ {
			wg.Add(1)
			go func(a, b int) {
				defer wg.Done()
				m, ok := suite.r.Pair(fmt.Sprintf("u%d", a), fmt.Sprintf("u%d", b), build(fmt.Sprintf("m%d-%d", a, b)))
				if !ok {
					return
				}
				pairedMutex.Lock()
				defer pairedMutex.Unlock()
				for _, p := range m.Players {
					paired[p.UserID]++
				}
			}(i, j)
		}
	}
	wg.Wait()
	suite.Equal(0, suite.r.QueueLen(), "should pair everyone")
	suite.Len(paired, 20)
	for userID, n := range paired {
		suite.Equal(1, n, "%s should be paired exactly once", userID)
	}
}

func (suite *RegistryTestSuite) TestIsBusy() {
	suite.False(suite.r.IsBusy("u1"))
	suite.Require().NoError(suite.r.Enqueue(QueueEntry{UserID: "u1"}))
	suite.True(suite.r.IsBusy("u1"), "queued player should be busy")
	suite.Require().NoError(suite.r.AddMatch("m1", "u2", "u3"))
	suite.True(suite.r.IsBusy("u3"), "player in match should be busy")
	suite.ElementsMatch([]string{"m1"}, suite.r.MatchIDs())
}

func TestRegistry(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}

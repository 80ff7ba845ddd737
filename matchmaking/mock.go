package matchmaking

import (
	"context"
	"github.com/gobuffalo/nulls"
	"github.com/lefinal/gacha-arena/store"
	"github.com/stretchr/testify/mock"
)

// ProfileStoreStub mocks ProfileStore.
type ProfileStoreStub struct {
	mock.Mock
}

// Profile calls mock.Mock.
func (s *ProfileStoreStub) Profile(ctx context.Context, userID string) (store.Profile, error) {
	args := s.Called(ctx, userID)
	return args.Get(0).(store.Profile), args.Error(1)
}

// TeamByID calls mock.Mock.
func (s *ProfileStoreStub) TeamByID(ctx context.Context, teamID string) (store.Team, error) {
	args := s.Called(ctx, teamID)
	return args.Get(0).(store.Team), args.Error(1)
}

// UserCards calls mock.Mock.
func (s *ProfileStoreStub) UserCards(ctx context.Context, userID string) ([]store.Card, error) {
	args := s.Called(ctx, userID)
	return args.Get(0).([]store.Card), args.Error(1)
}

// LeaderboardStub mocks LeaderboardProvider.
type LeaderboardStub struct {
	mock.Mock
}

// LeaderboardPositions calls mock.Mock.
func (s *LeaderboardStub) LeaderboardPositions(ctx context.Context, userIDs []string) (map[string]nulls.Int, error) {
	args := s.Called(ctx, userIDs)
	positions, _ := args.Get(0).(map[string]nulls.Int)
	return positions, args.Error(1)
}

// StubPlayer registers profile, team and collection of a player with full
// stats on the given ProfileStoreStub. Card ids are the team id suffixed with
// the slot number.
func StubPlayer(s *ProfileStoreStub, userID string, teamID string, rating nulls.Int, stats ...store.Card) {
	s.On("Profile", mock.Anything, userID).Return(store.Profile{
		UserID:      userID,
		DisplayName: "Player " + userID,
		Rating:      rating,
	}, nil)
	team := store.Team{
		ID:      teamID,
		OwnerID: userID,
	}
	cards := make([]store.Card, 0, store.TeamSlots)
	for i := 0; i < store.TeamSlots; i++ {
		card := store.Card{
			Name:     "Card",
			HP:       nulls.NewInt(100),
			Strength: nulls.NewInt(20),
			Defense:  nulls.NewInt(10),
			Speed:    nulls.NewInt(10),
		}
		if i < len(stats) {
			card = stats[i]
		}
		card.ID = teamID + "-" + string(rune('1'+i))
		card.OwnerID = userID
		team.Slots[i] = nulls.NewString(card.ID)
		cards = append(cards, card)
	}
	s.On("TeamByID", mock.Anything, teamID).Return(team, nil)
	s.On("UserCards", mock.Anything, userID).Return(cards, nil)
}

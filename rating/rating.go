// Package rating calculates rating changes after matches and maps ratings to
// tiers.
package rating

const (
	// BaseRating is assigned to players that have not played yet.
	BaseRating = 100
	// DefaultWinDelta is added to the winner's rating.
	DefaultWinDelta = 25
	// DefaultLossDelta is added to the loser's rating.
	DefaultLossDelta = -15
	// DefaultFloor is the minimum rating.
	DefaultFloor = 0
)

// Calculator applies flat rating deltas.
type Calculator struct {
	WinDelta  int
	LossDelta int
	Floor     int
}

// NewCalculator returns a Calculator with the default deltas.
func NewCalculator() Calculator {
	return Calculator{
		WinDelta:  DefaultWinDelta,
		LossDelta: DefaultLossDelta,
		Floor:     DefaultFloor,
	}
}

// Change is the result of applying a match outcome to a rating.
type Change struct {
	Before int
	After  int
	// Delta is the actually applied change which might differ from the configured
	// one because of the floor.
	Delta int
}

// Apply calculates the new ratings for winner and loser. Friendly matches do
// not change ratings.
func (c Calculator) Apply(winnerRating int, loserRating int, friendly bool) (winner Change, loser Change) {
	if friendly {
		return Change{Before: winnerRating, After: winnerRating}, Change{Before: loserRating, After: loserRating}
	}
	winner = c.change(winnerRating, c.WinDelta)
	loser = c.change(loserRating, c.LossDelta)
	return winner, loser
}

func (c Calculator) change(rating int, delta int) Change {
	after := max(c.Floor, rating+delta)
	return Change{
		Before: rating,
		After:  after,
		Delta:  after - rating,
	}
}

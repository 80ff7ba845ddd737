package matchmaking

import "github.com/lefinal/gacha-arena/rating"

// Candidate is a queued player as seen by SelectOpponent.
type Candidate struct {
	UserID string
	Rating int
	// Privileged is set for players within the top leaderboard positions.
	Privileged bool
}

// Eligible checks whether both candidates may fight each other. Privileged
// players only fight privileged players. Regular players only fight regular
// players of the same tier.
func Eligible(a Candidate, b Candidate) bool {
	if a.UserID == b.UserID {
		return false
	}
	if a.Privileged || b.Privileged {
		return a.Privileged && b.Privileged
	}
	return rating.SameTier(a.Rating, b.Rating)
}

// SelectOpponent picks the eligible candidate with the smallest rating
// difference to the seeker. Candidates are expected in queue order, so ties go
// to whoever queued first.
func SelectOpponent(seeker Candidate, candidates []Candidate) (Candidate, bool) {
	var best Candidate
	found := false
	bestDiff := 0
	for _, candidate := range candidates {
		if !Eligible(seeker, candidate) {
			continue
		}
		diff := seeker.Rating - candidate.Rating
		if diff < 0 {
			diff = -diff
		}
		if !found || diff < bestDiff {
			best = candidate
			bestDiff = diff
			found = true
		}
	}
	return best, found
}

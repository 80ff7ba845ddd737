package rating

// Tier is a rating band. Regular players only get paired within the same Tier.
type Tier struct {
	Name string `json:"name"`
	// Min is the inclusive lower rating bound.
	Min int `json:"min"`
	// Max is the inclusive upper rating bound. Zero for the open top tier.
	Max int `json:"max"`
}

// Tiers in ascending order.
var Tiers = []Tier{
	{Name: "Bronze", Min: 0, Max: 499},
	{Name: "Silver", Min: 500, Max: 999},
	{Name: "Gold", Min: 1000, Max: 1499},
	{Name: "Platinum", Min: 1500, Max: 1999},
	{Name: "Diamond", Min: 2000, Max: 2499},
	{Name: "Master", Min: 2500, Max: 4999},
	{Name: "Supreme", Min: 5000},
}

// TierFor returns the Tier the given rating falls into. Negative ratings are
// treated as the lowest tier.
func TierFor(rating int) Tier {
	for i := len(Tiers) - 1; i >= 0; i-- {
		if rating >= Tiers[i].Min {
			return Tiers[i]
		}
	}
	return Tiers[0]
}

// SameTier checks whether both ratings fall into the same Tier.
func SameTier(a int, b int) bool {
	return TierFor(a).Name == TierFor(b).Name
}

// Progress returns the progress in percent through the tier of the given
// rating, rounded half up. The open top tier always reports 100.
func Progress(rating int) int {
	tier := TierFor(rating)
	if tier.Max == 0 {
		return 100
	}
	span := tier.Max - tier.Min + 1
	return min(100, max(0, ((rating-tier.Min)*200+span)/(2*span)))
}

package forecast

import "prospector/internal/accountstate"

// Tier labels for the monthly gross purchase volume brackets.
const (
	Tier1 = "tier1"
	Tier2 = "tier2"
	Tier3 = "tier3"
	Tier4 = "tier4"
	Tier5 = "tier5"
	Tier6 = "tier6"
)

// tierBands are ascending exclusive upper bounds; anything above the last is Tier6.
var tierBands = []struct {
	below float64
	tier  string
}{
	{50_000, Tier1},
	{100_000, Tier2},
	{250_000, Tier3},
	{500_000, Tier4},
	{1_000_000, Tier5},
}

// TierFor maps a monthly forecast total to its tier. Lower bounds are inclusive.
func TierFor(total float64) string {
	for _, b := range tierBands {
		if total < b.below {
			return b.tier
		}
	}
	return Tier6
}

// ValidTier reports whether s is one of the tier labels.
func ValidTier(s string) bool {
	switch s {
	case Tier1, Tier2, Tier3, Tier4, Tier5, Tier6:
		return true
	}
	return false
}

// AutoTier decides whether a saved account's stored tier should follow the forecast.
// Manual accounts and accounts with neither history nor a correlation key are exempt.
func AutoTier(st *accountstate.State, res Result) (string, bool) {
	if st.Manual && len(st.History) == 0 {
		return "", false
	}
	if len(st.History) == 0 && st.Key == "" {
		return "", false
	}
	if res.Months == 0 {
		return "", false
	}
	if st.GPVTier != nil && *st.GPVTier == res.Tier {
		return "", false
	}
	return res.Tier, true
}

package forecast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prospector/internal/accountstate"
	"prospector/internal/model"
)

func months(totals ...float64) []model.MonthlyReceipt {
	out := make([]model.MonthlyReceipt, len(totals))
	for i, t := range totals {
		out[i] = model.MonthlyReceipt{Total: t}
	}
	return out
}

func TestComputeBar(t *testing.T) {
	res, err := Compute(months(8500, 0, 8500, -3), "bar")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Months)
	assert.InDelta(t, 8500, res.AvgAlcohol, 1e-9)
	assert.InDelta(t, 1500, res.EstFood, 1e-6)
	assert.InDelta(t, 10000, res.ForecastTotal, 1e-6)
	assert.Equal(t, Tier1, res.Tier)
}

func TestComputeDefaultsToCasualDining(t *testing.T) {
	res, err := Compute(months(36000), "")
	require.NoError(t, err)
	assert.Equal(t, DefaultVenueType, res.VenueType)
	assert.InDelta(t, 84000, res.EstFood, 1e-6)
	assert.InDelta(t, 120000, res.ForecastTotal, 1e-6)
	assert.Equal(t, Tier3, res.Tier)
}

func TestComputeUnknownVenue(t *testing.T) {
	_, err := Compute(months(1), "speakeasy")
	assert.ErrorIs(t, err, ErrUnknownVenue)
}

func TestComputeEmptyHistory(t *testing.T) {
	res, err := Compute(nil, "nightclub")
	require.NoError(t, err)
	assert.Zero(t, res.Months)
	assert.Zero(t, res.ForecastTotal)
	assert.Equal(t, Tier1, res.Tier)
}

func TestForecastGrowsWithReceipts(t *testing.T) {
	for _, vt := range VenueTypes() {
		prev := -1.0
		for _, total := range []float64{100, 5000, 42000, 42000.01, 300000, 2e6} {
			res, err := Compute(months(total, total), vt)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, res.ForecastTotal, prev, vt)
			prev = res.ForecastTotal
		}
	}
}

func TestFineDiningMultiplier(t *testing.T) {
	h := months(35000, 35000, 0)
	res, err := Compute(h, FineDining)
	require.NoError(t, err)

	base := computeWith(h, Profiles[FineDining])
	assert.InDelta(t, base.EstFood*1.75, res.EstFood, 1e-6)
	assert.InDelta(t, res.AvgAlcohol+res.EstFood, res.ForecastTotal, 1e-6)
	assert.Equal(t, 0.35, res.AlcoholPct)
	assert.Equal(t, 0.65, res.FoodPct)
}

func TestTierFor(t *testing.T) {
	cases := []struct {
		total float64
		want  string
	}{
		{0, Tier1},
		{49999.99, Tier1},
		{50000, Tier2},
		{99999.99, Tier2},
		{100000, Tier3},
		{250000, Tier4},
		{500000, Tier5},
		{999999.99, Tier5},
		{1000000, Tier6},
		{7.5e6, Tier6},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, TierFor(c.total), "total %.2f", c.total)
	}
	assert.True(t, ValidTier(Tier4))
	assert.False(t, ValidTier("tier7"))
}

func TestAutoTier(t *testing.T) {
	hist := months(90000)
	res, err := Compute(hist, "bar")
	require.NoError(t, err)
	require.Equal(t, Tier3, res.Tier)

	st := accountstate.New()
	st.Key = "1-1"
	st.SetHistory(hist)
	tier, ok := AutoTier(st, res)
	assert.True(t, ok)
	assert.Equal(t, Tier3, tier)

	require.NoError(t, st.SetTier(Tier3))
	_, ok = AutoTier(st, res)
	assert.False(t, ok, "already stored")

	manual := accountstate.New()
	manual.Manual = true
	manual.Key = "2-2"
	_, ok = AutoTier(manual, res)
	assert.False(t, ok, "manual with no history")

	bare := accountstate.New()
	_, ok = AutoTier(bare, res)
	assert.False(t, ok, "no history and no key")

	keyed := accountstate.New()
	keyed.Key = "3-3"
	empty, err := Compute(nil, "bar")
	require.NoError(t, err)
	_, ok = AutoTier(keyed, empty)
	assert.False(t, ok, "no qualifying months")
}

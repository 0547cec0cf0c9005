package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prospector/internal/forecast"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("PROSPECTOR_CONFIG", "")
	t.Setenv("LOG_LEVEL", "")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestForecastCommandFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"month":"Jan 2024","total":8500},{"month":"Feb 2024","total":0}]`), 0o644))

	out, err := runCLI(t, "", "forecast", "--venue", "bar", path)
	require.NoError(t, err)
	var res forecast.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.InDelta(t, 10000, res.ForecastTotal, 0.01)
	assert.Equal(t, forecast.Tier1, res.Tier)
}

func TestForecastCommandStdin(t *testing.T) {
	out, err := runCLI(t, `[{"total":36000}]`, "forecast", "-")
	require.NoError(t, err)
	var res forecast.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, forecast.DefaultVenueType, res.VenueType)
	assert.InDelta(t, 120000, res.ForecastTotal, 0.01)
}

func TestForecastCommandUnknownVenue(t *testing.T) {
	_, err := runCLI(t, `[]`, "forecast", "--venue", "food_truck", "-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "known: bar")
}

func TestMigrateRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := runCLI(t, "", "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

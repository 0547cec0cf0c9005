package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"prospector/internal/model"
)

func TestWriteAccounts(t *testing.T) {
	lat, lng := 30.25, -97.75
	accounts := []model.Account{
		{
			Name:      "Joe's Tavern",
			Address:   "1 Main St",
			Lat:       &lat,
			Lng:       &lng,
			Notes:     `{"key":"1-2","gpvTier":"tier3","venueType":"bar","activeOpp":true,"notes":[{"id":2,"text":"tasting booked","created_local_date":"2024-05-02"},{"id":1,"text":"intro"}]}`,
			CreatedAt: time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC),
		},
		{Name: "Legacy Club", Notes: "KEY:9-9", CreatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteAccounts(&buf, accounts))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{SheetName}, f.GetSheetList())

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Name", rows[0][0])
	assert.Equal(t, "Joe's Tavern", rows[1][0])
	assert.Equal(t, "1-2", rows[1][4])
	assert.Equal(t, "bar", rows[1][5])
	assert.Equal(t, "tier3", rows[1][6])
	assert.Equal(t, "2", rows[1][9])
	assert.Equal(t, "2024-05-02", rows[1][10])
	assert.Equal(t, "tasting booked", rows[1][11])
	assert.Equal(t, "9-9", rows[2][4])
}

func TestRowWithoutCoordinates(t *testing.T) {
	r := Row(model.Account{Name: "x"})
	assert.Equal(t, "", r[2])
	assert.Equal(t, 0, r[9])
}

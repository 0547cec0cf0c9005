// Package export writes saved accounts to a spreadsheet.
package export

import (
	"io"

	"github.com/xuri/excelize/v2"

	"prospector/internal/accountstate"
	"prospector/internal/model"
)

const SheetName = "Accounts"

var headers = []interface{}{
	"Name", "Address", "Lat", "Lng", "Key", "Venue Type", "Tier",
	"Active Opp", "Active Account", "Notes", "Last Activity", "Last Note", "Created",
}

// Row flattens one account and its parsed state.
func Row(a model.Account) []interface{} {
	st := accountstate.Parse(a.Notes)
	var lastDate, lastText string
	if len(st.Notes) > 0 {
		lastDate = st.Notes[0].CreatedLocalDate
		lastText = st.Notes[0].Text
	}
	return []interface{}{
		a.Name, a.Address, coord(a.Lat), coord(a.Lng), st.Key, st.VenueType, st.Tier(),
		st.ActiveOpp, st.ActiveAccount, len(st.Notes), lastDate, lastText,
		a.CreatedAt.UTC().Format("2006-01-02"),
	}
}

func coord(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

// WriteAccounts streams an xlsx workbook with one row per account.
func WriteAccounts(w io.Writer, accounts []model.Account) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	index, err := f.NewSheet(SheetName)
	if err != nil {
		return err
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return err
	}
	if err := sw.SetRow("A1", headers); err != nil {
		return err
	}
	for i, a := range accounts {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := sw.SetRow(cell, Row(a)); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}

	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}
	return f.Write(w)
}

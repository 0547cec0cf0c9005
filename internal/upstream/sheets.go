package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"prospector/internal/model"
)

const DefaultSheetsBase = "https://sheets.googleapis.com/v4/spreadsheets"

var ErrSheetNotConfigured = errors.New("prospect sheet is not configured")

// Sheets reads prospect rows from a shared Google Sheet. The first row is a
// header; columns are matched by name, case-insensitively.
type Sheets struct {
	BaseURL string
	APIKey  string
	SheetID string
	Range   string
	HTTP    *http.Client
	Limiter *rate.Limiter
}

func NewSheets(apiKey, sheetID, rng string, lim *rate.Limiter) *Sheets {
	if rng == "" {
		rng = "Sheet1!A:F"
	}
	return &Sheets{BaseURL: DefaultSheetsBase, APIKey: apiKey, SheetID: sheetID, Range: rng, HTTP: defaultHTTP(nil), Limiter: lim}
}

var sheetColumns = map[string]string{
	"name":      "name",
	"account":   "name",
	"business":  "name",
	"address":   "address",
	"street":    "address",
	"city":      "city",
	"lat":       "lat",
	"latitude":  "lat",
	"lng":       "lng",
	"lon":       "lng",
	"long":      "lng",
	"longitude": "lng",
	"notes":     "notes",
	"note":      "notes",
}

// Prospects returns every data row that has a name.
func (s *Sheets) Prospects(ctx context.Context) ([]model.SheetProspect, error) {
	if s.SheetID == "" {
		return nil, ErrSheetNotConfigured
	}
	u := strings.TrimRight(s.BaseURL, "/") + "/" + url.PathEscape(s.SheetID) + "/values/" + url.PathEscape(s.Range)
	if s.APIKey != "" {
		u += "?key=" + url.QueryEscape(s.APIKey)
	}
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	var body struct {
		Values [][]string `json:"values"`
	}
	if err := getJSON(ctx, s.HTTP, s.Limiter, ServiceSheets, req, &body); err != nil {
		return nil, err
	}
	return parseSheet(body.Values), nil
}

func parseSheet(rows [][]string) []model.SheetProspect {
	if len(rows) == 0 {
		return []model.SheetProspect{}
	}
	cols := map[string]int{}
	for i, h := range rows[0] {
		if f, ok := sheetColumns[strings.ToLower(strings.TrimSpace(h))]; ok {
			if _, dup := cols[f]; !dup {
				cols[f] = i
			}
		}
	}
	cell := func(row []string, field string) string {
		i, ok := cols[field]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	coord := func(row []string, field string) *float64 {
		v, err := strconv.ParseFloat(cell(row, field), 64)
		if err != nil {
			return nil
		}
		return &v
	}
	out := make([]model.SheetProspect, 0, len(rows)-1)
	for _, row := range rows[1:] {
		name := cell(row, "name")
		if name == "" {
			continue
		}
		out = append(out, model.SheetProspect{
			Name:    name,
			Address: cell(row, "address"),
			City:    cell(row, "city"),
			Lat:     coord(row, "lat"),
			Lng:     coord(row, "lng"),
			Notes:   cell(row, "notes"),
		})
	}
	return out
}

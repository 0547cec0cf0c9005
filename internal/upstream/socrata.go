package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"prospector/internal/model"
)

const (
	DefaultSocrataBase    = "https://data.texas.gov/resource"
	DefaultSocrataDataset = "naix-2893"

	// socrataDateLayout is the floating timestamp format of obligation_end_date_yyyymmdd.
	socrataDateLayout = "2006-01-02T15:04:05.000"

	maxSearchRows  = 1000
	maxHistoryRows = 120
)

var (
	// ErrBadKey rejects a correlation key that is not "<taxpayer>-<location>".
	ErrBadKey     = errors.New("key must be <taxpayer>-<location>")
	ErrEmptyQuery = errors.New("query is required")
)

// Socrata reads the Texas mixed-beverage gross receipts dataset.
type Socrata struct {
	BaseURL  string
	Dataset  string
	AppToken string
	HTTP     *http.Client
	Limiter  *rate.Limiter
	Cache    Cache
	CacheTTL time.Duration

	now func() time.Time
}

func NewSocrata(dataset, appToken string, lim *rate.Limiter) *Socrata {
	if dataset == "" {
		dataset = DefaultSocrataDataset
	}
	return &Socrata{
		BaseURL:  DefaultSocrataBase,
		Dataset:  dataset,
		AppToken: appToken,
		HTTP:     defaultHTTP(nil),
		Limiter:  lim,
		now:      time.Now,
	}
}

// socrataRow is one dataset row or one grouped aggregate row. The API sends
// every number as a string; decimal accepts both forms.
type socrataRow struct {
	TaxpayerNumber string          `json:"taxpayer_number"`
	LocationNumber string          `json:"location_number"`
	Name           string          `json:"location_name"`
	Address        string          `json:"location_address"`
	City           string          `json:"location_city"`
	Zip            string          `json:"location_zip"`
	County         string          `json:"location_county"`
	EndDate        string          `json:"obligation_end_date_yyyymmdd"`
	Liquor         decimal.Decimal `json:"liquor_receipts"`
	Wine           decimal.Decimal `json:"wine_receipts"`
	Beer           decimal.Decimal `json:"beer_receipts"`
	Total          decimal.Decimal `json:"total_receipts"`

	SumTotal     decimal.Decimal `json:"sum_total"`
	MonthCount   decimal.Decimal `json:"month_count"`
	LastReported string          `json:"last_reported"`
}

func (r socrataRow) key() string { return r.TaxpayerNumber + "-" + r.LocationNumber }

func (r socrataRow) record() model.ReceiptRecord {
	return model.ReceiptRecord{
		Key:            r.key(),
		TaxpayerNumber: r.TaxpayerNumber,
		LocationNumber: r.LocationNumber,
		Name:           r.Name,
		Address:        r.Address,
		City:           r.City,
		Zip:            r.Zip,
		County:         r.County,
	}
}

// soqlString quotes a literal for a SoQL where clause.
func soqlString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func money(d decimal.Decimal) float64 { return d.Round(2).InexactFloat64() }

func (s *Socrata) query(ctx context.Context, params url.Values) ([]socrataRow, error) {
	u := fmt.Sprintf("%s/%s.json?%s", strings.TrimRight(s.BaseURL, "/"), s.Dataset, params.Encode())
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if s.AppToken != "" {
		req.Header.Set("X-App-Token", s.AppToken)
	}
	var rows []socrataRow
	if err := getJSON(ctx, s.HTTP, s.Limiter, ServiceSocrata, req, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Search finds locations whose name matches q, optionally within a city, and
// groups their monthly rows into one record per location.
func (s *Socrata) Search(ctx context.Context, q, city string, limit int) ([]model.ReceiptRecord, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	where := fmt.Sprintf("upper(location_name) like %s", soqlString("%"+strings.ToUpper(q)+"%"))
	if c := strings.TrimSpace(city); c != "" {
		where += " AND upper(location_city) = " + soqlString(strings.ToUpper(c))
	}
	params := url.Values{}
	params.Set("$where", where)
	params.Set("$order", "obligation_end_date_yyyymmdd DESC")
	params.Set("$limit", strconv.Itoa(maxSearchRows))

	cacheKey := params.Encode() + "&n=" + strconv.Itoa(limit)
	return cached(ctx, s.Cache, s.CacheTTL, ServiceSocrata, cacheKey, func() ([]model.ReceiptRecord, error) {
		rows, err := s.query(ctx, params)
		if err != nil {
			return nil, err
		}
		return groupRows(rows, limit), nil
	})
}

// groupRows folds monthly rows into per-location totals, largest first.
func groupRows(rows []socrataRow, limit int) []model.ReceiptRecord {
	type acc struct {
		rec   model.ReceiptRecord
		total decimal.Decimal
	}
	byKey := map[string]*acc{}
	var order []string
	for _, r := range rows {
		if r.TaxpayerNumber == "" || r.LocationNumber == "" {
			continue
		}
		a, ok := byKey[r.key()]
		if !ok {
			a = &acc{rec: r.record()}
			byKey[r.key()] = a
			order = append(order, r.key())
		}
		a.total = a.total.Add(r.Total)
		a.rec.Months++
		if r.EndDate > a.rec.LastReported {
			a.rec.LastReported = r.EndDate
		}
	}
	out := make([]model.ReceiptRecord, 0, len(order))
	for _, k := range order {
		a := byKey[k]
		a.rec.Total = money(a.total)
		out = append(out, a.rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Total > out[j].Total })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// TopQuery filters the top-accounts ranking.
type TopQuery struct {
	City   string
	County string
	Months int
	Limit  int
}

// Top ranks locations by total receipts over the trailing months.
func (s *Socrata) Top(ctx context.Context, tq TopQuery) ([]model.ReceiptRecord, error) {
	if tq.Months <= 0 || tq.Months > 36 {
		tq.Months = 12
	}
	if tq.Limit <= 0 || tq.Limit > 200 {
		tq.Limit = 50
	}
	now := s.now().UTC()
	since := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -tq.Months, 0)
	where := []string{"obligation_end_date_yyyymmdd >= " + soqlString(since.Format(socrataDateLayout))}
	if c := strings.TrimSpace(tq.City); c != "" {
		where = append(where, "upper(location_city) = "+soqlString(strings.ToUpper(c)))
	}
	if c := strings.TrimSpace(tq.County); c != "" {
		where = append(where, "upper(location_county) = "+soqlString(strings.ToUpper(c)))
	}
	group := "taxpayer_number,location_number,location_name,location_address,location_city,location_zip,location_county"
	params := url.Values{}
	params.Set("$select", group+",sum(total_receipts) as sum_total,count(*) as month_count,max(obligation_end_date_yyyymmdd) as last_reported")
	params.Set("$where", strings.Join(where, " AND "))
	params.Set("$group", group)
	params.Set("$order", "sum_total DESC")
	params.Set("$limit", strconv.Itoa(tq.Limit))

	return cached(ctx, s.Cache, s.CacheTTL, ServiceSocrata, params.Encode(), func() ([]model.ReceiptRecord, error) {
		rows, err := s.query(ctx, params)
		if err != nil {
			return nil, err
		}
		out := make([]model.ReceiptRecord, 0, len(rows))
		for _, r := range rows {
			rec := r.record()
			rec.Total = money(r.SumTotal)
			rec.Months = int(r.MonthCount.IntPart())
			rec.LastReported = r.LastReported
			out = append(out, rec)
		}
		return out, nil
	})
}

// SplitKey parses "<taxpayer>-<location>".
func SplitKey(key string) (taxpayer, location string, err error) {
	taxpayer, location, ok := strings.Cut(strings.TrimSpace(key), "-")
	if !ok || taxpayer == "" || location == "" {
		return "", "", fmt.Errorf("%w: %q", ErrBadKey, key)
	}
	return taxpayer, location, nil
}

// History returns the monthly receipts for one location, oldest first.
func (s *Socrata) History(ctx context.Context, key string) ([]model.MonthlyReceipt, error) {
	taxpayer, location, err := SplitKey(key)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("$where", fmt.Sprintf("taxpayer_number = %s AND location_number = %s", soqlString(taxpayer), soqlString(location)))
	// newest rows under the limit, returned oldest first
	params.Set("$order", "obligation_end_date_yyyymmdd DESC")
	params.Set("$limit", strconv.Itoa(maxHistoryRows))

	return cached(ctx, s.Cache, s.CacheTTL, ServiceSocrata, params.Encode(), func() ([]model.MonthlyReceipt, error) {
		rows, err := s.query(ctx, params)
		if err != nil {
			return nil, err
		}
		out := make([]model.MonthlyReceipt, 0, len(rows))
		for _, r := range rows {
			out = append(out, model.MonthlyReceipt{
				Month:   monthLabel(r.EndDate),
				Liquor:  money(r.Liquor),
				Beer:    money(r.Beer),
				Wine:    money(r.Wine),
				Total:   money(r.Total),
				RawDate: r.EndDate,
			})
		}
		slices.Reverse(out)
		return out, nil
	})
}

// monthLabel renders "Jan 2024"; unparseable dates pass through.
func monthLabel(raw string) string {
	t, err := time.Parse(socrataDateLayout, raw)
	if err != nil {
		return raw
	}
	return t.Format("Jan 2006")
}

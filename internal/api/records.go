package api

import (
    "context"
    "errors"
    "net/http"

    "go.uber.org/zap"
    "golang.org/x/sync/errgroup"

    "prospector/internal/forecast"
    "prospector/internal/model"
    "prospector/internal/upstream"
)

var errRecordsNotConfigured = errors.New("receipts dataset is not configured")

// TopAccount is one ranked location with its forecast. Forecast is nil when
// the location's history could not be fetched.
type TopAccount struct {
    model.ReceiptRecord
    Forecast *forecast.Result `json:"forecast,omitempty"`
}

// SearchHandler handles GET /search?q=&city=&limit=
func (s *Server) SearchHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        methodNotAllowed(w)
        return
    }
    if s.Records == nil {
        s.writeError(w, r, errRecordsNotConfigured)
        return
    }
    limit, err := queryInt(r, "limit", 25)
    if err != nil {
        s.writeError(w, r, err)
        return
    }
    q := r.URL.Query()
    items, err := s.Records.Search(r.Context(), q.Get("q"), q.Get("city"), limit)
    if err != nil {
        s.writeError(w, r, err)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// TopAccountsHandler handles GET /top-accounts?city=&county=&months=&limit=&venueType=
func (s *Server) TopAccountsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        methodNotAllowed(w)
        return
    }
    if s.Records == nil {
        s.writeError(w, r, errRecordsNotConfigured)
        return
    }
    q := r.URL.Query()
    venueType := q.Get("venueType")
    if _, _, err := forecast.Profile(venueType); err != nil {
        s.writeError(w, r, err)
        return
    }
    months, err := queryInt(r, "months", 12)
    if err != nil {
        s.writeError(w, r, err)
        return
    }
    limit, err := queryInt(r, "limit", 50)
    if err != nil {
        s.writeError(w, r, err)
        return
    }
    recs, err := s.Records.Top(r.Context(), upstream.TopQuery{City: q.Get("city"), County: q.Get("county"), Months: months, Limit: limit})
    if err != nil {
        s.writeError(w, r, err)
        return
    }
    items, err := s.forecastRecords(r.Context(), recs, venueType)
    if err != nil {
        s.writeError(w, r, err)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// forecastRecords fetches each record's history concurrently and attaches a
// forecast. A failed lookup leaves that record without one; only cancellation
// fails the whole batch.
func (s *Server) forecastRecords(ctx context.Context, recs []model.ReceiptRecord, venueType string) ([]TopAccount, error) {
    out := make([]TopAccount, len(recs))
    g, gctx := errgroup.WithContext(ctx)
    if s.FanOut > 0 {
        g.SetLimit(s.FanOut)
    }
    for i, rec := range recs {
        out[i] = TopAccount{ReceiptRecord: rec}
        g.Go(func() error {
            history, err := s.Records.History(gctx, rec.Key)
            if err != nil {
                if isCanceled(err) {
                    return err
                }
                s.Log.Warn("history lookup failed", zap.String("key", rec.Key), zap.Error(err))
                return nil
            }
            res, err := forecast.Compute(history, venueType)
            if err != nil {
                return err
            }
            out[i].Forecast = &res
            return nil
        })
    }
    if err := g.Wait(); err != nil {
        return nil, err
    }
    return out, nil
}

// HistoryHandler handles GET /history?key=
func (s *Server) HistoryHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        methodNotAllowed(w)
        return
    }
    if s.Records == nil {
        s.writeError(w, r, errRecordsNotConfigured)
        return
    }
    history, err := s.Records.History(r.Context(), r.URL.Query().Get("key"))
    if err != nil {
        s.writeError(w, r, err)
        return
    }
    writeJSON(w, http.StatusOK, history)
}

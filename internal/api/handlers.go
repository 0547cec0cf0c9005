package api

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "strconv"
    "strings"
    "time"

    "go.uber.org/zap"

    "prospector/internal/accountstate"
    "prospector/internal/buildinfo"
    "prospector/internal/export"
    "prospector/internal/forecast"
    "prospector/internal/model"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// AccountsHandler handles GET/POST/PATCH/DELETE /accounts
func (s *Server) AccountsHandler(w http.ResponseWriter, r *http.Request) {
    user, ok := s.userID(w, r)
    if !ok {
        return
    }
    ctx := r.Context()
    switch r.Method {
    case http.MethodGet:
        items, err := s.Store.ListAccounts(ctx, user)
        if err != nil {
            s.writeError(w, r, err)
            return
        }
        writeJSON(w, http.StatusOK, items)
    case http.MethodPost:
        var in model.AccountIn
        if !decodeBody(w, r, &in) {
            return
        }
        acct, err := s.Store.CreateAccount(ctx, user, in)
        if err != nil {
            s.writeError(w, r, err)
            return
        }
        s.publish(user, EventAccountCreated, map[string]any{"accountId": acct.ID, "name": acct.Name})
        writeJSON(w, http.StatusCreated, acct)
    case http.MethodPatch:
        id := r.URL.Query().Get("id")
        if id == "" {
            writeProblem(w, http.StatusBadRequest, "Missing id", "id query parameter is required", r.URL.Path)
            return
        }
        var patch model.AccountPatch
        if !decodeBody(w, r, &patch) {
            return
        }
        if patch.Empty() {
            writeProblem(w, http.StatusBadRequest, "Invalid request", "at least one of lat, lng, notes is required", r.URL.Path)
            return
        }
        acct, err := s.Store.PatchAccount(ctx, user, id, patch)
        if err != nil {
            s.writeError(w, r, err)
            return
        }
        s.publish(user, EventAccountUpdated, map[string]any{"accountId": acct.ID})
        writeJSON(w, http.StatusOK, acct)
    case http.MethodDelete:
        id := r.URL.Query().Get("id")
        if id == "" {
            writeProblem(w, http.StatusBadRequest, "Missing id", "id query parameter is required", r.URL.Path)
            return
        }
        if err := s.Store.DeleteAccount(ctx, user, id); err != nil {
            s.writeError(w, r, err)
            return
        }
        s.publish(user, EventAccountDeleted, map[string]any{"accountId": id})
        w.WriteHeader(http.StatusNoContent)
    default:
        methodNotAllowed(w)
    }
}

// ExportHandler handles GET /accounts/export
func (s *Server) ExportHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        methodNotAllowed(w)
        return
    }
    user, ok := s.userID(w, r)
    if !ok {
        return
    }
    items, err := s.Store.ListAccounts(r.Context(), user)
    if err != nil {
        s.writeError(w, r, err)
        return
    }
    var buf bytes.Buffer
    if err := export.WriteAccounts(&buf, items); err != nil {
        s.writeError(w, r, fmt.Errorf("export accounts: %w", err))
        return
    }
    name := "accounts-" + s.now().In(s.Loc).Format("2006-01-02") + ".xlsx"
    w.Header().Set("Content-Type", xlsxContentType)
    w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
    w.WriteHeader(http.StatusOK)
    _, _ = buf.WriteTo(w)
}

// AccountStateHandler handles PATCH /account-state?id=
func (s *Server) AccountStateHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPatch {
        methodNotAllowed(w)
        return
    }
    user, ok := s.userID(w, r)
    if !ok {
        return
    }
    id := r.URL.Query().Get("id")
    if id == "" {
        writeProblem(w, http.StatusBadRequest, "Missing id", "id query parameter is required", r.URL.Path)
        return
    }
    var body map[string]json.RawMessage
    if !decodeBody(w, r, &body) {
        return
    }
    field, mutate, err := parseStatePatch(body)
    if err != nil {
        s.writeError(w, r, err)
        return
    }
    st, err := s.Merger.Update(r.Context(), user, id, mutate)
    if err != nil {
        s.writeError(w, r, err)
        return
    }
    s.publish(user, EventStateChanged, map[string]any{"accountId": id, "field": field})
    writeJSON(w, http.StatusOK, st)
}

// NotesHandler handles GET/POST/DELETE /notes?accountId=
func (s *Server) NotesHandler(w http.ResponseWriter, r *http.Request) {
    user, ok := s.userID(w, r)
    if !ok {
        return
    }
    q := r.URL.Query()
    accountID := q.Get("accountId")
    if accountID == "" {
        writeProblem(w, http.StatusBadRequest, "Missing accountId", "accountId query parameter is required", r.URL.Path)
        return
    }
    ctx := r.Context()
    switch r.Method {
    case http.MethodGet:
        acct, err := s.Store.GetAccount(ctx, user, accountID)
        if err != nil {
            s.writeError(w, r, err)
            return
        }
        writeJSON(w, http.StatusOK, accountstate.Parse(acct.Notes).Notes)
    case http.MethodPost:
        var req struct {
            Text         string `json:"text"`
            ActivityType string `json:"activity_type"`
        }
        if !decodeBody(w, r, &req) {
            return
        }
        var note accountstate.ActivityNote
        _, err := s.Merger.Update(ctx, user, accountID, func(st *accountstate.State) error {
            n, err := st.AddNote(s.NoteIDs, req.Text, req.ActivityType, s.now(), s.Loc)
            note = n
            return err
        })
        if err != nil {
            s.writeError(w, r, err)
            return
        }
        s.publish(user, EventNoteAdded, map[string]any{"accountId": accountID, "noteId": note.ID.String()})
        writeJSON(w, http.StatusCreated, note)
    case http.MethodDelete:
        noteID := q.Get("noteId")
        if noteID == "" {
            writeProblem(w, http.StatusBadRequest, "Missing noteId", "noteId query parameter is required", r.URL.Path)
            return
        }
        _, err := s.Merger.Update(ctx, user, accountID, func(st *accountstate.State) error {
            return st.DeleteNote(noteID)
        })
        if err != nil {
            s.writeError(w, r, err)
            return
        }
        s.publish(user, EventNoteDeleted, map[string]any{"accountId": accountID, "noteId": noteID})
        w.WriteHeader(http.StatusNoContent)
    default:
        methodNotAllowed(w)
    }
}

// forecastResponse is the GET /forecast body.
type forecastResponse struct {
    Forecast    forecast.Result        `json:"forecast"`
    History     []model.MonthlyReceipt `json:"history"`
    Tier        string                 `json:"tier"`
    TierUpdated bool                   `json:"tierUpdated"`
}

// ForecastHandler handles GET /forecast?accountId= and POST /forecast
func (s *Server) ForecastHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var req struct {
            History   []model.MonthlyReceipt `json:"history"`
            VenueType string                 `json:"venueType"`
        }
        if !decodeBody(w, r, &req) {
            return
        }
        res, err := forecast.Compute(req.History, req.VenueType)
        if err != nil {
            s.writeError(w, r, err)
            return
        }
        writeJSON(w, http.StatusOK, res)
    case http.MethodGet:
        user, ok := s.userID(w, r)
        if !ok {
            return
        }
        q := r.URL.Query()
        accountID := q.Get("accountId")
        if accountID == "" {
            writeProblem(w, http.StatusBadRequest, "Missing accountId", "accountId query parameter is required", r.URL.Path)
            return
        }
        out, err := s.accountForecast(r.Context(), user, accountID, q.Get("venueType"))
        if err != nil {
            s.writeError(w, r, err)
            return
        }
        writeJSON(w, http.StatusOK, out)
    default:
        methodNotAllowed(w)
    }
}

// accountForecast forecasts a saved account and lets its stored tier follow
// the result. History missing from the blob is fetched by key and cached.
func (s *Server) accountForecast(ctx context.Context, user, accountID, venueType string) (forecastResponse, error) {
    acct, err := s.Store.GetAccount(ctx, user, accountID)
    if err != nil {
        return forecastResponse{}, err
    }
    st := accountstate.Parse(acct.Notes)
    if venueType == "" {
        venueType = st.VenueType
    }
    if _, _, err := forecast.Profile(venueType); err != nil {
        return forecastResponse{}, err
    }

    history := st.History
    if len(history) == 0 && st.Key != "" && s.Records != nil {
        fetched, err := s.Records.History(ctx, st.Key)
        if err != nil {
            return forecastResponse{}, err
        }
        if len(fetched) > 0 {
            st, err = s.Merger.Update(ctx, user, accountID, func(st *accountstate.State) error {
                if len(st.History) > 0 {
                    return accountstate.ErrNoChange
                }
                st.SetHistory(fetched)
                return nil
            })
            if err != nil {
                return forecastResponse{}, err
            }
            history = st.History
        }
    }

    res, err := forecast.Compute(history, venueType)
    if err != nil {
        return forecastResponse{}, err
    }
    out := forecastResponse{Forecast: res, History: history, Tier: st.Tier()}
    if out.History == nil {
        out.History = []model.MonthlyReceipt{}
    }
    if _, changed := forecast.AutoTier(st, res); !changed {
        return out, nil
    }

    updated := false
    st, err = s.Merger.Update(ctx, user, accountID, func(st *accountstate.State) error {
        tier, ok := forecast.AutoTier(st, res)
        if !ok {
            return accountstate.ErrNoChange
        }
        updated = true
        return st.SetTier(tier)
    })
    if err != nil {
        return forecastResponse{}, err
    }
    out.Tier = st.Tier()
    out.TierUpdated = updated
    if updated {
        s.Log.Info("account tier updated", zap.String("account_id", accountID), zap.String("tier", out.Tier))
        s.publish(user, EventTierChanged, map[string]any{"accountId": accountID, "tier": out.Tier})
    }
    return out, nil
}

// HealthHandler handles GET /healthz
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "build": buildinfo.Info()})
}

// ReadyHandler handles GET /readyz
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
    defer cancel()
    if err := s.Store.Ping(ctx); err != nil {
        writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// queryInt reads an integer query parameter, returning def when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
    v := strings.TrimSpace(r.URL.Query().Get(name))
    if v == "" {
        return def, nil
    }
    n, err := strconv.Atoi(v)
    if err != nil {
        return 0, fmt.Errorf("%w: %s must be an integer", errBadRequest, name)
    }
    return n, nil
}

func isCanceled(err error) bool {
    return errors.Is(err, context.Canceled)
}

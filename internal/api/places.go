package api

import (
    "net/http"

    "prospector/internal/accountstate"
    "prospector/internal/model"
    "prospector/internal/upstream"
)

// businessHours is the slice of place details cached on an account.
type businessHours struct {
    PlaceID     string   `json:"place_id"`
    WeekdayText []string `json:"weekday_text"`
    OpenNow     *bool    `json:"open_now,omitempty"`
    Phone       string   `json:"phone,omitempty"`
    Website     string   `json:"website,omitempty"`
    FetchedAt   string   `json:"fetched_at"`
}

// GeocodeHandler handles POST /geocode
func (s *Server) GeocodeHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        methodNotAllowed(w)
        return
    }
    if s.Places == nil {
        s.writeError(w, r, errMapsNotConfigured)
        return
    }
    var req struct {
        Address string `json:"address"`
    }
    if !decodeBody(w, r, &req) {
        return
    }
    res, err := s.Places.Geocode(r.Context(), req.Address)
    if err != nil {
        s.writeError(w, r, err)
        return
    }
    writeJSON(w, http.StatusOK, res)
}

// PlacesHandler handles GET /places?query=
func (s *Server) PlacesHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        methodNotAllowed(w)
        return
    }
    if s.Places == nil {
        s.writeError(w, r, errMapsNotConfigured)
        return
    }
    items, err := s.Places.SearchPlaces(r.Context(), r.URL.Query().Get("query"))
    if err != nil {
        s.writeError(w, r, err)
        return
    }
    if items == nil {
        items = []model.Place{}
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// PlaceDetailsHandler handles GET /place-details?placeId=&accountId=
func (s *Server) PlaceDetailsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        methodNotAllowed(w)
        return
    }
    user, ok := s.userID(w, r)
    if !ok {
        return
    }
    if s.Places == nil {
        s.writeError(w, r, errMapsNotConfigured)
        return
    }
    q := r.URL.Query()
    details, err := s.Places.PlaceDetails(r.Context(), q.Get("placeId"))
    if err != nil {
        s.writeError(w, r, err)
        return
    }
    if accountID := q.Get("accountId"); accountID != "" {
        hours := businessHours{
            PlaceID:     details.PlaceID,
            WeekdayText: details.WeekdayText,
            OpenNow:     details.OpenNow,
            Phone:       details.Phone,
            Website:     details.Website,
            FetchedAt:   s.now().UTC().Format("2006-01-02T15:04:05Z07:00"),
        }
        if _, err := s.Merger.Update(r.Context(), user, accountID, func(st *accountstate.State) error {
            return st.SetBusinessHours(hours)
        }); err != nil {
            s.writeError(w, r, err)
            return
        }
        s.publish(user, EventStateChanged, map[string]any{"accountId": accountID, "field": "businessHours"})
    }
    writeJSON(w, http.StatusOK, details)
}

// IntelHandler handles POST /intel
func (s *Server) IntelHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        methodNotAllowed(w)
        return
    }
    user, ok := s.userID(w, r)
    if !ok {
        return
    }
    var req struct {
        Name      string `json:"name"`
        Address   string `json:"address"`
        AccountID string `json:"accountId"`
    }
    if !decodeBody(w, r, &req) {
        return
    }
    if s.Intel == nil {
        s.writeError(w, r, upstream.ErrIntelNotConfigured)
        return
    }
    text, err := s.Intel.Summarize(r.Context(), req.Name, req.Address)
    if err != nil {
        s.writeError(w, r, err)
        return
    }
    if req.AccountID != "" {
        if _, err := s.Merger.Update(r.Context(), user, req.AccountID, func(st *accountstate.State) error {
            return st.SetAIResponse(text)
        }); err != nil {
            s.writeError(w, r, err)
            return
        }
        s.publish(user, EventStateChanged, map[string]any{"accountId": req.AccountID, "field": "aiResponse"})
    }
    writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

// SheetAccountsHandler handles GET /sheet-accounts
func (s *Server) SheetAccountsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        methodNotAllowed(w)
        return
    }
    if s.Sheets == nil {
        s.writeError(w, r, upstream.ErrSheetNotConfigured)
        return
    }
    items, err := s.Sheets.Prospects(r.Context())
    if err != nil {
        s.writeError(w, r, err)
        return
    }
    if items == nil {
        items = []model.SheetProspect{}
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

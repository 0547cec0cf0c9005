package api

import (
    "net/http"

    "prospector/internal/model"
)

// RouteHandler handles POST /route
func (s *Server) RouteHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        methodNotAllowed(w)
        return
    }
    if _, ok := s.userID(w, r); !ok {
        return
    }
    var req model.RouteRequest
    if !decodeBody(w, r, &req) {
        return
    }
    res, err := s.Planner.Plan(r.Context(), req)
    if err != nil {
        s.writeError(w, r, err)
        return
    }
    writeJSON(w, http.StatusOK, res)
}

// SavedRoutesHandler handles GET/POST/DELETE /saved-routes
func (s *Server) SavedRoutesHandler(w http.ResponseWriter, r *http.Request) {
    user, ok := s.userID(w, r)
    if !ok {
        return
    }
    ctx := r.Context()
    switch r.Method {
    case http.MethodGet:
        items, err := s.Store.ListSavedRoutes(ctx, user)
        if err != nil {
            s.writeError(w, r, err)
            return
        }
        writeJSON(w, http.StatusOK, items)
    case http.MethodPost:
        var in model.SavedRouteIn
        if !decodeBody(w, r, &in) {
            return
        }
        rt, err := s.Store.CreateSavedRoute(ctx, user, in)
        if err != nil {
            s.writeError(w, r, err)
            return
        }
        writeJSON(w, http.StatusCreated, rt)
    case http.MethodDelete:
        id := r.URL.Query().Get("id")
        if id == "" {
            writeProblem(w, http.StatusBadRequest, "Missing id", "id query parameter is required", r.URL.Path)
            return
        }
        if err := s.Store.DeleteSavedRoute(ctx, user, id); err != nil {
            s.writeError(w, r, err)
            return
        }
        w.WriteHeader(http.StatusNoContent)
    default:
        methodNotAllowed(w)
    }
}

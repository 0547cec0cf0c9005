// Package api implements the HTTP handlers for the prospecting service.
package api

import (
    "net/http"
)

// userID resolves the caller, writing a 401 when the request carries no valid identity.
func (s *Server) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
    u, err := s.Auth.UserID(r)
    if err != nil {
        s.writeError(w, r, err)
        return "", false
    }
    return u, true
}

func methodNotAllowed(w http.ResponseWriter) {
    w.WriteHeader(http.StatusMethodNotAllowed)
}

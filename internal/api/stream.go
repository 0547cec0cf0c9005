package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

const (
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
)

func writeSSE(w http.ResponseWriter, event string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
	return err
}

// EventsHandler handles GET /events, a server-sent event stream of the
// caller's account changes.
func (s *Server) EventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	user, ok := s.userID(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.Broker.Subscribe(user)
	defer s.Broker.Unsubscribe(user, ch)

	heartbeat := func() error {
		return writeSSE(w, "heartbeat", map[string]string{"ts": s.now().UTC().Format(time.RFC3339)})
	}
	if err := heartbeat(); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(s.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := writeSSE(w, evt.Type, evt.Data); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if err := heartbeat(); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// WSHandler handles GET /ws, the same event stream over a WebSocket. Each
// event is one JSON text frame.
func (s *Server) WSHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userID(w, r)
	if !ok {
		return
	}
	// Subscribe before the handshake completes so nothing published after
	// the client connects is missed.
	ch := s.Broker.Subscribe(user)
	defer s.Broker.Unsubscribe(user, ch)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wsReadTimeout)) })

	// Client frames are ignored; reading surfaces close and pong frames.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(s.Heartbeat)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}

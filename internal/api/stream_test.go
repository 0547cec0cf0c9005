package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readEvent returns the next SSE event name and data line.
func readEvent(t *testing.T, br *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := br.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && name != "":
			return name, data
		}
	}
}

func TestEventsStream(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("X-User-Id", "rep-1")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	br := bufio.NewReader(resp.Body)
	name, _ := readEvent(t, br)
	require.Equal(t, "heartbeat", name)

	post, err := http.NewRequest(http.MethodPost, srv.URL+"/accounts", strings.NewReader(`{"name":"Joe's"}`))
	require.NoError(t, err)
	post.Header.Set("X-User-Id", "rep-1")
	pr, err := srv.Client().Do(post)
	require.NoError(t, err)
	pr.Body.Close()
	require.Equal(t, http.StatusCreated, pr.StatusCode)

	name, data := readEvent(t, br)
	assert.Equal(t, EventAccountCreated, name)
	assert.Contains(t, data, `"name":"Joe's"`)
}

func TestWebSocketStream(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	hdr := http.Header{}
	hdr.Set("X-User-Id", "rep-1")
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", hdr)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	s.Broker.Publish("rep-1", Event{Type: EventTierChanged, Data: map[string]any{"tier": "tier2"}})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var evt Event
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, EventTierChanged, evt.Type)
	assert.Equal(t, "tier2", evt.Data["tier"])
}

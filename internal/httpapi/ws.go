package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"github.com/you/slack-mirror/internal/core"
)

// wsEvent is the frame sent to WebSocket viewers; Type is always
// "msg", matching the SSE event name.
type wsEvent struct {
	Type string       `json:"type"`
	Data core.Message `json:"data"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, s.acceptOptions())
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")

	clientCh, ok := s.subscribe()
	if !ok {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer s.unsubscribe(clientCh)

	s.metrics.IncWSClients(1)
	defer s.metrics.IncWSClients(-1)

	// Viewers never send anything meaningful; discard reads and use
	// the returned context to notice disconnects.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case msg, ok := <-clientCh:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			data, err := json.Marshal(wsEvent{Type: "msg", Data: msg})
			if err != nil {
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
			s.metrics.IncMessagesSent("ws")
		}
	}
}

func (s *Server) acceptOptions() *websocket.AcceptOptions {
	if s.cors == nil {
		return nil
	}
	if s.cors.allowAll {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	patterns := make([]string, 0, len(s.cors.origins))
	for origin := range s.cors.origins {
		host := strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
		if host != "" {
			patterns = append(patterns, host)
		}
	}
	return &websocket.AcceptOptions{OriginPatterns: patterns}
}

// devfeed serves the viewer API without Slack: POST /emit feeds
// synthetic messages through the store and live stream, so a viewer UI
// can be developed against /log, /stream and /ws locally.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/you/slack-mirror/internal/core"
	"github.com/you/slack-mirror/internal/httpapi"
	"github.com/you/slack-mirror/internal/store"
)

type emitReq struct {
	User      string `json:"user"`
	Text      string `json:"text"`
	Ts        string `json:"ts,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

func main() {
	var (
		addr     string
		capacity int
	)

	flag.StringVar(&addr, "addr", ":8080", "HTTP listen address")
	flag.IntVar(&capacity, "capacity", 10, "Number of messages to retain")
	flag.Parse()

	ring := store.NewRing(capacity)
	api := httpapi.New(ring, httpapi.Options{
		Addr:         addr,
		Channel:      "devfeed",
		StoreBackend: "memory",
		Capacity:     capacity,
		CORSOrigins:  []string{"*"},
	})

	api.Mux().HandleFunc("POST /emit", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req emitReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.User) == "" || strings.TrimSpace(req.Text) == "" {
			http.Error(w, "user and text required", http.StatusBadRequest)
			return
		}
		if req.Ts == "" {
			now := time.Now()
			req.Ts = fmt.Sprintf("%d.%06d", now.Unix(), now.Nanosecond()/1000)
		}

		msg := core.Message{
			User:      req.User,
			AvatarURL: req.AvatarURL,
			Text:      req.Text,
			Ts:        req.Ts,
		}
		if err := ring.Append(msg); err != nil {
			http.Error(w, "append failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
		api.Broadcast(msg)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "ts": msg.Ts})
	})

	api.Mux().HandleFunc("GET /count", func(w http.ResponseWriter, _ *http.Request) {
		snapshot, err := ring.Snapshot()
		if err != nil {
			http.Error(w, "snapshot failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"count": len(snapshot)})
	})

	log.Printf("devfeed listening on %s (capacity %d)", addr, capacity)
	if err := api.Start(); err != nil {
		log.Fatal(err)
	}
}

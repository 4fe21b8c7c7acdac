// Package slackevents receives Slack Events API deliveries, verifies
// their signatures and hands validated message events to the ingest
// pipeline.
package slackevents

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/you/slack-mirror/internal/core"
)

const (
	// Slack signs requests with version v0 of their scheme.
	signatureVersion = "v0"
	maxBodyBytes     = 1 << 20
	maxTimestampSkew = 5 * time.Minute
)

// EventHandler consumes validated raw events.
type EventHandler interface {
	HandleEvent(ctx context.Context, event core.RawEvent) error
}

type Handler struct {
	signingSecret string
	events        EventHandler
	logger        *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

func New(signingSecret string, events EventHandler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		signingSecret: signingSecret,
		events:        events,
		logger:        logger,
		now:           time.Now,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/slack/events", h.handleEvents)
}

type envelope struct {
	Type      string        `json:"type"`
	Challenge string        `json:"challenge"`
	Event     core.RawEvent `json:"event"`
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	ts := r.Header.Get("X-Slack-Request-Timestamp")
	sig := r.Header.Get("X-Slack-Signature")
	if !h.verify(ts, body, sig) {
		h.logger.Warn("slackevents: rejected delivery with bad signature")
		http.Error(w, "bad signature", http.StatusUnauthorized)
		return
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	switch env.Type {
	case "url_verification":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(env.Challenge))
		return
	case "event_callback":
		// Edited/deleted messages arrive as subtyped events; the
		// mirror never rewrites emitted history, so they are skipped.
		if env.Event.Type == "message" && env.Event.Subtype == "" {
			event := env.Event
			// Ack within Slack's delivery deadline; the pipeline may
			// block on remote lookups.
			go func() {
				_ = h.events.HandleEvent(context.Background(), event)
			}()
		} else {
			h.logger.Debug("slackevents: skipping event",
				"type", env.Event.Type, "subtype", env.Event.Subtype)
		}
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) verify(ts string, body []byte, signature string) bool {
	if h.signingSecret == "" || ts == "" || signature == "" {
		return false
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	skew := h.now().Sub(time.Unix(unix, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > maxTimestampSkew {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.signingSecret))
	mac.Write([]byte(signatureVersion + ":" + ts + ":"))
	mac.Write(body)
	expected := signatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

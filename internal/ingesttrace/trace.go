package ingesttrace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
)

// Stage represents a pipeline stage used for tracking event processing.
type Stage string

const (
	StageSeenFromSource  Stage = "seen_from_source"
	StageChannelResolved Stage = "channel_resolved"
	StageRenderedOK      Stage = "rendered_ok"
	StageCommitted       Stage = "committed"

	StageDroppedPrefix = "dropped_"
)

// StageDropped creates a Stage for a dropped event with the given reason.
func StageDropped(reason string) Stage {
	return Stage(fmt.Sprintf("%s%s", StageDroppedPrefix, reason))
}

// EventTrace captures trace metadata for an event throughout the
// ingest pipeline.
type EventTrace struct {
	Channel string
	User    string
	Snippet string
	TraceID string

	mu       sync.Mutex
	counters map[Stage]int64
}

// NewTraceFromEvent constructs a trace from event metadata and seeds
// the seen_from_source counter.
func NewTraceFromEvent(channel, user, snippet string) *EventTrace {
	trace := &EventTrace{
		Channel: channel,
		User:    user,
		Snippet: snippet,
		TraceID: computeTraceID(channel, user, snippet),
		counters: map[Stage]int64{
			StageSeenFromSource: 1,
		},
	}
	return trace
}

// IncCounter increments the counter for the provided stage and returns
// the updated value.
func (t *EventTrace) IncCounter(stage Stage) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counters[stage]++
	return t.counters[stage]
}

// LogTrace logs the trace metadata and counters using structured logging.
func (t *EventTrace) LogTrace(logger *slog.Logger, msg string) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Debug(msg,
		"trace_id", t.TraceID,
		"channel", t.Channel,
		"user", t.User,
		"snippet", t.Snippet,
		"counters", t.snapshotCounters(),
	)
}

func (t *EventTrace) snapshotCounters() map[Stage]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	copy := make(map[Stage]int64, len(t.counters))
	for stage, count := range t.counters {
		copy[stage] = count
	}
	return copy
}

func computeTraceID(channel, user, snippet string) string {
	digest := sha256.Sum256([]byte(channel + "\x1f" + user + "\x1f" + snippet))
	return hex.EncodeToString(digest[:])
}

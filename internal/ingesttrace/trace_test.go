package ingesttrace

import "testing"

func TestNewTraceSeedsSeenCounter(t *testing.T) {
	trace := NewTraceFromEvent("general", "alice", "hello")
	if trace.TraceID == "" {
		t.Fatal("expected trace id")
	}
	if got := trace.IncCounter(StageSeenFromSource); got != 2 {
		t.Fatalf("expected seeded counter to reach 2, got %d", got)
	}
}

func TestStageDropped(t *testing.T) {
	if got := StageDropped("other_channel"); got != "dropped_other_channel" {
		t.Fatalf("unexpected stage: %q", got)
	}
}

func TestTraceIDStable(t *testing.T) {
	a := NewTraceFromEvent("general", "alice", "hello")
	b := NewTraceFromEvent("general", "alice", "hello")
	if a.TraceID != b.TraceID {
		t.Fatal("trace id must be deterministic for identical input")
	}
	c := NewTraceFromEvent("general", "alice", "different")
	if a.TraceID == c.TraceID {
		t.Fatal("trace id must differ for different input")
	}
}

package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/you/slack-mirror/internal/core"
	"github.com/you/slack-mirror/internal/store"
)

func newTestServer(t *testing.T, st Store, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(st, opts)
	ts := httptest.NewServer(srv.Mux())
	t.Cleanup(ts.Close)
	return srv, ts
}

func TestHandleLogReturnsSnapshotInOrder(t *testing.T) {
	ring := store.NewRing(10)
	_ = ring.Append(core.Message{User: "alice", Text: "one", Ts: "1"})
	_ = ring.Append(core.Message{User: "bob", Text: "two", Ts: "2"})

	_, ts := newTestServer(t, ring, Options{})

	resp, err := http.Get(ts.URL + "/log")
	if err != nil {
		t.Fatalf("get /log: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	var messages []core.Message
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(messages) != 2 || messages[0].User != "alice" || messages[1].User != "bob" {
		t.Fatalf("unexpected payload: %v", messages)
	}
}

func TestHandleHealthz(t *testing.T) {
	_, ts := newTestServer(t, store.NewRing(1), Options{})

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}

func TestStreamDeliversBroadcast(t *testing.T) {
	srv, ts := newTestServer(t, store.NewRing(1), Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get /stream: %v", err)
	}
	defer resp.Body.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				srv.Broadcast(core.Message{User: "alice", Text: "live", Ts: "9"})
			}
		}
	}()

	scanner := bufio.NewScanner(resp.Body)
	var sawEvent bool
	for scanner.Scan() {
		line := scanner.Text()
		if line == "event: msg" {
			sawEvent = true
		}
		if sawEvent && strings.HasPrefix(line, "data: ") {
			var msg core.Message
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &msg); err != nil {
				t.Fatalf("bad event payload: %v", err)
			}
			if msg.User != "alice" || msg.Text != "live" {
				t.Fatalf("unexpected message: %+v", msg)
			}
			cancel()
			<-done
			return
		}
	}
	t.Fatal("never received a msg event")
}

func TestHandleInfoReportsMirrorIdentity(t *testing.T) {
	_, ts := newTestServer(t, store.NewRing(1), Options{
		Channel:      "general",
		StoreBackend: "sqlite",
		Capacity:     25,
		Build:        BuildInfo{Version: "1.2.3", Revision: "abc123"},
	})

	resp, err := http.Get(ts.URL + "/info")
	if err != nil {
		t.Fatalf("get /info: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Version string `json:"version"`
		Mirror  struct {
			Channel  string `json:"channel"`
			Store    string `json:"store"`
			Capacity int    `json:"capacity"`
		} `json:"mirror"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Version != "1.2.3" {
		t.Fatalf("unexpected version %q", body.Version)
	}
	if body.Mirror.Channel != "general" || body.Mirror.Store != "sqlite" || body.Mirror.Capacity != 25 {
		t.Fatalf("mirror identity missing from /info: %+v", body.Mirror)
	}
}

func TestWSRequestsAreCounted(t *testing.T) {
	srv, ts := newTestServer(t, store.NewRing(1), Options{EnableMetrics: true})

	// A plain GET fails the upgrade, but must still flow through the
	// middleware chain and land in the request counters.
	resp, err := http.Get(ts.URL + "/ws")
	if err != nil {
		t.Fatalf("get /ws: %v", err)
	}
	resp.Body.Close()

	if got := testutil.CollectAndCount(srv.metrics.requestsTotal); got == 0 {
		t.Fatal("expected /ws request to be counted")
	}
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	_, ts := newTestServer(t, store.NewRing(1), Options{
		CORSOrigins: []string{"https://viewer.example"},
	})

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/log", nil)
	req.Header.Set("Origin", "https://evil.example")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for unknown origin, got %d", resp.StatusCode)
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	_, ts := newTestServer(t, store.NewRing(1), Options{
		CORSOrigins: []string{"https://viewer.example"},
	})

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/log", nil)
	req.Header.Set("Origin", "https://viewer.example")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://viewer.example" {
		t.Fatalf("missing allow-origin header, got %q", got)
	}
}

func TestRateLimitRejectsBursts(t *testing.T) {
	_, ts := newTestServer(t, store.NewRing(1), Options{
		RateLimitRPS:   1,
		RateLimitBurst: 2,
	})

	var limited bool
	for i := 0; i < 10; i++ {
		resp, err := http.Get(ts.URL + "/healthz")
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Fatal("expected rate limiting to kick in")
	}
}

func TestBroadcastDropsWhenViewerIsSlow(t *testing.T) {
	srv := New(store.NewRing(1), Options{})

	clientCh, ok := srv.subscribe()
	if !ok {
		t.Fatal("subscribe failed")
	}
	defer srv.unsubscribe(clientCh)

	// Fill the client buffer and keep going; Broadcast must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			srv.Broadcast(core.Message{Ts: "1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("broadcast blocked on slow viewer")
	}
}

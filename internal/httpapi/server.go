// Package httpapi serves the viewer-facing surface: history pulls,
// the live broadcast (SSE and WebSocket), and operational endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/you/slack-mirror/internal/core"
)

// Store is the history source: the current message buffer in arrival
// order.
type Store interface {
	Snapshot() ([]core.Message, error)
}

type Options struct {
	Addr            string
	Channel         string
	StoreBackend    string
	Capacity        int
	CORSOrigins     []string
	RateLimitRPS    int
	RateLimitBurst  int
	EnableMetrics   bool
	EnableAccessLog bool
	EnablePprof     bool
	Build           BuildInfo
	ConfigSnapshot  map[string]any
}

type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	store      Store
	opts       Options
	metrics    *Metrics
	limiter    *ipRateLimiter
	cors       *corsPolicy

	mu      sync.Mutex
	clients map[chan core.Message]struct{}
	closed  bool
}

func New(store Store, opts Options) *Server {
	srv := &Server{
		store:   store,
		opts:    opts,
		clients: make(map[chan core.Message]struct{}),
		limiter: newIPRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		cors:    newCORSPolicy(opts.CORSOrigins),
	}
	if opts.EnableMetrics {
		srv.metrics = newMetrics()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.wrap("/healthz", false, srv.handleHealthz))
	mux.HandleFunc("/log", srv.wrap("/log", false, srv.handleLog))
	mux.HandleFunc("/stream", srv.wrap("/stream", true, srv.handleStream))
	mux.HandleFunc("/ws", srv.wrap("/ws", true, srv.handleWS))
	mux.HandleFunc("/info", srv.wrap("/info", false, srv.handleInfo))
	mux.HandleFunc("/config", srv.wrap("/config", false, srv.handleConfig))
	mux.HandleFunc("/debug", srv.wrap("/debug", false, srv.handleDebug))
	if srv.metrics != nil {
		mux.Handle("/metrics", srv.metrics.Handler())
	}
	if opts.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv.mux = mux
	srv.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return srv
}

// Mux exposes the underlying mux so extra handlers (admin, webhook)
// can be registered before Start.
func (s *Server) Mux() *http.ServeMux {
	return s.mux
}

// MetricsRegistry returns the /metrics registry, or nil when metrics
// are disabled.
func (s *Server) MetricsRegistry() prometheus.Registerer {
	return s.metrics.Registry()
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleLog returns the full history snapshot in arrival order.
func (s *Server) handleLog(w http.ResponseWriter, _ *http.Request) {
	messages, err := s.store.Snapshot()
	if err != nil {
		http.Error(w, "snapshot error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(messages)
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(s.opts.ConfigSnapshot)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	clientCh, ok := s.subscribe()
	if !ok {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.unsubscribe(clientCh)

	s.metrics.IncSSEClients(1)
	defer s.metrics.IncSSEClients(-1)

	fmt.Fprintf(w, ":ok\n\n")
	flusher.Flush()

	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()

	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprintf(w, ":ping\n\n")
			flusher.Flush()
		case msg, ok := <-clientCh:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: msg\ndata: %s\n\n", data)
			flusher.Flush()
			s.metrics.IncMessagesSent("sse")
		}
	}
}

func (s *Server) subscribe() (chan core.Message, bool) {
	clientCh := make(chan core.Message, 256)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	s.clients[clientCh] = struct{}{}
	return clientCh, true
}

func (s *Server) unsubscribe(clientCh chan core.Message) {
	s.mu.Lock()
	delete(s.clients, clientCh)
	s.mu.Unlock()
}

// Broadcast fans msg out to every connected viewer. Delivery is
// best-effort: a viewer whose channel is full has the message dropped
// and can catch up from /log.
func (s *Server) Broadcast(msg core.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ch := range s.clients {
		select {
		case ch <- msg:
		default:
			s.metrics.IncBroadcastDrops("push")
		}
	}
}

func (s *Server) Start() error {
	log.Printf("http api listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for ch := range s.clients {
		close(ch)
	}
	s.clients = make(map[chan core.Message]struct{})
	s.mu.Unlock()
	return s.httpServer.Shutdown(ctx)
}

package httpapi

import (
	"bufio"
	"compress/gzip"
	"errors"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// responseRecorder captures status and byte counts for access logging
// and metrics.
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += int64(n)
	return n, err
}

func (r *responseRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *responseRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack lets upgrade handlers (the WebSocket route) take over the
// connection through the recorder.
func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	return hj.Hijack()
}

type gzipResponseWriter struct {
	http.ResponseWriter
	writer *gzip.Writer
}

func (g *gzipResponseWriter) Write(b []byte) (int, error) {
	return g.writer.Write(b)
}

// shouldGzip reports whether the response may be compressed. Streaming
// responses (SSE, upgrades) are never compressed; it interferes with
// proxies and flushing.
func shouldGzip(r *http.Request) bool {
	if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		return false
	}
	if r.Header.Get("Upgrade") != "" {
		return false
	}
	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		return false
	}
	return true
}

// wrap applies the standard middleware chain to a route handler:
// rate limiting, CORS, optional gzip, access logging and metrics.
// Streaming routes pass streaming=true to skip gzip.
func (s *Server) wrap(route string, streaming bool, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if handled, _ := s.cors.handlePreflight(w, r); handled {
			return
		}
		if !s.cors.applyHeaders(w, r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		if !s.limiter.Allow(remoteIP(r)) {
			s.metrics.IncRateLimited()
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		rec := &responseRecorder{ResponseWriter: w}
		start := time.Now()

		if !streaming && shouldGzip(r) {
			gz := gzip.NewWriter(w)
			rec.ResponseWriter = &gzipResponseWriter{ResponseWriter: w, writer: gz}
			w.Header().Set("Content-Encoding", "gzip")
			w.Header().Add("Vary", "Accept-Encoding")
			defer gz.Close()
		}

		handler(rec, r)

		dur := time.Since(start)
		s.metrics.ObserveRequest(route, r.Method, rec.Status(), dur)
		if s.opts.EnableAccessLog {
			log.Printf("http: %s %s %d %dB %s ip=%s",
				r.Method, route, rec.Status(), rec.bytes, dur.Round(time.Millisecond), remoteIP(r))
		}
	}
}

/***************
 * Per-IP rate limiting
 ***************/

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type ipRateLimiter struct {
	mu       sync.Mutex
	entries  map[string]*clientLimiter
	rate     rate.Limit
	burst    int
	lifetime time.Duration
}

func newIPRateLimiter(rps, burst int) *ipRateLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	return &ipRateLimiter{
		entries:  make(map[string]*clientLimiter),
		rate:     rate.Limit(rps),
		burst:    burst,
		lifetime: 5 * time.Minute,
	}
}

func (l *ipRateLimiter) Allow(ip string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[ip]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.entries[ip] = entry
	}
	entry.lastSeen = now
	allowed := entry.limiter.Allow()

	if len(l.entries) > 1024 {
		l.cleanup(now)
	}
	return allowed
}

func (l *ipRateLimiter) cleanup(now time.Time) {
	expireBefore := now.Add(-l.lifetime)
	for ip, entry := range l.entries {
		if entry.lastSeen.Before(expireBefore) {
			delete(l.entries, ip)
		}
	}
}

func remoteIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if p := strings.TrimSpace(part); p != "" {
				return p
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

/***************
 * CORS policy
 ***************/

type corsPolicy struct {
	allowAll bool
	origins  map[string]struct{}
}

func newCORSPolicy(origins []string) *corsPolicy {
	if len(origins) == 0 {
		return nil
	}
	policy := &corsPolicy{origins: make(map[string]struct{})}
	for _, origin := range origins {
		o := strings.TrimSpace(origin)
		if o == "" {
			continue
		}
		if o == "*" {
			policy.allowAll = true
			policy.origins = nil
			break
		}
		policy.origins[o] = struct{}{}
	}
	return policy
}

func (c *corsPolicy) isAllowed(origin string) bool {
	if c == nil {
		return false
	}
	if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
		return false
	}
	if c.allowAll {
		return true
	}
	_, ok := c.origins[origin]
	return ok
}

func (c *corsPolicy) handlePreflight(w http.ResponseWriter, r *http.Request) (bool, int) {
	if c == nil {
		return false, 0
	}
	if r.Method != http.MethodOptions {
		return false, 0
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false, 0
	}
	if !c.isAllowed(origin) {
		w.WriteHeader(http.StatusForbidden)
		return true, http.StatusForbidden
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET,OPTIONS")
	if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
		w.Header().Set("Access-Control-Allow-Headers", reqHeaders)
	}
	w.Header().Set("Access-Control-Max-Age", "300")
	w.Header().Add("Vary", "Origin")
	w.WriteHeader(http.StatusNoContent)
	return true, http.StatusNoContent
}

// applyHeaders adds CORS response headers for non-preflight requests.
// Returns false if the Origin is present but not allowed.
func (c *corsPolicy) applyHeaders(w http.ResponseWriter, r *http.Request) bool {
	if c == nil {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if !c.isAllowed(origin) {
		return false
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Add("Vary", "Origin")
	return true
}

package httpapi

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"
)

// BuildInfo describes the compiled binary.
type BuildInfo struct {
	Version  string
	Revision string
	BuiltAt  time.Time
}

// infoResponse pairs build metadata with the mirror's identity so a
// viewer can tell which channel and store backend it is looking at.
type infoResponse struct {
	Version  string     `json:"version"`
	Revision string     `json:"rev"`
	BuiltAt  string     `json:"built_at,omitempty"`
	Go       string     `json:"go"`
	Mirror   mirrorInfo `json:"mirror"`
}

type mirrorInfo struct {
	Channel  string `json:"channel"`
	Store    string `json:"store"`
	Capacity int    `json:"capacity"`
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	resp := infoResponse{
		Version:  s.opts.Build.Version,
		Revision: s.opts.Build.Revision,
		Go:       runtime.Version(),
		Mirror: mirrorInfo{
			Channel:  s.opts.Channel,
			Store:    s.opts.StoreBackend,
			Capacity: s.opts.Capacity,
		},
	}
	if !s.opts.Build.BuiltAt.IsZero() {
		resp.BuiltAt = s.opts.Build.BuiltAt.UTC().Format(time.RFC3339)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(resp)
}

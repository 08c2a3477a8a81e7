// Package server exposes a read-only HTTP view over the capture: the
// .ulg files on disk, the session audit trail, and the live endpoint
// statistics.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"example.com/ulogsink/internal/common"
	"example.com/ulogsink/internal/ulog"
)

// StatsSource reports the live capture state for the /stats handler.
type StatsSource interface {
	State() ulog.State
	FilePath() string
	Metrics() *common.Metrics
}

// Options configure the log-browse server.
type Options struct {
	LogsDir    string
	EventsPath string
	Stats      StatsSource
}

type Server struct {
	logsDir    string
	eventsPath string
	stats      StatsSource
}

func NewServer(opts Options) (*Server, error) {
	if opts.LogsDir == "" {
		return nil, errors.New("logs directory not configured")
	}
	return &Server{
		logsDir:    opts.LogsDir,
		eventsPath: opts.EventsPath,
		stats:      opts.Stats,
	}, nil
}

// NewRouter wires HTTP routes to the server's handlers.
func NewRouter(s *Server) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/logs", s.handleLogs)
	mux.HandleFunc("/logs/", s.handleLogDownload)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/stats", s.handleStats)
	return mux
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	logs, err := common.ListLogs(s.logsDir)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, logs)
}

func (s *Server) handleLogDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/logs/")
	if name == "" || name != filepath.Base(name) || !strings.HasSuffix(name, ".ulg") {
		http.Error(w, "invalid log name", http.StatusBadRequest)
		return
	}
	path := filepath.Join(s.logsDir, name)
	if _, err := os.Stat(path); err != nil {
		http.Error(w, "log not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeFile(w, r, path)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.eventsPath == "" {
		writeJSON(w, []common.SessionEvent{})
		return
	}
	events, err := common.ReadSessionLog(s.eventsPath)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, []common.SessionEvent{})
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, events)
}

type statsResponse struct {
	State   string                 `json:"state"`
	File    string                 `json:"file,omitempty"`
	Metrics common.MetricsSnapshot `json:"metrics"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.stats == nil {
		http.Error(w, "no capture endpoint attached", http.StatusServiceUnavailable)
		return
	}
	resp := statsResponse{
		State:   s.stats.State().String(),
		Metrics: s.stats.Metrics().Snapshot(),
	}
	if p := s.stats.FilePath(); p != "" {
		resp.File = filepath.Base(p)
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		common.Warnf("server: encode response: %v", err)
	}
}

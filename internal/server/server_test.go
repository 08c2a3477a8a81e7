package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"example.com/ulogsink/internal/common"
	"example.com/ulogsink/internal/ulog"
)

type fakeStats struct {
	state   ulog.State
	path    string
	metrics *common.Metrics
}

func (f *fakeStats) State() ulog.State        { return f.state }
func (f *fakeStats) FilePath() string         { return f.path }
func (f *fakeStats) Metrics() *common.Metrics { return f.metrics }

func newTestServer(t *testing.T) (*httptest.Server, string, string) {
	t.Helper()
	dir := t.TempDir()
	eventsPath := filepath.Join(dir, "capture-events.jsonl")

	metrics := common.NewMetrics()
	metrics.AddFragment(100)
	srv, err := NewServer(Options{
		LogsDir:    dir,
		EventsPath: eventsPath,
		Stats:      &fakeStats{state: ulog.StateCapturing, path: filepath.Join(dir, "a.ulg"), metrics: metrics},
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	ts := httptest.NewServer(NewRouter(srv))
	t.Cleanup(ts.Close)
	return ts, dir, eventsPath
}

func getJSON(t *testing.T, url string, out interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func TestHandleLogsListsCaptures(t *testing.T) {
	ts, dir, _ := newTestServer(t)

	if err := os.WriteFile(filepath.Join(dir, "a.ulg"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var logs []common.LogInfo
	getJSON(t, ts.URL+"/logs", &logs)
	if len(logs) != 1 || logs[0].Name != "a.ulg" {
		t.Fatalf("logs = %+v, want only a.ulg", logs)
	}
}

func TestHandleLogDownload(t *testing.T) {
	ts, dir, _ := newTestServer(t)

	content := []byte("ulog-bytes")
	if err := os.WriteFile(filepath.Join(dir, "a.ulg"), content, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	resp, err := http.Get(ts.URL + "/logs/a.ulg")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	if resp, err := http.Get(ts.URL + "/logs/missing.ulg"); err == nil {
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("missing log status = %d, want 404", resp.StatusCode)
		}
	}
	if resp, err := http.Get(ts.URL + "/logs/" + "..%2Fescape.ulg"); err == nil {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			t.Fatalf("path traversal served")
		}
	}
}

func TestHandleEvents(t *testing.T) {
	ts, _, eventsPath := newTestServer(t)

	var empty []common.SessionEvent
	getJSON(t, ts.URL+"/events", &empty)
	if len(empty) != 0 {
		t.Fatalf("events before any capture = %d, want 0", len(empty))
	}

	log := common.NewSessionLog(eventsPath)
	if err := log.Append(common.SessionEvent{Event: "start", File: "a.ulg"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	var events []common.SessionEvent
	getJSON(t, ts.URL+"/events", &events)
	if len(events) != 1 || events[0].Event != "start" {
		t.Fatalf("events = %+v", events)
	}
}

func TestHandleStats(t *testing.T) {
	ts, _, _ := newTestServer(t)

	var stats struct {
		State   string                 `json:"state"`
		File    string                 `json:"file"`
		Metrics common.MetricsSnapshot `json:"metrics"`
	}
	getJSON(t, ts.URL+"/stats", &stats)
	if stats.State != "capturing" {
		t.Fatalf("state = %q, want capturing", stats.State)
	}
	if stats.File != "a.ulg" {
		t.Fatalf("file = %q, want a.ulg", stats.File)
	}
	if stats.Metrics.Fragments != 1 || stats.Metrics.Bytes != 100 {
		t.Fatalf("metrics = %+v", stats.Metrics)
	}
}

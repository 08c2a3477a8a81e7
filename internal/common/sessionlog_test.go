package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSessionLogAppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "capture-events.jsonl")
	l := NewSessionLog(path)

	if err := l.Append(SessionEvent{Event: "start", File: "a.ulg"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := l.Append(SessionEvent{Event: "drop", File: "a.ulg", Sequence: 17}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	events, err := ReadSessionLog(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Event != "start" || events[1].Sequence != 17 {
		t.Fatalf("events = %+v", events)
	}
	if events[0].Ts.IsZero() {
		t.Fatalf("timestamp not filled in")
	}
}

func TestSessionLogReopensAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ev.jsonl")
	l := NewSessionLog(path)

	if err := l.Append(SessionEvent{Event: "start"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := l.Append(SessionEvent{Event: "stop"}); err != nil {
		t.Fatalf("append after close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	events, err := ReadSessionLog(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(events) != 2 || events[1].Event != "stop" {
		t.Fatalf("events = %+v, want start then stop", events)
	}
}

func TestSessionLogRejectsUnnamedEvent(t *testing.T) {
	l := NewSessionLog(filepath.Join(t.TempDir(), "ev.jsonl"))
	if err := l.Append(SessionEvent{}); err == nil {
		t.Fatalf("unnamed event accepted")
	}
}

func TestNilSessionLogSwallowsEvents(t *testing.T) {
	var l *SessionLog
	if err := l.Append(SessionEvent{Event: "start"}); err != nil {
		t.Fatalf("nil log append: %v", err)
	}
}

func TestListLogs(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, mod time.Time) {
		t.Helper()
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := os.Chtimes(path, mod, mod); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
	now := time.Now()
	write("old.ulg", now.Add(-time.Hour))
	write("new.ulg", now)
	write("notes.txt", now)

	logs, err := ListLogs(dir)
	if err != nil {
		t.Fatalf("ListLogs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("logs = %d, want 2", len(logs))
	}
	if logs[0].Name != "new.ulg" || logs[1].Name != "old.ulg" {
		t.Fatalf("order = %s, %s", logs[0].Name, logs[1].Name)
	}
}

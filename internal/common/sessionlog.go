package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// SessionEvent is one line of the capture audit trail: session starts
// and stops, drops, overflows and corruption declarations, recorded
// next to the .ulg files they describe.
type SessionEvent struct {
	Event    string    `json:"event"`
	File     string    `json:"file,omitempty"`
	Sequence uint16    `json:"sequence,omitempty"`
	Detail   string    `json:"detail,omitempty"`
	Ts       time.Time `json:"ts"`
}

// SessionLog appends capture events to a JSONL file. The capture
// endpoint is its only writer and runs on the reactor thread, so there
// is no locking; the file opens on first use and stays open until
// Close, which is also where it syncs.
type SessionLog struct {
	path string
	f    *os.File
	enc  *json.Encoder
}

// NewSessionLog returns a SessionLog that writes to the provided path.
func NewSessionLog(path string) *SessionLog {
	return &SessionLog{path: path}
}

// Path returns the backing file path for the log.
func (l *SessionLog) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append records one event. A nil log swallows events so the endpoint
// does not have to guard each call.
func (l *SessionLog) Append(entry SessionEvent) error {
	if l == nil {
		return nil
	}
	if entry.Event == "" {
		return errors.New("session event missing event name")
	}
	if entry.Ts.IsZero() {
		entry.Ts = time.Now().UTC()
	}
	if l.f == nil {
		dir := filepath.Dir(l.path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		l.f = f
		l.enc = json.NewEncoder(f)
	}
	return l.enc.Encode(entry)
}

// Close syncs and releases the file. Further Appends reopen it.
func (l *SessionLog) Close() error {
	if l == nil || l.f == nil {
		return nil
	}
	f := l.f
	l.f = nil
	l.enc = nil
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadSessionLog loads every event from the supplied JSONL file.
func ReadSessionLog(path string) ([]SessionEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	var entries []SessionEvent
	for {
		var entry SessionEvent
		if err := dec.Decode(&entry); err != nil {
			if errors.Is(err, io.EOF) {
				return entries, nil
			}
			return nil, fmt.Errorf("decode session event: %w", err)
		}
		entries = append(entries, entry)
	}
}

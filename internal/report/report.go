// Package report renders per-capture summary documents from a .ulg
// file and its session audit trail.
package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"example.com/ulogsink/internal/common"
	"example.com/ulogsink/internal/ulog"
)

// CaptureReport is the summary of one captured flight log.
type CaptureReport struct {
	File        string                `json:"file"`
	GeneratedAt time.Time             `json:"generatedAt"`
	SizeBytes   int64                 `json:"sizeBytes"`
	Sha256      string                `json:"sha256"`
	Version     uint8                 `json:"version"`
	TimestampUs uint64                `json:"timestampUs"`
	Records     int                   `json:"records"`
	DataBytes   int64                 `json:"dataBytes"`
	Truncated   bool                  `json:"truncated"`
	TypeCounts  map[uint8]int         `json:"typeCounts"`
	Events      []common.SessionEvent `json:"events,omitempty"`
}

// Build scans the capture and assembles its report. eventsPath may be
// empty; when set, only events for this file are included.
func Build(logPath, eventsPath string) (CaptureReport, error) {
	rep := CaptureReport{
		File:        filepath.Base(logPath),
		GeneratedAt: time.Now().UTC(),
	}
	idx, err := ulog.ScanFile(logPath)
	if err != nil {
		return rep, err
	}
	sum, size, err := common.Sha256OfFile(logPath)
	if err != nil {
		return rep, err
	}
	rep.SizeBytes = size
	rep.Sha256 = sum
	rep.Version = idx.Version
	rep.TimestampUs = idx.TimestampUs
	rep.Records = idx.Records
	rep.DataBytes = idx.DataBytes
	rep.Truncated = idx.Truncated
	rep.TypeCounts = idx.TypeCounts

	if eventsPath != "" {
		events, err := common.ReadSessionLog(eventsPath)
		if err == nil {
			for _, ev := range events {
				if ev.File == rep.File {
					rep.Events = append(rep.Events, ev)
				}
			}
		}
	}
	return rep, nil
}

// SaveJSON writes the report as indented JSON.
func SaveJSON(rep CaptureReport, out string) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0o644)
}

// Package snapshot writes rendered graphs to disk for offline viewing.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"NetSankey/internal/model"
)

// TimestampFormat names snapshot directories.
const TimestampFormat = "2006-01-02_15-04-05"

// Snapshot is one rendered view of the traffic.
type Snapshot struct {
	Name  string
	Mode  model.Mode
	Hosts []string
	Graph model.Graph
}

// SummaryData holds the metadata for a snapshot.
type SummaryData struct {
	Name       string     `json:"name"`
	Mode       model.Mode `json:"mode"`
	Hosts      int        `json:"hosts"`
	Nodes      int        `json:"nodes"`
	Links      int        `json:"links"`
	TotalBytes uint64     `json:"total_bytes"`
	Timestamp  string     `json:"timestamp"`
}

// Writer handles writing snapshot data to disk.
type Writer struct{}

// NewWriter creates a new snapshot writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Write stores the graph and host list of a snapshot under
// rootPath/timestamp/name and returns that directory. The summary is only
// written for graphs with at least one link.
func (w *Writer) Write(snap Snapshot, rootPath string, timestamp string) (string, error) {
	dir := filepath.Join(rootPath, timestamp, snap.Name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	if err := writeJSON(filepath.Join(dir, "graph.json"), snap.Graph); err != nil {
		return "", err
	}
	hosts := snap.Hosts
	if hosts == nil {
		hosts = []string{}
	}
	if err := writeJSON(filepath.Join(dir, "hosts.json"), hosts); err != nil {
		return "", err
	}

	if len(snap.Graph.Links) > 0 {
		summary := SummaryData{
			Name:      snap.Name,
			Mode:      snap.Mode,
			Hosts:     len(snap.Hosts),
			Nodes:     len(snap.Graph.Nodes),
			Links:     len(snap.Graph.Links),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		for _, l := range snap.Graph.Links {
			summary.TotalBytes += l.Value
		}
		if err := writeJSON(filepath.Join(dir, "summary.json"), summary); err != nil {
			return "", err
		}
	}

	return dir, nil
}

// WriteNow is Write with the current time as timestamp.
func (w *Writer) WriteNow(snap Snapshot, rootPath string) (string, error) {
	return w.Write(snap, rootPath, time.Now().Format(TimestampFormat))
}

func writeJSON(path string, v interface{}) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file '%s': %w", path, err)
	}
	defer file.Close()

	jsonEncoder := json.NewEncoder(file)
	jsonEncoder.SetIndent("", "  ")
	if err := jsonEncoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode '%s': %w", path, err)
	}
	return nil
}

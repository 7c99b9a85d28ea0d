package operations

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kebairia/chargeback/internal/chargeback"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Metadata summarizes a single report run
type Metadata struct {
	RunID       string           `json:"run_id"`
	Cluster     string           `json:"cluster"`
	OutputFile  string           `json:"output_file"`
	Artifacts   []string         `json:"artifacts,omitempty"`
	Uploaded    []string         `json:"uploaded,omitempty"`
	Status      string           `json:"status"`
	Error       string           `json:"error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt time.Time        `json:"completed_at"`
	DurationMS  int64            `json:"duration_ms"`
	Stats       chargeback.Stats `json:"stats"`
}

// finish stamps completion time and status from err.
func (m *Metadata) finish(err error) {
	m.CompletedAt = time.Now()
	m.DurationMS = m.CompletedAt.Sub(m.StartedAt).Milliseconds()
	if err != nil {
		m.Status = StatusFailed
		m.Error = err.Error()
		return
	}
	m.Status = StatusSuccess
}

// Write metadata file
func (m *Metadata) Write(filePath string) error {
	if err := EnsureDirectoryExist(filepath.Dir(filePath)); err != nil {
		return fmt.Errorf("ensure metadata directory: %w", err)
	}

	jsonFile, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("create metadata file %q: %w", filePath, err)
	}
	defer jsonFile.Close()

	encoder := json.NewEncoder(jsonFile)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(m); err != nil {
		return fmt.Errorf("encode metadata JSON: %w", err)
	}
	return jsonFile.Close()
}

func EnsureDirectoryExist(dirPath string) error {
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %q: %w", dirPath, err)
	}
	return nil
}

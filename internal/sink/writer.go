package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Aghostraa/OLI-Converters/internal/domain/model"
)

// Document is the serialized batch output: the OLI tag records plus the
// failure report and run metadata, so "zero results" is distinguishable
// from "nothing attempted".
type Document struct {
	RunID       string            `json:"run_id"`
	GeneratedAt time.Time         `json:"generated_at"`
	Stats       model.Stats       `json:"stats"`
	Records     []model.TagRecord `json:"records"`
	Failures    []model.Failure   `json:"failures"`
}

// Write serializes the result to path atomically: the document is written to
// a temp file in the same directory and renamed into place, so a crash
// mid-write never truncates a previous good output.
func Write(path string, runID string, result *model.AggregateResult) error {
	doc := Document{
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		Stats:       result.Stats,
		Records:     result.Records,
		Failures:    result.Failures,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output document: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp output file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write output document: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync output document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp output file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace output file: %w", err)
	}
	return nil
}

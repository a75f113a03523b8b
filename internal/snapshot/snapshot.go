// Package snapshot persists the record set from the last completed cycle so
// the next cycle can reconcile against it.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jonathan/feedsync/internal/schemas"
	"github.com/jonathan/feedsync/internal/types"
)

const schemaVersion = 1

// document is the on-disk shape of a snapshot.
type document struct {
	Version int            `json:"version"`
	TakenAt time.Time      `json:"taken_at"`
	Records []types.Record `json:"records"`
}

// Store reads and writes record-set snapshots at a fixed path.
type Store struct {
	path string
}

// NewStore creates a snapshot store at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load returns the previous cycle's record set. A missing file returns a nil
// slice: the orchestrator treats that as a first run where every current
// record is added.
func (s *Store) Load() ([]types.Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot file %s: %w", s.path, err)
	}

	if err := schemas.ValidateSnapshot(data); err != nil {
		return nil, fmt.Errorf("snapshot file %s is not valid: %w", s.path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot file %s: %w", s.path, err)
	}

	return doc.Records, nil
}

// Save writes the record set atomically via a temp file rename, so an
// interrupted write never leaves a truncated snapshot behind.
func (s *Store) Save(records []types.Record) error {
	doc := document{
		Version: schemaVersion,
		TakenAt: time.Now().UTC(),
		Records: records,
	}
	if doc.Records == nil {
		doc.Records = []types.Record{}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	return nil
}

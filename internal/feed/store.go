package feed

import (
	"fmt"
	"os"
	"time"

	"github.com/jonathan/feedsync/internal/types"
)

// ValidationError indicates the post-write structural check of the feed
// document failed. The triggering mutation has been rolled back to the
// pre-mutation backup by the time this error is returned.
type ValidationError struct {
	Message string
	Cause   error
}

func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("feed validation failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("feed validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// Store owns the feed document on disk. Every mutation backs up the current
// document, applies the change, rewrites the file, and re-parses the written
// result; a failed check restores the backup byte for byte.
type Store struct {
	path  string
	guard *guard

	// validateFn is replaced in tests to inject post-write failures.
	validateFn func([]types.ArtifactEntry) error
}

// NewStore creates a feed store at path with the default guard wait.
func NewStore(path string) *Store {
	return NewStoreWithWait(path, DefaultGuardWait)
}

// NewStoreWithWait creates a feed store with a custom guard wait bound.
func NewStoreWithWait(path string, wait time.Duration) *Store {
	s := &Store{
		path:  path,
		guard: newGuard(wait),
	}
	s.validateFn = s.validateEntries
	return s
}

// Path returns the on-disk location of the feed document.
func (s *Store) Path() string {
	return s.path
}

// Snapshot reads and parses the current document. A missing file is an
// empty document.
func (s *Store) Snapshot() ([]types.ArtifactEntry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read feed document %s: %w", s.path, err)
	}
	return parseDocument(data)
}

// Bytes returns the raw serialized document for publishing.
func (s *Store) Bytes() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return marshalDocument(nil)
		}
		return nil, fmt.Errorf("failed to read feed document %s: %w", s.path, err)
	}
	return data, nil
}

// InsertAtHead adds a new entry as the first (newest) entry. The caller is
// responsible for checking that the external id is not already present;
// inserting a duplicate fails post-write validation and is rolled back.
func (s *Store) InsertAtHead(entry types.ArtifactEntry) error {
	return s.mutate(func(entries []types.ArtifactEntry) ([]types.ArtifactEntry, error) {
		return append([]types.ArtifactEntry{entry}, entries...), nil
	})
}

// UpdateInPlace removes the existing entry for the id and re-inserts the new
// entry at the head. Unless reissueCode is set, the entry keeps the
// reference code it previously had. Returns false without error when no
// entry exists for the id.
func (s *Store) UpdateInPlace(externalID string, entry types.ArtifactEntry, reissueCode bool) (bool, error) {
	found := false
	err := s.mutate(func(entries []types.ArtifactEntry) ([]types.ArtifactEntry, error) {
		remaining := make([]types.ArtifactEntry, 0, len(entries))
		for _, existing := range entries {
			if existing.ExternalID == externalID {
				found = true
				if !reissueCode {
					entry.ReferenceCode = existing.ReferenceCode
				}
				continue
			}
			remaining = append(remaining, existing)
		}
		if !found {
			return entries, nil
		}
		return append([]types.ArtifactEntry{entry}, remaining...), nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// Remove deletes the entry for the id. Returns false without error when no
// entry exists.
func (s *Store) Remove(externalID string) (bool, error) {
	found := false
	err := s.mutate(func(entries []types.ArtifactEntry) ([]types.ArtifactEntry, error) {
		remaining := make([]types.ArtifactEntry, 0, len(entries))
		for _, existing := range entries {
			if existing.ExternalID == externalID {
				found = true
				continue
			}
			remaining = append(remaining, existing)
		}
		return remaining, nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// Deduplicate is an explicit repair pass: when several entries share an
// external id, the most recently written one (nearest the head) is kept and
// the rest dropped. Returns the number of entries removed.
func (s *Store) Deduplicate() (int, error) {
	removed := 0
	err := s.mutate(func(entries []types.ArtifactEntry) ([]types.ArtifactEntry, error) {
		seen := make(map[string]bool, len(entries))
		kept := make([]types.ArtifactEntry, 0, len(entries))
		for _, entry := range entries {
			if seen[entry.ExternalID] {
				removed++
				continue
			}
			seen[entry.ExternalID] = true
			kept = append(kept, entry)
		}
		return kept, nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Validate parses the current document and runs the structural checks
// without mutating anything.
func (s *Store) Validate() error {
	entries, err := s.Snapshot()
	if err != nil {
		return &ValidationError{Message: "document is not well-formed", Cause: err}
	}
	return s.validateFn(entries)
}

// mutate runs one atomic mutation: backup, apply, write, re-parse, validate,
// and roll back to the byte-identical backup on any failure.
func (s *Store) mutate(apply func([]types.ArtifactEntry) ([]types.ArtifactEntry, error)) error {
	if err := s.guard.acquire(); err != nil {
		return err
	}
	defer s.guard.release()

	original, err := os.ReadFile(s.path)
	hadOriginal := err == nil
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read feed document %s: %w", s.path, err)
	}

	var entries []types.ArtifactEntry
	if hadOriginal {
		entries, err = parseDocument(original)
		if err != nil {
			return &ValidationError{Message: "existing document is not well-formed", Cause: err}
		}
	}

	mutated, err := apply(entries)
	if err != nil {
		return err
	}

	data, err := marshalDocument(mutated)
	if err != nil {
		return err
	}

	if err := s.writeAtomic(data); err != nil {
		return err
	}

	if err := s.checkWritten(); err != nil {
		if restoreErr := s.restore(original, hadOriginal); restoreErr != nil {
			return fmt.Errorf("rollback after failed validation also failed: %v (validation: %w)", restoreErr, err)
		}
		return err
	}

	return nil
}

// checkWritten re-parses the document that just hit disk and validates it.
func (s *Store) checkWritten() error {
	written, err := os.ReadFile(s.path)
	if err != nil {
		return &ValidationError{Message: "failed to re-read written document", Cause: err}
	}
	entries, err := parseDocument(written)
	if err != nil {
		return &ValidationError{Message: "written document is not well-formed", Cause: err}
	}
	return s.validateFn(entries)
}

// validateEntries applies the structural invariants: every entry carries its
// required fields and no external id appears twice.
func (s *Store) validateEntries(entries []types.ArtifactEntry) error {
	seen := make(map[string]bool, len(entries))
	for i, entry := range entries {
		if err := entry.Validate(); err != nil {
			return &ValidationError{
				Message: fmt.Sprintf("entry %d (external id %q) is missing required fields", i, entry.ExternalID),
				Cause:   err,
			}
		}
		if seen[entry.ExternalID] {
			return &ValidationError{
				Message: fmt.Sprintf("duplicate entry for external id %q", entry.ExternalID),
			}
		}
		seen[entry.ExternalID] = true
	}
	return nil
}

func (s *Store) writeAtomic(data []byte) error {
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp feed document: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace feed document: %w", err)
	}
	return nil
}

// restore puts the pre-mutation bytes back. When no document existed before
// the mutation, the written file is removed instead.
func (s *Store) restore(original []byte, hadOriginal bool) error {
	if !hadOriginal {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove partially written document: %w", err)
		}
		return nil
	}
	return s.writeAtomic(original)
}

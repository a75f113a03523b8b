// Package registry maintains the persistent mapping from external record ids
// to locally issued reference codes. Codes survive process restarts and full
// artifact regenerations; downstream consumers treat them as quasi-permanent
// tracking handles.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jonathan/feedsync/internal/schemas"
)

// schemaVersion is the version written into persisted registry documents.
const schemaVersion = 1

// document is the on-disk shape of the registry.
type document struct {
	Version int               `json:"version"`
	Codes   map[string]string `json:"codes"`
}

// Registry is the in-memory registry backed by a JSON file.
type Registry struct {
	path string

	mu    sync.Mutex
	codes map[string]string
}

// New creates an empty registry persisted at path.
func New(path string) *Registry {
	return &Registry{
		path:  path,
		codes: make(map[string]string),
	}
}

// Load reads the registry file into memory, validating it against the
// registry schema. A missing file yields an empty registry.
func Load(path string) (*Registry, error) {
	r := New(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("failed to read registry file %s: %w", path, err)
	}

	if err := schemas.ValidateRegistry(data); err != nil {
		return nil, fmt.Errorf("registry file %s is not valid: %w", path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse registry file %s: %w", path, err)
	}
	if doc.Codes != nil {
		r.codes = doc.Codes
	}

	return r, nil
}

// Lookup returns the reference code for an external id, if one was issued.
func (r *Registry) Lookup(externalID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.codes[externalID]
	return code, ok
}

// Assign returns the existing reference code for an external id, issuing a
// new one if the id has never been seen. Issued codes are unique within the
// registry's lifetime.
func (r *Registry) Assign(externalID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if code, ok := r.codes[externalID]; ok {
		return code, nil
	}
	return r.issueLocked(externalID)
}

// Reissue discards the current code for an external id and issues a fresh
// one. Callers use this only when a record is explicitly flagged as actively
// modified; regenerating codes on every sync would break the downstream
// tracking contract.
func (r *Registry) Reissue(externalID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.codes, externalID)
	return r.issueLocked(externalID)
}

// Retire permanently removes an external id from the registry.
func (r *Registry) Retire(externalID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.codes, externalID)
}

// Len returns the number of registered ids.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.codes)
}

// issueLocked generates a unique code for the id. The caller must hold mu.
func (r *Registry) issueLocked(externalID string) (string, error) {
	for attempt := 0; attempt < maxCollisionAttempts; attempt++ {
		code, err := generateCode()
		if err != nil {
			return "", err
		}
		if !r.codeInUseLocked(code) {
			r.codes[externalID] = code
			return code, nil
		}
	}

	// Exhausted random attempts; a timestamp suffix cannot collide with a
	// fixed-length code.
	code, err := timestampCode()
	if err != nil {
		return "", err
	}
	r.codes[externalID] = code
	return code, nil
}

func (r *Registry) codeInUseLocked(code string) bool {
	for _, existing := range r.codes {
		if existing == code {
			return true
		}
	}
	return false
}

// Persist writes the registry to disk atomically via a temp file rename.
func (r *Registry) Persist() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := document{Version: schemaVersion, Codes: r.codes}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	tmpPath := fmt.Sprintf("%s.tmp.%d", r.path, time.Now().UnixNano())
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp registry file: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace registry file: %w", err)
	}

	return nil
}

package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/trailofbits/mcp-context-protector/internal/domain/guardrail"
)

// ErrQuarantineEntryNotFound is returned by Get/Release for an unknown id.
var ErrQuarantineEntryNotFound = errors.New("quarantine store: entry not found")

// quarantineDocument is the on-disk schema for quarantine.json (spec.md §6).
type quarantineDocument struct {
	Version int                         `json:"version"`
	Entries []guardrail.QuarantineEntry `json:"entries"`
}

// FileQuarantineStore persists QuarantineEntries, append-dominant: entries
// accumulate and are retained (even after release) until manually purged.
// Uses the same atomic-write/flock discipline as FileApprovalStore.
type FileQuarantineStore struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]*guardrail.QuarantineEntry
	order   []string
	loaded  bool
}

// NewFileQuarantineStore returns a store backed by the JSON file at path.
func NewFileQuarantineStore(path string, logger *slog.Logger) *FileQuarantineStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileQuarantineStore{path: path, logger: logger, entries: make(map[string]*guardrail.QuarantineEntry)}
}

func (s *FileQuarantineStore) ensureLoaded() error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.loaded = true
			return nil
		}
		return fmt.Errorf("read quarantine store: %w", err)
	}

	warnIfTooOpen(s.logger, s.path)

	var doc quarantineDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse quarantine store: %w", err)
	}
	for i := range doc.Entries {
		e := doc.Entries[i]
		s.entries[e.ID] = &e
		s.order = append(s.order, e.ID)
	}
	s.loaded = true
	return nil
}

// Append persists a new quarantine entry.
func (s *FileQuarantineStore) Append(entry guardrail.QuarantineEntry) error {
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[entry.ID]; !exists {
		s.order = append(s.order, entry.ID)
	}
	s.entries[entry.ID] = &entry
	return s.persist(s.snapshotLocked())
}

// Get returns the entry with the given id, or (nil, false) if none.
func (s *FileQuarantineStore) Get(id string) (*guardrail.QuarantineEntry, bool, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok, nil
}

// Release marks the entry as released. Idempotent: releasing an
// already-released (or re-releasing) entry succeeds without error.
func (s *FileQuarantineStore) Release(id string) error {
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return ErrQuarantineEntryNotFound
	}
	if e.Released {
		return nil
	}
	e.Released = true
	return s.persist(s.snapshotLocked())
}

func (s *FileQuarantineStore) snapshotLocked() quarantineDocument {
	doc := quarantineDocument{Version: 1, Entries: make([]guardrail.QuarantineEntry, 0, len(s.order))}
	for _, id := range s.order {
		doc.Entries = append(doc.Entries, *s.entries[id])
	}
	return doc
}

func (s *FileQuarantineStore) persist(doc quarantineDocument) error {
	return withFileLock(s.path, func() error {
		backup(s.logger, s.path)
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal quarantine store: %w", err)
		}
		data = append(data, '\n')
		return writeAtomic(s.path, data)
	})
}

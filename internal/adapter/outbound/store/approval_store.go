package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/trailofbits/mcp-context-protector/internal/domain/approval"
	"github.com/trailofbits/mcp-context-protector/internal/domain/config"
)

// serversDocument is the on-disk schema for servers.json (spec.md §6).
type serversDocument struct {
	Version int                `json:"version"`
	Records []approval.Record `json:"records"`
}

// FileApprovalStore persists ApprovalRecords to a JSON file using the
// atomic-write, flock-guarded discipline in atomic.go. Reads are served
// from an in-memory cache refreshed on every successful Save, so repeated
// evaluate calls within one process do not hit disk on the hot path; the
// cache is also populated lazily on first Load.
type FileApprovalStore struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	records map[config.Identity]*approval.Record
	loaded  bool
}

// NewFileApprovalStore returns a store backed by the JSON file at path.
func NewFileApprovalStore(path string, logger *slog.Logger) *FileApprovalStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileApprovalStore{path: path, logger: logger, records: make(map[config.Identity]*approval.Record)}
}

func (s *FileApprovalStore) ensureLoaded() error {
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
		// Fail closed: a read error for an existing file must not be
		// silently treated as "no record" (spec.md §7 store I/O errors).
		return fmt.Errorf("read approval store: %w", err)
	}

	warnIfTooOpen(s.logger, s.path)

	var doc serversDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse approval store: %w", err)
	}
	for i := range doc.Records {
		r := doc.Records[i]
		s.records[r.Identity] = &r
	}
	s.loaded = true
	return nil
}

// Load returns the record for identity, or (nil, false) if none exists.
func (s *FileApprovalStore) Load(identity config.Identity) (*approval.Record, bool, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[identity]
	return r, ok, nil
}

// Save persists record, replacing any existing record for the same
// identity, and writes the whole document atomically.
func (s *FileApprovalStore) Save(record *approval.Record) error {
	if err := s.ensureLoaded(); err != nil {
		return err
	}

	record.LastUpdatedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.records[record.Identity]
	s.records[record.Identity] = record
	if err := s.persist(s.snapshotLocked()); err != nil {
		// Roll the cache entry back so a failed write is not served.
		if had {
			s.records[record.Identity] = prev
		} else {
			delete(s.records, record.Identity)
		}
		return err
	}
	return nil
}

// Forget removes the record for identity entirely, if present.
func (s *FileApprovalStore) Forget(identity config.Identity) error {
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, identity)
	return s.persist(s.snapshotLocked())
}

// snapshotLocked must be called with s.mu held (read or write).
func (s *FileApprovalStore) snapshotLocked() serversDocument {
	doc := serversDocument{Version: 1, Records: make([]approval.Record, 0, len(s.records))}
	for _, r := range s.records {
		doc.Records = append(doc.Records, *r)
	}
	return doc
}

func (s *FileApprovalStore) persist(doc serversDocument) error {
	return withFileLock(s.path, func() error {
		backup(s.logger, s.path)
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal approval store: %w", err)
		}
		data = append(data, '\n')
		return writeAtomic(s.path, data)
	})
}

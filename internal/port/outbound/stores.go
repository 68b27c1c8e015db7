package outbound

import (
	"github.com/trailofbits/mcp-context-protector/internal/domain/approval"
	"github.com/trailofbits/mcp-context-protector/internal/domain/config"
	"github.com/trailofbits/mcp-context-protector/internal/domain/guardrail"
)

// ApprovalStore is the outbound port for the persistent, per-identity
// approval record store. Implementations must be process-wide,
// concurrency-safe, and durable across restarts (spec.md §4.2).
type ApprovalStore interface {
	// Load returns the record for identity, or (nil, false) if none
	// exists yet ("unknown").
	Load(identity config.Identity) (*approval.Record, bool, error)
	// Save persists record, replacing any existing record for the same
	// identity via atomic rename.
	Save(record *approval.Record) error
	// Forget removes the record for identity entirely, if present.
	Forget(identity config.Identity) error
}

// QuarantineStore is the outbound port for the persistent, append-dominant
// quarantine entry store (spec.md §4.5/§6).
type QuarantineStore interface {
	// Append persists a new quarantine entry.
	Append(entry guardrail.QuarantineEntry) error
	// Get returns the entry with the given id, or (nil, false) if none.
	Get(id string) (*guardrail.QuarantineEntry, bool, error)
	// Release marks the entry as released so quarantine_release may return
	// the original payload. Releasing an already-released entry is a no-op
	// (idempotent per spec.md §9).
	Release(id string) error
}

// Package approval implements the granular, per-server, per-tool TOFU
// approval state machine: the persisted record shape and the pure
// evaluation function that compares a live snapshot against it.
package approval

import (
	"time"

	"github.com/trailofbits/mcp-context-protector/internal/domain/config"
)

// Record is the persisted approval state for one ServerIdentity.
//
// Invariants (see SPEC_FULL.md §3 / spec.md §3):
//   - a tool is approved iff ToolHashes[name] exists and equals
//     hash(canonical(tool)) of the live snapshot;
//   - instructions are approved iff InstructionsHash equals
//     hash(canonical(snapshot.Instructions));
//   - removing a tool from the live snapshot never requires re-approval of
//     the remaining tools; the stale entry in ToolHashes is inert.
type Record struct {
	Identity         config.Identity  `json:"identity"`
	InstructionsHash string           `json:"instructions_hash"`
	ToolHashes       map[string]string `json:"tool_hashes"`
	CreatedAt        time.Time        `json:"created_at"`
	LastUpdatedAt    time.Time        `json:"last_updated_at"`
}

// NewRecord returns an empty record for identity, ready to be populated by
// ApproveAll/ApproveTool/ApproveInstructions.
func NewRecord(identity config.Identity, now time.Time) *Record {
	return &Record{
		Identity:      identity,
		ToolHashes:    make(map[string]string),
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
}

// ApproveInstructions records the current snapshot's instructions hash.
func (r *Record) ApproveInstructions(snapshot config.Snapshot, now time.Time) {
	r.InstructionsHash = config.HashInstructions(snapshot.Instructions)
	r.LastUpdatedAt = now
}

// ApproveTool records the hash of a single named tool as it currently
// stands in snapshot. No-op (returns an error) if the tool is not present.
func (r *Record) ApproveTool(snapshot config.Snapshot, toolName string, now time.Time) error {
	tool, ok := snapshot.Tools[toolName]
	if !ok {
		return ErrToolNotInSnapshot
	}
	hash, err := config.HashTool(tool)
	if err != nil {
		return err
	}
	if r.ToolHashes == nil {
		r.ToolHashes = make(map[string]string)
	}
	r.ToolHashes[toolName] = hash
	r.LastUpdatedAt = now
	return nil
}

// ApproveAll approves instructions plus every tool currently in snapshot.
func (r *Record) ApproveAll(snapshot config.Snapshot, now time.Time) error {
	r.ApproveInstructions(snapshot, now)
	for name := range snapshot.Tools {
		if err := r.ApproveTool(snapshot, name, now); err != nil {
			return err
		}
	}
	return nil
}

package approval

import (
	"errors"

	"github.com/trailofbits/mcp-context-protector/internal/domain/config"
)

// ErrToolNotInSnapshot is returned by ApproveTool when asked to approve a
// tool name the live snapshot does not currently advertise.
var ErrToolNotInSnapshot = errors.New("approval: tool not present in snapshot")

// ToolState is the per-tool verdict of an evaluation.
type ToolState string

const (
	ToolApproved ToolState = "approved"
	ToolDrift    ToolState = "drift"
	ToolNew      ToolState = "new"
)

// InstructionsState is the instructions verdict of an evaluation.
type InstructionsState string

const (
	InstructionsApproved InstructionsState = "approved"
	InstructionsDrift    InstructionsState = "drift"
	InstructionsNew      InstructionsState = "new"
)

// OverallState is the server-wide verdict.
type OverallState string

const (
	FullyApproved OverallState = "fully_approved"
	BlockedAll    OverallState = "blocked_all"
	Partial       OverallState = "partial"
)

// Evaluation is the three-part verdict produced by Evaluate.
type Evaluation struct {
	InstructionsState InstructionsState
	ToolStates        map[string]ToolState
	OverallState      OverallState
}

// IsToolVisible reports whether a tool with the given state should be
// listed/callable under this evaluation.
func (e Evaluation) IsToolVisible(name string) bool {
	return e.ToolStates[name] == ToolApproved
}

// Evaluate is a pure function (no I/O, no side effects) comparing a live
// snapshot against a persisted approval record (which may be nil, meaning
// "no record exists for this identity yet").
//
// The instructions-global rule: any instructions drift blocks the entire
// server, because instructions are injected into the model's prompt prior
// to any tool call and a partial block would not mitigate a prompt-level
// compromise. An unknown tool name (present in the snapshot but absent
// from the approval record) is treated as "new" (blocked) rather than
// passed through, per spec.md §9's explicit, stricter choice.
func Evaluate(record *Record, snapshot config.Snapshot) Evaluation {
	eval := Evaluation{
		ToolStates: make(map[string]ToolState, len(snapshot.Tools)),
	}

	if record == nil {
		eval.InstructionsState = InstructionsNew
	} else {
		liveHash := config.HashInstructions(snapshot.Instructions)
		switch {
		case record.InstructionsHash == "":
			eval.InstructionsState = InstructionsNew
		case record.InstructionsHash == liveHash:
			eval.InstructionsState = InstructionsApproved
		default:
			eval.InstructionsState = InstructionsDrift
		}
	}

	allToolsApproved := true
	for name, tool := range snapshot.Tools {
		state := evaluateTool(record, name, tool)
		eval.ToolStates[name] = state
		if state != ToolApproved {
			allToolsApproved = false
		}
	}

	switch {
	case eval.InstructionsState != InstructionsApproved:
		eval.OverallState = BlockedAll
	case allToolsApproved:
		eval.OverallState = FullyApproved
	default:
		eval.OverallState = Partial
	}

	return eval
}

func evaluateTool(record *Record, name string, tool config.ToolSpec) ToolState {
	if record == nil {
		return ToolNew
	}
	storedHash, ok := record.ToolHashes[name]
	if !ok {
		return ToolNew
	}
	liveHash, err := config.HashTool(tool)
	if err != nil {
		// Malformed schema: never crash, treat conservatively as drift so
		// the existing approval is not silently honored.
		return ToolDrift
	}
	if storedHash == liveHash {
		return ToolApproved
	}
	return ToolDrift
}

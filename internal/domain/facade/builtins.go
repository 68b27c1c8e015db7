package facade

import (
	"context"
	"encoding/json"

	"github.com/trailofbits/mcp-context-protector/pkg/mcpwire"
)

const configInstructionsDescription = "Explains why this server's tools are currently blocked and what an operator must do to approve them."

const quarantineReleaseDescription = "Releases a previously quarantined tool response by ID, returning its original content. Requires out-of-band operator review."

const configInstructionsText = `This MCP server's configuration has not been fully approved, or has drifted ` +
	`from a previously approved configuration. The host is not exposing this ` +
	`server's tools, instructions, prompts, or resources until an operator ` +
	`reviews and approves the current configuration out-of-band. No further ` +
	`information about the blocked surface is available through this tool.`

func emptyObjectSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func quarantineReleaseSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"quarantine_id": map[string]interface{}{"type": "string"},
		},
		"required": []string{"quarantine_id"},
	}
}

func textToolResult(text string) map[string]interface{} {
	return map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": text},
		},
	}
}

// callConfigInstructions is always callable, regardless of evaluation
// state — it is the one piece of the façade that is allowed to explain
// itself.
func (s *Server) callConfigInstructions(rawID json.RawMessage) []byte {
	raw, err := buildResultResponse(rawID, textToolResult(configInstructionsText))
	if err != nil {
		return buildErrorResponse(rawID, ErrCodeInternal, "internal error")
	}
	return raw
}

type quarantineReleaseArgs struct {
	QuarantineID string `json:"quarantine_id"`
}

// callQuarantineRelease returns a previously quarantined response's
// original payload, but only after the entry has been marked released by
// an out-of-band operator action (spec.md §4.5) — the tool itself never
// performs the review, it only serves a decision already made elsewhere.
func (s *Server) callQuarantineRelease(_ context.Context, rawID json.RawMessage, msg *mcpwire.Message) []byte {
	params := msg.ParseParams()
	var args quarantineReleaseArgs
	if params != nil {
		if v, ok := params["arguments"].(map[string]interface{}); ok {
			if raw, err := json.Marshal(v); err == nil {
				_ = json.Unmarshal(raw, &args)
			}
		}
	}
	if args.QuarantineID == "" {
		return buildErrorResponse(rawID, ErrCodeInternal, "quarantine_id is required")
	}

	entry, ok, err := s.quarantine.Get(args.QuarantineID)
	if err != nil {
		return buildErrorResponse(rawID, ErrCodeInternal, "internal error")
	}
	if !ok {
		return buildErrorResponse(rawID, ErrCodeInternal, "unknown quarantine id")
	}
	if !entry.Released {
		return buildErrorResponse(rawID, ErrCodeInternal, "quarantine entry has not been released for return")
	}

	raw, err := buildResultResponse(rawID, textToolResult(string(entry.Response)))
	if err != nil {
		return buildErrorResponse(rawID, ErrCodeInternal, "internal error")
	}
	if s.metrics != nil {
		s.metrics.QuarantineReleases.Inc()
		s.metrics.QuarantineDepth.Dec()
	}
	return raw
}

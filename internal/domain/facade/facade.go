// Package facade implements the wrapper MCP server façade described in
// spec.md §4.4: the MCP surface the host actually talks to. It never
// forwards a downstream server's identity, instructions, or tool
// descriptions to the host except insofar as the current approval
// evaluation permits, and it presents an unapproved tool identically to a
// nonexistent one.
package facade

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/trailofbits/mcp-context-protector/internal/domain/approval"
	"github.com/trailofbits/mcp-context-protector/internal/domain/config"
	"github.com/trailofbits/mcp-context-protector/internal/domain/guardrail"
	"github.com/trailofbits/mcp-context-protector/internal/domain/sanitize"
	"github.com/trailofbits/mcp-context-protector/internal/port/outbound"
	"github.com/trailofbits/mcp-context-protector/internal/telemetry"
	"github.com/trailofbits/mcp-context-protector/pkg/mcpwire"
)

// ServerName and ServerVersion identify the wrapper itself in the
// initialize handshake — the façade's own identity, never the downstream
// server's.
const (
	ServerName    = "mcp-context-protector"
	ServerVersion = "0.1.0"
)

// Built-in tool names. These are reserved: a downstream tool sharing a
// reserved name is shadowed (never exposed) rather than colliding.
const (
	ToolConfigInstructions = "config_instructions"
	ToolQuarantineRelease  = "quarantine_release"
)

// State is the live, evaluated view of one downstream server that the
// façade dispatches requests against. The wrapper session owns the
// lifecycle of refreshing this (re-fetch snapshot, re-run approval.Evaluate)
// on notifications/tools/list_changed; the façade only reads it.
type State struct {
	Identity   config.Identity
	Snapshot   config.Snapshot
	Evaluation approval.Evaluation
}

// Forwarder sends a host-originated request payload to the downstream
// server and returns its raw JSON-RPC response bytes. Implementations
// correlate request/response pairs across the wrapper session's pump
// goroutines; from the façade's point of view, a call is synchronous.
type Forwarder interface {
	Forward(ctx context.Context, raw []byte) ([]byte, error)
}

// Server is the wrapper MCP façade. One Server is bound to one downstream
// connection; the wrapper session constructs it with the collaborators
// that do the actual I/O (current state, downstream forwarding, quarantine
// lookup, guardrail scanning) so the façade itself stays a pure
// dispatcher over those interfaces.
type Server struct {
	state      func() State
	forwarder  Forwarder
	quarantine outbound.QuarantineStore
	pipeline   *guardrail.Pipeline
	metrics    *telemetry.Metrics // nil means metrics disabled
	sanitizer  *sanitize.Sanitizer
	ansiMode   sanitize.Mode // defaults to sanitize.Strip
}

// SetMetrics attaches a telemetry.Metrics sink. Intercept is a no-op
// toward metrics until this is called, so tests may omit it entirely.
func (s *Server) SetMetrics(m *telemetry.Metrics) {
	s.metrics = m
}

// SetANSIMode overrides the default (Strip) handling of ANSI control
// sequences in host-bound text the façade itself emits — tools/list
// descriptions and initialize instructions — matching whatever mode the
// session configured its guardrail pipeline with.
func (s *Server) SetANSIMode(mode sanitize.Mode) {
	s.ansiMode = mode
}

// NewServer constructs a façade Server. stateFn must return the current
// State snapshot/evaluation pair; the wrapper session is responsible for
// keeping it current (loading/saving approval records is the session's
// concern, not the façade's — the façade only reads evaluations).
func NewServer(stateFn func() State, forwarder Forwarder, quarantine outbound.QuarantineStore, pipeline *guardrail.Pipeline) *Server {
	return &Server{
		state:      stateFn,
		forwarder:  forwarder,
		quarantine: quarantine,
		pipeline:   pipeline,
		sanitizer:  sanitize.New(),
	}
}

// Intercept handles one host-to-downstream request and returns the raw
// response bytes to write back to the host. It is the façade's single
// entry point, generalizing the teacher's UpstreamRouter.Intercept from
// "route to the right upstream" to "filter by approval state, serve
// built-ins locally, forward and guardrail-scan the rest."
//
// Intercept only handles messages flowing HostToDownstream; responses and
// notifications arriving DownstreamToHost are the wrapper session's
// concern (they pass straight through, aside from ANSI sanitization
// already applied by the guardrail pipeline on tool responses).
func (s *Server) Intercept(ctx context.Context, msg *mcpwire.Message) []byte {
	if msg.Direction != mcpwire.HostToDownstream || !msg.IsRequest() {
		return msg.Raw
	}

	req := msg.Request()
	rawID := msg.RawID()

	switch req.Method {
	case "initialize":
		return s.handleInitialize(rawID)
	case "notifications/initialized":
		return msg.Raw
	case "tools/list":
		return s.handleToolsList(rawID)
	case "tools/call":
		return s.handleToolsCall(ctx, rawID, msg)
	case "prompts/list", "prompts/get", "resources/list", "resources/read", "resources/templates/list":
		return s.handleGatedForward(ctx, rawID, msg)
	default:
		return s.forwardRaw(ctx, rawID, msg)
	}
}

func (s *Server) handleInitialize(rawID json.RawMessage) []byte {
	st := s.state()

	result := map[string]interface{}{
		"protocolVersion": "2025-06-18",
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{"listChanged": true},
		},
		"serverInfo": map[string]interface{}{
			"name":    ServerName,
			"version": ServerVersion,
		},
	}
	switch st.Evaluation.OverallState {
	case approval.BlockedAll:
		result["instructions"] = configInstructionsText
	case approval.FullyApproved, approval.Partial:
		if st.Snapshot.Instructions != nil {
			result["instructions"] = s.sanitizer.Sanitize(*st.Snapshot.Instructions, s.ansiMode)
		}
	}

	raw, err := buildResultResponse(rawID, result)
	if err != nil {
		return buildErrorResponse(rawID, ErrCodeInternal, "internal error")
	}
	return raw
}

type toolEntry struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"inputSchema"`
}

type toolsListResult struct {
	Tools []toolEntry `json:"tools"`
}

// handleToolsList returns only the tools the current evaluation approves,
// plus the always-available built-ins. A blocked tool leaves no trace:
// its name, description, and schema are all omitted, not merely its
// callability.
func (s *Server) handleToolsList(rawID json.RawMessage) []byte {
	st := s.state()

	entries := []toolEntry{
		{Name: ToolConfigInstructions, Description: configInstructionsDescription, InputSchema: emptyObjectSchema()},
		{Name: ToolQuarantineRelease, Description: quarantineReleaseDescription, InputSchema: quarantineReleaseSchema()},
	}

	names := make([]string, 0, len(st.Snapshot.Tools))
	for name := range st.Snapshot.Tools {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if isReservedName(name) {
			continue // shadowed: a downstream tool cannot impersonate a built-in
		}
		if !st.Evaluation.IsToolVisible(name) {
			continue
		}
		tool := st.Snapshot.Tools[name]
		entries = append(entries, toolEntry{
			Name:        tool.Name,
			Description: s.sanitizer.Sanitize(tool.Description, s.ansiMode),
			InputSchema: tool.InputSchema,
		})
	}

	raw, err := buildResultResponse(rawID, toolsListResult{Tools: entries})
	if err != nil {
		return buildErrorResponse(rawID, ErrCodeInternal, "internal error")
	}
	return raw
}

// handleToolsCall dispatches a tools/call: built-ins locally, approved
// downstream tools forwarded and guardrail-scanned, everything else
// (unapproved or genuinely unknown) rejected with the uniform blocked
// error.
func (s *Server) handleToolsCall(ctx context.Context, rawID json.RawMessage, msg *mcpwire.Message) []byte {
	name := msg.ToolName()

	switch name {
	case ToolConfigInstructions:
		return s.callConfigInstructions(rawID)
	case ToolQuarantineRelease:
		return s.callQuarantineRelease(ctx, rawID, msg)
	}

	st := s.state()
	if isReservedName(name) || !st.Evaluation.IsToolVisible(name) {
		s.recordToolCall("blocked")
		return buildBlockedResponse(rawID)
	}

	respRaw, err := s.forwarder.Forward(ctx, msg.Raw)
	if err != nil {
		return buildErrorResponse(rawID, ErrCodeDownstreamGone, "Downstream server unavailable")
	}

	out, quarantined := s.scanToolResponse(ctx, st.Identity, name, msg, respRaw)
	if quarantined {
		s.recordToolCall("quarantined")
	} else {
		s.recordToolCall("forwarded")
	}
	return out
}

// scanToolResponse runs a downstream tool response's text content through
// the guardrail pipeline before handing it back to the host, replacing it
// with a quarantine notice if flagged suspicious.
func (s *Server) scanToolResponse(ctx context.Context, identity config.Identity, toolName string, reqMsg *mcpwire.Message, respRaw []byte) ([]byte, bool) {
	if s.pipeline == nil {
		return respRaw, false
	}

	var decoded struct {
		Result json.RawMessage `json:"result"`
		Error  json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(respRaw, &decoded); err != nil || decoded.Error != nil || len(decoded.Result) == 0 {
		return respRaw, false
	}

	var resultBody struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(decoded.Result, &resultBody); err != nil || len(resultBody.Content) == 0 {
		return respRaw, false
	}

	var requestArgsJSON json.RawMessage
	if params := reqMsg.ParseParams(); params != nil {
		if args, ok := params["arguments"]; ok {
			requestArgsJSON, _ = json.Marshal(args)
		}
	}

	changed := false
	quarantined := false
	for i, block := range resultBody.Content {
		if block.Type != "text" {
			continue
		}
		result, err := s.pipeline.Process(ctx, identity, toolName, requestArgsJSON, block.Text, decoded.Result)
		if err != nil {
			continue
		}
		if result.Quarantined {
			quarantined = true
		}
		if result.Text != block.Text {
			resultBody.Content[i].Text = result.Text
			changed = true
		}
	}
	if !changed {
		return respRaw, false
	}

	newResult, err := json.Marshal(resultBody)
	if err != nil {
		return respRaw, false
	}
	var frame map[string]json.RawMessage
	if err := json.Unmarshal(respRaw, &frame); err != nil {
		return respRaw, false
	}
	frame["result"] = newResult
	out, err := json.Marshal(frame)
	if err != nil {
		return respRaw, false
	}
	return out, quarantined
}

// handleGatedForward forwards prompts/resources methods only when the
// server is fully approved — any drift or pending tool approval blocks
// these surfaces entirely, since they are not subject to per-item granular
// approval.
func (s *Server) handleGatedForward(ctx context.Context, rawID json.RawMessage, msg *mcpwire.Message) []byte {
	st := s.state()
	if st.Evaluation.OverallState != approval.FullyApproved {
		return buildBlockedResponse(rawID)
	}
	return s.forwardRaw(ctx, rawID, msg)
}

func (s *Server) forwardRaw(ctx context.Context, rawID json.RawMessage, msg *mcpwire.Message) []byte {
	respRaw, err := s.forwarder.Forward(ctx, msg.Raw)
	if err != nil {
		return buildErrorResponse(rawID, ErrCodeDownstreamGone, "Downstream server unavailable")
	}
	return respRaw
}

func isReservedName(name string) bool {
	return name == ToolConfigInstructions || name == ToolQuarantineRelease
}

func (s *Server) recordToolCall(disposition string) {
	if s.metrics != nil {
		s.metrics.ToolCallsTotal.WithLabelValues(disposition).Inc()
	}
}

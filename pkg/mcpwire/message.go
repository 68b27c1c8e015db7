// Package mcpwire provides MCP message types and JSON-RPC codec utilities
// for the context-protector wrapper.
package mcpwire

import (
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// Direction indicates the flow direction of a message through the wrapper.
type Direction int

const (
	// HostToDownstream indicates a message flowing from the MCP host to the
	// downstream server.
	HostToDownstream Direction = iota
	// DownstreamToHost indicates a message flowing from the downstream
	// server back to the MCP host.
	DownstreamToHost
)

// String returns the string representation of the Direction.
func (d Direction) String() string {
	switch d {
	case HostToDownstream:
		return "host->downstream"
	case DownstreamToHost:
		return "downstream->host"
	default:
		return "unknown"
	}
}

// Message wraps a decoded JSON-RPC message with wrapper metadata. It stores
// both the raw bytes (for efficient passthrough) and the decoded message
// (for evaluation/guardrail inspection).
type Message struct {
	// Raw contains the original bytes of the message, newline stripped.
	Raw []byte

	// Direction indicates whether this message is flowing from the host to
	// the downstream server or back.
	Direction Direction

	// Decoded contains the parsed JSON-RPC message. May be nil if parsing
	// failed but passthrough is still desired. The concrete type is either
	// *jsonrpc.Request or *jsonrpc.Response.
	Decoded jsonrpc.Message

	// Timestamp records when the message was received by the wrapper.
	Timestamp time.Time

	// ParsedParams caches the parsed request params across pipeline stages.
	ParsedParams map[string]interface{}
}

// IsRequest returns true if the message is a JSON-RPC request.
func (m *Message) IsRequest() bool {
	if m.Decoded == nil {
		return false
	}
	_, ok := m.Decoded.(*jsonrpc.Request)
	return ok
}

// IsResponse returns true if the message is a JSON-RPC response.
func (m *Message) IsResponse() bool {
	if m.Decoded == nil {
		return false
	}
	_, ok := m.Decoded.(*jsonrpc.Response)
	return ok
}

// Method returns the method name if this is a request, empty string
// otherwise.
func (m *Message) Method() string {
	req := m.Request()
	if req == nil {
		return ""
	}
	return req.Method
}

// IsToolCall returns true if this is a tools/call request.
func (m *Message) IsToolCall() bool {
	return m.Method() == "tools/call"
}

// Request returns the underlying Request if this is a request message.
func (m *Message) Request() *jsonrpc.Request {
	if m.Decoded == nil {
		return nil
	}
	req, _ := m.Decoded.(*jsonrpc.Request)
	return req
}

// Response returns the underlying Response if this is a response message.
func (m *Message) Response() *jsonrpc.Response {
	if m.Decoded == nil {
		return nil
	}
	resp, _ := m.Decoded.(*jsonrpc.Response)
	return resp
}

// ParseParams parses the request params and caches them in ParsedParams.
// Safe to call multiple times.
func (m *Message) ParseParams() map[string]interface{} {
	if m.ParsedParams != nil {
		return m.ParsedParams
	}

	req := m.Request()
	if req == nil || req.Params == nil {
		return nil
	}

	var params map[string]interface{}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil
	}

	m.ParsedParams = params
	return params
}

// ToolName returns the "name" param of a tools/call request, or "" if this
// message is not a tools/call.
func (m *Message) ToolName() string {
	if !m.IsToolCall() {
		return ""
	}
	params := m.ParseParams()
	if params == nil {
		return ""
	}
	name, _ := params["name"].(string)
	return name
}

// RawID extracts the request ID from the raw message bytes as a
// json.RawMessage. The SDK's jsonrpc.ID type does not marshal correctly
// through interface{}, so the ID is re-extracted directly from the raw JSON
// rather than from the decoded struct.
func (m *Message) RawID() json.RawMessage {
	if m.Raw == nil {
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(m.Raw, &raw); err != nil {
		return nil
	}
	return raw["id"]
}

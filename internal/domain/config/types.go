// Package config holds the server-configuration data model the wrapper
// compares against persisted approval state: server identity, the tool
// surface a downstream advertises, and the canonicalization/diff/hash
// operations used to detect drift.
package config

// ServerKind identifies how a downstream server is addressed.
type ServerKind string

const (
	KindStdio ServerKind = "stdio"
	KindSSE   ServerKind = "sse"
	KindHTTP  ServerKind = "http"
)

// Identity is the unique key into the approval store: a (kind, locator)
// pair compared byte-exact. The locator is the exact command string for
// stdio servers or the exact URL for sse/http servers. A host-side nickname
// is never part of identity.
type Identity struct {
	Kind    ServerKind `json:"kind"`
	Locator string     `json:"locator"`
}

// ToolSpec is one downstream tool's advertised surface.
type ToolSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	// InputSchema is the raw JSON-Schema document as decoded from the
	// downstream's tools/list response (map[string]interface{}, []interface{},
	// string, json.Number, bool, or nil at any depth).
	InputSchema interface{} `json:"input_schema"`
}

// Snapshot is the live configuration surface fetched from a downstream
// server at a point in time: its instructions text (nil means absent, as
// opposed to an explicit empty string) and its current tool set keyed by
// name. Ordering among tools is not significant.
type Snapshot struct {
	Instructions *string
	Tools        map[string]ToolSpec
}

// NewSnapshot builds a Snapshot from an instructions pointer and an
// unordered tool slice, keying tools by name.
func NewSnapshot(instructions *string, tools []ToolSpec) Snapshot {
	m := make(map[string]ToolSpec, len(tools))
	for _, t := range tools {
		m[t.Name] = t
	}
	return Snapshot{Instructions: instructions, Tools: m}
}

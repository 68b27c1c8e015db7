package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// absentInstructionsSentinel is hashed in place of instructions when a
// downstream server declares none at all, keeping "absent" distinguishable
// from "explicit empty string" (which hashes the empty canonical text).
const absentInstructionsSentinel = "\x00mcp-context-protector:instructions-absent\x00"

// CanonicalText applies the text canonicalization rule shared by
// instructions and tool descriptions: compare as a raw byte string after
// stripping exactly one trailing newline.
func CanonicalText(s string) string {
	return strings.TrimSuffix(s, "\n")
}

// CanonicalSchemaBytes normalizes a decoded JSON-Schema document and
// re-serializes it deterministically:
//   - object keys are sorted lexicographically at every depth (handled by
//     encoding/json, which always sorts map[string]interface{} keys),
//   - the "required" array is represented as a sorted, deduplicated array,
//   - all other arrays (enum, oneOf, anyOf, allOf, properties *values*)
//     keep their declared order,
//   - numeric literal form is preserved by round-tripping through
//     json.Number rather than float64; callers that decode a downstream's
//     tools/list response MUST use a json.Decoder with UseNumber() so that
//     "1" and "1.0" remain distinguishable here.
func CanonicalSchemaBytes(schema interface{}) ([]byte, error) {
	return json.Marshal(normalizeSchema(schema))
}

func normalizeSchema(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, vv := range val {
			if k == "required" {
				out[k] = normalizeRequired(vv)
				continue
			}
			out[k] = normalizeSchema(vv)
		}
		return out
	case []interface{}:
		arr := make([]interface{}, len(val))
		for i, vv := range val {
			arr[i] = normalizeSchema(vv)
		}
		return arr
	default:
		return val
	}
}

func normalizeRequired(v interface{}) interface{} {
	arr, ok := v.([]interface{})
	if !ok {
		return v
	}
	seen := make(map[string]bool, len(arr))
	strs := make([]string, 0, len(arr))
	for _, e := range arr {
		s, ok := e.(string)
		if !ok || seen[s] {
			continue
		}
		seen[s] = true
		strs = append(strs, s)
	}
	sort.Strings(strs)
	out := make([]interface{}, len(strs))
	for i, s := range strs {
		out[i] = s
	}
	return out
}

// HashTool computes the SHA-256 hex digest of the canonical JSON
// serialization of [name, description, normalized_schema], operating on
// unsanitized bytes so toggling ANSI escapes in a description changes the
// hash (sanitization happens only on the host-bound read path).
func HashTool(t ToolSpec) (string, error) {
	schemaBytes, err := CanonicalSchemaBytes(t.InputSchema)
	if err != nil {
		return "", err
	}
	var schemaRaw json.RawMessage = schemaBytes
	triple := []interface{}{t.Name, CanonicalText(t.Description), schemaRaw}
	b, err := json.Marshal(triple)
	if err != nil {
		return "", err
	}
	return hashBytes(b), nil
}

// HashInstructions computes the SHA-256 hex digest of the canonical
// instructions text, or a fixed sentinel digest if instructions are absent
// entirely (nil pointer) as opposed to an explicit empty string.
func HashInstructions(instructions *string) string {
	if instructions == nil {
		return hashBytes([]byte(absentInstructionsSentinel))
	}
	return hashBytes([]byte(CanonicalText(*instructions)))
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

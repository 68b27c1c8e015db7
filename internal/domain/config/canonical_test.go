package config

import (
	"encoding/json"
	"strings"
	"testing"
)

func decodeSchema(t *testing.T, s string) interface{} {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		t.Fatalf("decode schema: %v", err)
	}
	return v
}

func TestCanonicalSchemaBytes_RequiredSortedDeduped(t *testing.T) {
	a := decodeSchema(t, `{"type":"object","required":["b","a","b"],"properties":{"a":{"type":"string"},"b":{"type":"number"}}}`)
	bBytes, err := CanonicalSchemaBytes(a)
	if err != nil {
		t.Fatal(err)
	}
	c := decodeSchema(t, `{"required":["a","b"],"type":"object","properties":{"a":{"type":"string"},"b":{"type":"number"}}}`)
	cBytes, err := CanonicalSchemaBytes(c)
	if err != nil {
		t.Fatal(err)
	}
	if string(bBytes) != string(cBytes) {
		t.Fatalf("expected equal canonical bytes, got %s vs %s", bBytes, cBytes)
	}
}

func TestCanonicalSchemaBytes_PreservesNumericLiteralForm(t *testing.T) {
	a := decodeSchema(t, `{"minimum":1}`)
	b := decodeSchema(t, `{"minimum":1.0}`)
	aBytes, _ := CanonicalSchemaBytes(a)
	bBytes, _ := CanonicalSchemaBytes(b)
	if string(aBytes) == string(bBytes) {
		t.Fatalf("expected 1 and 1.0 to hash/serialize differently, got identical %s", aBytes)
	}
}

func TestCanonicalSchemaBytes_PreservesEnumOrder(t *testing.T) {
	a := decodeSchema(t, `{"enum":["c","a","b"]}`)
	b := decodeSchema(t, `{"enum":["a","b","c"]}`)
	aBytes, _ := CanonicalSchemaBytes(a)
	bBytes, _ := CanonicalSchemaBytes(b)
	if string(aBytes) == string(bBytes) {
		t.Fatalf("expected enum order to be preserved (different), got identical")
	}
}

func TestHashInstructions_AbsentVsEmptyDistinct(t *testing.T) {
	empty := ""
	if HashInstructions(nil) == HashInstructions(&empty) {
		t.Fatal("absent and explicit-empty instructions must hash differently")
	}
}

func TestHashInstructions_TrailingNewlineStripped(t *testing.T) {
	a := "hello"
	b := "hello\n"
	if HashInstructions(&a) != HashInstructions(&b) {
		t.Fatal("a single trailing newline must not affect the instructions hash")
	}
}

func TestHashTool_ANSIChangesHash(t *testing.T) {
	clean := ToolSpec{Name: "echo", Description: "echoes input", InputSchema: map[string]interface{}{"type": "object"}}
	dirty := ToolSpec{Name: "echo", Description: "echoes input\x1b[31m", InputSchema: map[string]interface{}{"type": "object"}}
	h1, err := HashTool(clean)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := HashTool(dirty)
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Fatal("expected ANSI-laden description to change the hash (hashing precedes sanitization)")
	}
}

func TestHashTool_StableUnderMapKeyReordering(t *testing.T) {
	a := decodeSchema(t, `{"type":"object","properties":{"x":{"type":"string"},"y":{"type":"number"}}}`)
	b := decodeSchema(t, `{"properties":{"y":{"type":"number"},"x":{"type":"string"}},"type":"object"}`)
	t1 := ToolSpec{Name: "t", Description: "d", InputSchema: a}
	t2 := ToolSpec{Name: "t", Description: "d", InputSchema: b}
	h1, _ := HashTool(t1)
	h2, _ := HashTool(t2)
	if h1 != h2 {
		t.Fatal("object key order must not affect the tool hash")
	}
}

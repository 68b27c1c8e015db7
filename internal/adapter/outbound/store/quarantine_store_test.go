package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/trailofbits/mcp-context-protector/internal/domain/config"
	"github.com/trailofbits/mcp-context-protector/internal/domain/guardrail"
)

func TestFileQuarantineStore_AppendGetRelease(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quarantine.json")
	s := NewFileQuarantineStore(path, nil)

	entry := guardrail.QuarantineEntry{
		ID:             "abc",
		ServerIdentity: config.Identity{Kind: config.KindStdio, Locator: "x"},
		ToolName:       "echo",
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.Append(entry); err != nil {
		t.Fatal(err)
	}

	got, ok, err := s.Get("abc")
	if err != nil || !ok {
		t.Fatalf("expected to find entry, ok=%v err=%v", ok, err)
	}
	if got.Released {
		t.Fatal("expected not released initially")
	}

	if err := s.Release("abc"); err != nil {
		t.Fatal(err)
	}
	got, _, _ = s.Get("abc")
	if !got.Released {
		t.Fatal("expected released after Release")
	}

	// Idempotent: releasing again must not error.
	if err := s.Release("abc"); err != nil {
		t.Fatalf("expected idempotent release, got %v", err)
	}
}

func TestFileQuarantineStore_ReleaseUnknownErrors(t *testing.T) {
	dir := t.TempDir()
	s := NewFileQuarantineStore(filepath.Join(dir, "quarantine.json"), nil)
	if err := s.Release("nonexistent"); err != ErrQuarantineEntryNotFound {
		t.Fatalf("expected ErrQuarantineEntryNotFound, got %v", err)
	}
}

func TestFileQuarantineStore_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quarantine.json")
	s1 := NewFileQuarantineStore(path, nil)
	entry := guardrail.QuarantineEntry{ID: "xyz", ToolName: "sum", CreatedAt: time.Now().UTC()}
	if err := s1.Append(entry); err != nil {
		t.Fatal(err)
	}

	s2 := NewFileQuarantineStore(path, nil)
	got, ok, err := s2.Get("xyz")
	if err != nil || !ok {
		t.Fatalf("expected persisted entry, ok=%v err=%v", ok, err)
	}
	if got.ToolName != "sum" {
		t.Fatalf("got %+v", got)
	}
}

package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/trailofbits/mcp-context-protector/internal/domain/approval"
	"github.com/trailofbits/mcp-context-protector/internal/domain/config"
)

func TestFileApprovalStore_LoadMissingFileReturnsUnknown(t *testing.T) {
	dir := t.TempDir()
	s := NewFileApprovalStore(filepath.Join(dir, "servers.json"), nil)
	rec, ok, err := s.Load(config.Identity{Kind: config.KindStdio, Locator: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if ok || rec != nil {
		t.Fatal("expected unknown for missing file")
	}
}

func TestFileApprovalStore_SaveThenLoadRoundtrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "servers.json")
	s := NewFileApprovalStore(path, nil)

	id := config.Identity{Kind: config.KindStdio, Locator: "echo-server"}
	rec := approval.NewRecord(id, time.Now())
	rec.InstructionsHash = "abc123"
	rec.ToolHashes["echo"] = "deadbeef"

	if err := s.Save(rec); err != nil {
		t.Fatal(err)
	}

	// Fresh store instance forces a reload from disk.
	s2 := NewFileApprovalStore(path, nil)
	loaded, ok, err := s2.Load(id)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected record to be found")
	}
	if loaded.InstructionsHash != "abc123" || loaded.ToolHashes["echo"] != "deadbeef" {
		t.Fatalf("roundtrip mismatch: %+v", loaded)
	}

	if info, err := os.Stat(path); err != nil || info.Mode().Perm() != 0600 {
		t.Fatalf("expected 0600 permissions, got %v, err %v", info, err)
	}
}

func TestFileApprovalStore_Forget(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "servers.json")
	s := NewFileApprovalStore(path, nil)
	id := config.Identity{Kind: config.KindStdio, Locator: "x"}
	rec := approval.NewRecord(id, time.Now())
	if err := s.Save(rec); err != nil {
		t.Fatal(err)
	}
	if err := s.Forget(id); err != nil {
		t.Fatal(err)
	}
	_, ok, err := s.Load(id)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected record to be gone after forget")
	}
}

func TestFileApprovalStore_NoTempFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "servers.json")
	s := NewFileApprovalStore(path, nil)
	rec := approval.NewRecord(config.Identity{Kind: config.KindStdio, Locator: "x"}, time.Now())
	if err := s.Save(rec); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("expected no leftover .tmp file after a successful save")
	}
}

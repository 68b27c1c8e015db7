package approval

import (
	"testing"
	"time"

	"github.com/trailofbits/mcp-context-protector/internal/domain/config"
)

func strptr(s string) *string { return &s }

func echoTool() config.ToolSpec {
	return config.ToolSpec{Name: "echo", Description: "echoes input", InputSchema: map[string]interface{}{"type": "object"}}
}

func TestEvaluate_FirstContact_NoRecord(t *testing.T) {
	snap := config.NewSnapshot(strptr("hi"), []config.ToolSpec{echoTool()})
	eval := Evaluate(nil, snap)
	if eval.OverallState != BlockedAll {
		t.Fatalf("expected blocked_all on first contact, got %v", eval.OverallState)
	}
	if eval.ToolStates["echo"] != ToolNew {
		t.Fatalf("expected echo=new, got %v", eval.ToolStates["echo"])
	}
}

func TestEvaluate_FullyApproved(t *testing.T) {
	snap := config.NewSnapshot(strptr("hi"), []config.ToolSpec{echoTool()})
	rec := NewRecord(config.Identity{Kind: config.KindStdio, Locator: "x"}, time.Now())
	if err := rec.ApproveAll(snap, time.Now()); err != nil {
		t.Fatal(err)
	}
	eval := Evaluate(rec, snap)
	if eval.OverallState != FullyApproved {
		t.Fatalf("expected fully_approved, got %v", eval.OverallState)
	}
	if !eval.IsToolVisible("echo") {
		t.Fatal("expected echo visible")
	}
}

func TestEvaluate_ToolRemovalDoesNotBlockRemaining(t *testing.T) {
	sum := config.ToolSpec{Name: "sum", Description: "adds", InputSchema: map[string]interface{}{"type": "object"}}
	full := config.NewSnapshot(strptr("hi"), []config.ToolSpec{echoTool(), sum})
	rec := NewRecord(config.Identity{Kind: config.KindStdio, Locator: "x"}, time.Now())
	if err := rec.ApproveAll(full, time.Now()); err != nil {
		t.Fatal(err)
	}

	reduced := config.NewSnapshot(strptr("hi"), []config.ToolSpec{echoTool()})
	eval := Evaluate(rec, reduced)
	if eval.OverallState != FullyApproved {
		t.Fatalf("expected fully_approved after tool removal, got %v", eval.OverallState)
	}
	if eval.ToolStates["echo"] != ToolApproved {
		t.Fatal("expected echo to remain approved after sum was removed")
	}
}

func TestEvaluate_ToolAdditionIsBlockedNotPassthrough(t *testing.T) {
	base := config.NewSnapshot(strptr("hi"), []config.ToolSpec{echoTool()})
	rec := NewRecord(config.Identity{Kind: config.KindStdio, Locator: "x"}, time.Now())
	if err := rec.ApproveAll(base, time.Now()); err != nil {
		t.Fatal(err)
	}

	sum := config.ToolSpec{Name: "sum", Description: "adds", InputSchema: map[string]interface{}{"type": "object"}}
	grown := config.NewSnapshot(strptr("hi"), []config.ToolSpec{echoTool(), sum})
	eval := Evaluate(rec, grown)
	if eval.OverallState != Partial {
		t.Fatalf("expected partial, got %v", eval.OverallState)
	}
	if eval.ToolStates["sum"] != ToolNew {
		t.Fatalf("expected sum=new (blocked), got %v", eval.ToolStates["sum"])
	}
	if eval.ToolStates["echo"] != ToolApproved {
		t.Fatal("expected echo to remain approved")
	}
}

func TestEvaluate_ToolModificationDriftsOnlyThatTool(t *testing.T) {
	sum := config.ToolSpec{Name: "sum", Description: "adds", InputSchema: map[string]interface{}{"type": "object"}}
	snap := config.NewSnapshot(strptr("hi"), []config.ToolSpec{echoTool(), sum})
	rec := NewRecord(config.Identity{Kind: config.KindStdio, Locator: "x"}, time.Now())
	if err := rec.ApproveAll(snap, time.Now()); err != nil {
		t.Fatal(err)
	}

	modifiedEcho := echoTool()
	modifiedEcho.Description = "echoes input LOUDLY"
	changed := config.NewSnapshot(strptr("hi"), []config.ToolSpec{modifiedEcho, sum})
	eval := Evaluate(rec, changed)

	if eval.ToolStates["echo"] != ToolDrift {
		t.Fatalf("expected echo=drift, got %v", eval.ToolStates["echo"])
	}
	if eval.ToolStates["sum"] != ToolApproved {
		t.Fatalf("expected sum to remain approved, got %v", eval.ToolStates["sum"])
	}
	if eval.OverallState != Partial {
		t.Fatalf("expected partial, got %v", eval.OverallState)
	}
}

func TestEvaluate_InstructionsChangeBlocksEverythingRegardlessOfTools(t *testing.T) {
	snap := config.NewSnapshot(strptr("hi"), []config.ToolSpec{echoTool()})
	rec := NewRecord(config.Identity{Kind: config.KindStdio, Locator: "x"}, time.Now())
	if err := rec.ApproveAll(snap, time.Now()); err != nil {
		t.Fatal(err)
	}

	mutated := config.NewSnapshot(strptr("hI"), []config.ToolSpec{echoTool()})
	eval := Evaluate(rec, mutated)
	if eval.OverallState != BlockedAll {
		t.Fatalf("expected blocked_all on instructions drift, got %v", eval.OverallState)
	}
	if eval.ToolStates["echo"] != ToolApproved {
		t.Fatal("tool-level state is still computed independently even though overall is blocked")
	}
}

func TestEvaluate_ToolOrderDoesNotAffectResult(t *testing.T) {
	a := config.ToolSpec{Name: "a", Description: "a", InputSchema: map[string]interface{}{"type": "object"}}
	b := config.ToolSpec{Name: "b", Description: "b", InputSchema: map[string]interface{}{"type": "object"}}

	snap1 := config.NewSnapshot(nil, []config.ToolSpec{a, b})
	snap2 := config.NewSnapshot(nil, []config.ToolSpec{b, a})

	rec := NewRecord(config.Identity{Kind: config.KindStdio, Locator: "x"}, time.Now())
	if err := rec.ApproveAll(snap1, time.Now()); err != nil {
		t.Fatal(err)
	}

	eval1 := Evaluate(rec, snap1)
	eval2 := Evaluate(rec, snap2)
	if eval1.OverallState != eval2.OverallState {
		t.Fatalf("snapshot tool order must not affect evaluation: %v vs %v", eval1.OverallState, eval2.OverallState)
	}
}

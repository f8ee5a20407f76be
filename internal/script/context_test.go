package script

import (
	"strings"
	"testing"

	lua "github.com/yuin/gopher-lua"
)

func TestDoStringExecutesAndSetsGlobal(t *testing.T) {
	ctx := NewContext(nil)
	defer ctx.Close()

	if err := ctx.DoString("chunk", "answer = 1 + 41"); err != nil {
		t.Fatalf("DoString failed: %v", err)
	}

	got := ctx.VM().GetGlobal("answer")
	if n, ok := got.(lua.LNumber); !ok || float64(n) != 42 {
		t.Fatalf("expected global answer == 42, got %v", got)
	}
}

func TestDoStringRunsThroughPreprocessor(t *testing.T) {
	ctx := NewContext(nil)
	defer ctx.Close()

	ctx.Preprocess = func(name, source string) (string, error) {
		return strings.ReplaceAll(source, "PLACEHOLDER", "7"), nil
	}

	if err := ctx.DoString("chunk", "answer = PLACEHOLDER"); err != nil {
		t.Fatalf("DoString failed: %v", err)
	}

	if n, ok := ctx.VM().GetGlobal("answer").(lua.LNumber); !ok || float64(n) != 7 {
		t.Fatal("expected preprocessor rewrite to take effect before execution")
	}
}

func TestBeginEndScopeTracksRefs(t *testing.T) {
	ctx := NewContext(nil)
	defer ctx.Close()

	if ctx.ScopeDepth() != 1 {
		t.Fatalf("expected root scope depth 1, got %d", ctx.ScopeDepth())
	}

	ctx.BeginScope()
	ref := ctx.NewRef(lua.LString("hello"))
	if ctx.ScopeDepth() != 2 {
		t.Fatal("expected scope depth 2 after BeginScope")
	}

	ctx.EndScope()
	if ctx.ScopeDepth() != 1 {
		t.Fatal("expected scope depth back to 1 after EndScope")
	}
	if ref.Value().String() != "hello" {
		t.Fatal("expected ref's value to remain intact after its scope ends")
	}
}

func TestEndScopeNeverPopsRoot(t *testing.T) {
	ctx := NewContext(nil)
	defer ctx.Close()

	ctx.EndScope()
	ctx.EndScope()

	if ctx.ScopeDepth() != 1 {
		t.Fatal("expected EndScope on the root scope to be a no-op")
	}
}

func TestUnrefRemovesRefBeforeScopeEnds(t *testing.T) {
	ctx := NewContext(nil)
	defer ctx.Close()

	ctx.BeginScope()
	ctx.Promote(ctx.NewRef(lua.LString("kept"))) // lives in scope 0
	ref := ctx.NewRef(lua.LString("dropped"))     // lives in scope 1
	if len(ctx.scopes[1].refs) != 1 {
		t.Fatal("expected ref recorded in the current scope")
	}

	ctx.Unref(ref)
	if len(ctx.scopes[1].refs) != 0 {
		t.Fatal("expected Unref to remove the ref from its scope immediately")
	}
	if len(ctx.scopes[0].refs) != 1 {
		t.Fatal("expected the promoted ref to be unaffected by Unref")
	}
}

func TestPromoteMovesRefToOuterScope(t *testing.T) {
	ctx := NewContext(nil)
	defer ctx.Close()

	ctx.BeginScope() // depth 2
	ctx.BeginScope() // depth 3
	ref := ctx.NewRef(lua.LString("promoted"))

	ctx.Promote(ref)
	if len(ctx.scopes[2].refs) != 0 {
		t.Fatal("expected ref removed from the scope it was promoted out of")
	}
	if len(ctx.scopes[1].refs) != 1 {
		t.Fatal("expected ref moved into the scope below")
	}

	ctx.EndScope() // pop depth-3 scope; ref must survive since it was promoted
	if ref.Value().String() != "promoted" {
		t.Fatal("expected promoted ref to survive its original scope's end")
	}
}

package script

import (
	"strings"
	"testing"

	lua "github.com/yuin/gopher-lua"

	"github.com/keystone-engine/keystone/internal/reflectinfo"
)

func TestOverloadDispatchPicksMatchingCandidateByArity(t *testing.T) {
	ctx := NewContext(nil)
	defer ctx.Close()

	set := NewOverloadSet()
	set.Add(Candidate{
		Args: []reflectinfo.Semantic{reflectinfo.SemanticFloat64},
		Fn: func(L *lua.LState, in *instance) int {
			L.Push(lua.LString("one-arg"))
			return 1
		},
	})
	set.Add(Candidate{
		Args: []reflectinfo.Semantic{reflectinfo.SemanticFloat64, reflectinfo.SemanticFloat64},
		Fn: func(L *lua.LState, in *instance) int {
			L.Push(lua.LString("two-arg"))
			return 1
		},
	})

	ctx.VM().SetGlobal("dispatch", ctx.VM().NewFunction(set.Dispatch(ctx)))

	if err := ctx.DoString("t", "result = dispatch(1, 2)"); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if got := ctx.VM().GetGlobal("result"); got.String() != "two-arg" {
		t.Fatalf("expected the two-arg overload to win, got %v", got)
	}

	if err := ctx.DoString("t", "result = dispatch(1)"); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if got := ctx.VM().GetGlobal("result"); got.String() != "one-arg" {
		t.Fatalf("expected the one-arg overload to win, got %v", got)
	}
}

func TestOverloadDispatchRejectsTypeMismatch(t *testing.T) {
	ctx := NewContext(nil)
	defer ctx.Close()

	set := NewOverloadSet()
	set.Add(Candidate{
		Args: []reflectinfo.Semantic{reflectinfo.SemanticCString},
		Fn: func(L *lua.LState, in *instance) int {
			L.Push(lua.LBool(true))
			return 1
		},
	})

	ctx.VM().SetGlobal("wantsString", ctx.VM().NewFunction(set.Dispatch(ctx)))

	err := ctx.DoString("t", "wantsString(123)")
	if err == nil {
		t.Fatal("expected dispatch to raise on a total signature mismatch")
	}
}

func TestOverloadDispatchWithNoCandidatesReportsNoCandidates(t *testing.T) {
	ctx := NewContext(nil)
	defer ctx.Close()

	set := NewOverloadSet()
	ctx.VM().SetGlobal("empty", ctx.VM().NewFunction(set.Dispatch(ctx)))

	err := ctx.DoString("t", "empty(1, 2)")
	if err == nil {
		t.Fatal("expected dispatch on an empty overload set to raise")
	}
	if !strings.Contains(err.Error(), "(no candidates)") {
		t.Fatalf("expected error to contain \"(no candidates)\", got %q", err.Error())
	}
}

func TestAcceptsSemanticRules(t *testing.T) {
	cases := []struct {
		sem reflectinfo.Semantic
		v   lua.LValue
		ok  bool
	}{
		{reflectinfo.SemanticBool, lua.LBool(true), true},
		{reflectinfo.SemanticBool, lua.LNumber(1), false},
		{reflectinfo.SemanticInt32, lua.LNumber(1), true},
		{reflectinfo.SemanticCString, lua.LString("x"), true},
		{reflectinfo.SemanticCString, lua.LNumber(1), false},
		{reflectinfo.SemanticAny, lua.LNil, true},
	}
	for _, c := range cases {
		if got := acceptsSemantic(c.sem, c.v); got != c.ok {
			t.Errorf("acceptsSemantic(%v, %v) = %v, want %v", c.sem, c.v, got, c.ok)
		}
	}
}

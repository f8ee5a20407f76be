package script

import (
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/keystone-engine/keystone/internal/reflectinfo"
)

// DispatchMode selects how an OverloadSet locates its first real argument
// and, for constructors, how it obtains the instance a matched candidate
// initializes.
type DispatchMode int

const (
	// DispatchNormal is a free function: every stack slot is an argument.
	DispatchNormal DispatchMode = iota
	// DispatchMethod skips slot 1 (self) when counting arguments.
	DispatchMethod
	// DispatchConstructor skips slot 1 (the usertype's module table, Lua's
	// implicit first argument to a __call metamethod) and allocates the
	// instance block before invoking the matched candidate.
	DispatchConstructor
)

// Candidate is one overload: its declared argument signature and the
// function to run once that signature is matched. in is non-nil only in
// constructor mode, where it is the freshly allocated instance to
// initialize.
type Candidate struct {
	Args []reflectinfo.Semantic
	Fn   func(L *lua.LState, in *instance) int
}

// OverloadSet is the dispatcher described in the scripting spec: a table of
// candidates tried in declaration order, the first whose signature length
// and per-argument type acceptance both match wins.
type OverloadSet struct {
	mode         DispatchMode
	typeName     string
	instanceSize uintptr
	candidates   []Candidate
}

// NewOverloadSet creates an empty, DispatchNormal overload set.
func NewOverloadSet() *OverloadSet {
	return &OverloadSet{}
}

// Add appends a candidate and returns the set for chaining.
func (s *OverloadSet) Add(c Candidate) *OverloadSet {
	s.candidates = append(s.candidates, c)
	return s
}

// Dispatch installs this set as the body of an ordinary LGFunction (normal
// or method mode, per s.mode).
func (s *OverloadSet) Dispatch(ctx *Context) lua.LGFunction {
	return func(L *lua.LState) int {
		return s.dispatch(ctx, L)
	}
}

func (s *OverloadSet) argStart() int {
	switch s.mode {
	case DispatchMethod, DispatchConstructor:
		return 2
	default:
		return 1
	}
}

func (s *OverloadSet) dispatch(ctx *Context, L *lua.LState) int {
	start := s.argStart()
	argc := L.GetTop() - start + 1
	if argc < 0 {
		argc = 0
	}

	for _, cand := range s.candidates {
		if len(cand.Args) != argc {
			continue
		}
		if !s.candidateMatches(ctx, L, cand, start) {
			continue
		}

		var in *instance
		if s.mode == DispatchConstructor {
			in = newInstance(s.typeName, s.instanceSize)
		}
		return cand.Fn(L, in)
	}

	L.RaiseError("%s", s.mismatchError(L, start, argc))
	return 0
}

func (s *OverloadSet) candidateMatches(ctx *Context, L *lua.LState, cand Candidate, start int) bool {
	for i, sem := range cand.Args {
		if !acceptsSemantic(sem, L.Get(start+i)) {
			return false
		}
	}
	return true
}

// acceptsSemantic implements the per-argument VM-level acceptance rule: a
// declared semantic type accepts any VM value whose dynamic representation
// can carry it, not only its exact native counterpart.
func acceptsSemantic(sem reflectinfo.Semantic, v lua.LValue) bool {
	switch sem {
	case reflectinfo.SemanticBool:
		_, ok := v.(lua.LBool)
		return ok
	case reflectinfo.SemanticInt8, reflectinfo.SemanticInt16, reflectinfo.SemanticInt32, reflectinfo.SemanticInt64,
		reflectinfo.SemanticUint8, reflectinfo.SemanticUint16, reflectinfo.SemanticUint32, reflectinfo.SemanticUint64,
		reflectinfo.SemanticFloat32, reflectinfo.SemanticFloat64:
		_, ok := v.(lua.LNumber)
		return ok
	case reflectinfo.SemanticCString:
		_, ok := v.(lua.LString)
		return ok
	case reflectinfo.SemanticUserData, reflectinfo.SemanticPointer:
		_, ok := v.(*lua.LUserData)
		return ok || v == lua.LNil
	case reflectinfo.SemanticFuncPtr:
		_, ok := v.(*lua.LFunction)
		return ok
	case reflectinfo.SemanticAny:
		return true
	default:
		return false
	}
}

func describeArg(v lua.LValue) string {
	switch val := v.(type) {
	case *lua.LUserData:
		if in, ok := val.Value.(*instance); ok {
			return in.typeName
		}
		return "userdata"
	case lua.LString:
		return "string"
	case lua.LNumber:
		return "number"
	case lua.LBool:
		return "boolean"
	case *lua.LFunction:
		return "function"
	case *lua.LTable:
		return "table"
	default:
		if v == lua.LNil {
			return "nil"
		}
		return v.Type().String()
	}
}

// mismatchError builds the structured message the spec requires: every
// received argument (with its usertype name where available) plus every
// candidate's declared signature.
func (s *OverloadSet) mismatchError(L *lua.LState, start, argc int) string {
	var b strings.Builder
	b.WriteString("no overload of ")
	if s.typeName != "" {
		b.WriteString(s.typeName)
	} else {
		b.WriteString("<function>")
	}
	b.WriteString(" matches arguments (")
	for i := 0; i < argc; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(describeArg(L.Get(start + i)))
	}
	b.WriteString("); candidates:")
	if len(s.candidates) == 0 {
		b.WriteString("\n  (no candidates)")
		return b.String()
	}
	for _, cand := range s.candidates {
		b.WriteString("\n  (")
		for i, sem := range cand.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(sem.String())
		}
		b.WriteString(")")
	}
	return b.String()
}

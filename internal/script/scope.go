package script

import lua "github.com/yuin/gopher-lua"

// Ref is a scope-tracked handle to a Lua value created by Go binding code.
// Holding the value here (rather than only on the Lua stack) keeps it
// reachable for Go's GC for exactly as long as its owning scope is open —
// the Go-GC analogue of the original's luaL_ref-protected registry slot,
// which existed to stop Lua's own collector from reclaiming a value only
// visible to native code.
type Ref struct {
	id    uint64
	value lua.LValue
}

// Value returns the Lua value this ref protects.
func (r *Ref) Value() lua.LValue { return r.value }

type scope struct {
	refs []*Ref
}

// BeginScope pushes a new, empty scope onto the stack.
func (c *Context) BeginScope() {
	c.scopes = append(c.scopes, scope{})
}

// EndScope releases every ref created in the current scope and pops it.
// The root scope (index 0) is never popped; calling EndScope with only the
// root scope open is a no-op.
func (c *Context) EndScope() {
	if len(c.scopes) <= 1 {
		return
	}
	c.scopes = c.scopes[:len(c.scopes)-1]
}

// NewRef protects v for the lifetime of the current scope and returns a
// handle to it.
func (c *Context) NewRef(v lua.LValue) *Ref {
	c.nextRefID++
	ref := &Ref{id: c.nextRefID, value: v}
	top := len(c.scopes) - 1
	c.scopes[top].refs = append(c.scopes[top].refs, ref)
	return ref
}

// Promote moves ref out of the current scope and into the one below it, so
// it survives the current scope's end. Promoting out of the root scope is a
// no-op since there is nothing below it.
func (c *Context) Promote(ref *Ref) {
	top := len(c.scopes) - 1
	if top == 0 {
		return
	}

	cur := c.scopes[top].refs
	for i, r := range cur {
		if r == ref {
			c.scopes[top].refs = append(cur[:i], cur[i+1:]...)
			below := top - 1
			c.scopes[below].refs = append(c.scopes[below].refs, ref)
			return
		}
	}
}

// ScopeDepth reports how many scopes are currently open, including the
// root scope (so a freshly created context reports 1).
func (c *Context) ScopeDepth() int { return len(c.scopes) }

// Unref drops ref from whichever scope currently holds it, releasing it
// before that scope's natural end. Used where a ref's lifetime is tied to
// something other than lexical scope — an ECS component removed mid-scope,
// for instance — rather than the scope stack itself.
func (c *Context) Unref(ref *Ref) {
	for i := range c.scopes {
		cur := c.scopes[i].refs
		for j, r := range cur {
			if r == ref {
				c.scopes[i].refs = append(cur[:j], cur[j+1:]...)
				return
			}
		}
	}
}

// Package script implements the scripting bridge: a gopher-lua context with
// scoped reference lifetime tracking, a usertype builder, an overload
// dispatcher, reflected-FFI call marshalling, coroutine wrapping, and
// read-only enum proxies.
package script

import (
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/keystone-engine/keystone/internal/reflectinfo"
)

// usertypeInfo is the {size, name} record the context keeps per registered
// usertype, letting the overload dispatcher and FFI marshaller look up a
// type's instance size without re-querying the reflection registry on every
// call.
type usertypeInfo struct {
	name string
	size uintptr
}

// frame tracks one call's argument/upvalue base so binding code addresses
// "argument N" uniformly whether the call arrived directly or through a
// method (self-consuming) call.
type frame struct {
	argBase int // stack index of the first real argument
	isEntry bool
}

// Context owns one gopher-lua VM plus everything the bridge layers on top:
// the scope stack (begin_scope/end_scope/promote), the call-frame stack, the
// usertype-info map, and the registry used to resolve reflected types for
// usertypes and FFI signatures.
type Context struct {
	vm       *lua.LState
	registry *reflectinfo.Registry

	scopes    []scope
	nextRefID uint64
	frames    []frame

	usertypes map[string]*usertypeInfo

	// Preprocess rewrites a chunk's source before it reaches the VM; wired
	// to the preprocess package by the script environment. A nil value
	// means no decorator/macro rewriting is installed.
	Preprocess func(name, source string) (string, error)
}

// NewContext creates a context around a fresh VM. registry resolves
// usertype and FFI signature information; it may be nil for a context that
// never registers native usertypes (pure-script use).
func NewContext(registry *reflectinfo.Registry) *Context {
	c := &Context{
		vm:        lua.NewState(),
		registry:  registry,
		usertypes: make(map[string]*usertypeInfo),
	}
	c.scopes = append(c.scopes, scope{}) // root scope, never popped
	return c
}

// VM exposes the underlying gopher-lua state for binding packages that need
// to install globals directly.
func (c *Context) VM() *lua.LState { return c.vm }

// Close releases the VM and every ref still held in any scope.
func (c *Context) Close() {
	c.scopes = nil
	c.vm.Close()
}

// DoString runs source as a chunk named name, running it through Preprocess
// first if one is installed.
func (c *Context) DoString(name, source string) error {
	if c.Preprocess != nil {
		rewritten, err := c.Preprocess(name, source)
		if err != nil {
			return err
		}
		source = rewritten
	}
	fn, err := c.vm.Load(strings.NewReader(source), name)
	if err != nil {
		return err
	}
	c.vm.Push(fn)
	return c.vm.PCall(0, lua.MultRet, nil)
}

// pushFrame records a new call frame; argBase is 1 for a direct call and 2
// for a method call (slot 1 holds self).
func (c *Context) pushFrame(argBase int) {
	c.frames = append(c.frames, frame{argBase: argBase})
}

func (c *Context) popFrame() {
	if len(c.frames) > 0 {
		c.frames = c.frames[:len(c.frames)-1]
	}
}

// argIndex translates a 1-based logical argument number into the VM stack
// index for the current call frame.
func (c *Context) argIndex(n int) int {
	if len(c.frames) == 0 {
		return n
	}
	top := c.frames[len(c.frames)-1]
	return top.argBase - 1 + n
}

// registerUsertype records typeName's instance size for later lookup by the
// overload dispatcher and FFI marshaller.
func (c *Context) registerUsertype(typeName string, size uintptr) {
	c.usertypes[typeName] = &usertypeInfo{name: typeName, size: size}
}

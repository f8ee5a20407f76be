package script

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/keystone-engine/keystone/internal/reflectinfo"
)

// UsertypeBuilder is the end()-terminated construction API for a scripted
// native type: its methods, property getters/setters, optional base-type
// inheritance, constructor overload set, and destructor.
type UsertypeBuilder struct {
	ctx  *Context
	name string
	size uintptr

	methods map[string]lua.LGFunction
	getters map[string]lua.LGFunction
	setters map[string]lua.LGFunction

	base        string
	constructor *OverloadSet
	destructor  func(*instance)
}

// BeginUsertype starts building a usertype named name with the given
// instance size (0 for a tag-like type with no fields).
func BeginUsertype(ctx *Context, name string, size uintptr) *UsertypeBuilder {
	return &UsertypeBuilder{
		ctx:     ctx,
		name:    name,
		size:    size,
		methods: make(map[string]lua.LGFunction),
		getters: make(map[string]lua.LGFunction),
		setters: make(map[string]lua.LGFunction),
	}
}

// Inherits chains this usertype's methods/getters/setters tables to an
// already-registered base type's tables, so an instance method lookup
// falls through to the base when not found on the derived type.
func (b *UsertypeBuilder) Inherits(baseName string) *UsertypeBuilder {
	b.base = baseName
	return b
}

// AddMethod installs a manually-implemented (non-reflected) instance method.
func (b *UsertypeBuilder) AddMethod(name string, fn lua.LGFunction) *UsertypeBuilder {
	b.methods[name] = fn
	return b
}

// AddReflectedMethod installs an instance method dispatched through the FFI
// marshaller using m's reflected signature and native address.
func (b *UsertypeBuilder) AddReflectedMethod(name string, m reflectinfo.Method) *UsertypeBuilder {
	b.methods[name] = func(L *lua.LState) int {
		self := L.CheckUserData(1)
		in, ok := self.Value.(*instance)
		if !ok {
			L.RaiseError("%s:%s: receiver is not a %s instance", b.name, name, b.name)
			return 0
		}
		return callReflectedMethod(L, in, m)
	}
	return b
}

// AddField installs a getter (and, unless f is const, a setter) for f,
// reading/writing the instance's byte window at f's offset. Nested
// userdata fields produce a borrowed sub-handle rather than a copy.
func (b *UsertypeBuilder) AddField(f reflectinfo.Field) *UsertypeBuilder {
	b.getters[f.Name] = func(L *lua.LState) int {
		self := L.CheckUserData(1)
		in, ok := self.Value.(*instance)
		if !ok {
			L.RaiseError("%s: receiver is not a %s instance", f.Name, b.name)
			return 0
		}
		L.Push(readField(L, b.ctx, in, f))
		return 1
	}

	if f.Modifiers&reflectinfo.ModConst == 0 {
		b.setters[f.Name] = func(L *lua.LState) int {
			self := L.CheckUserData(1)
			in, ok := self.Value.(*instance)
			if !ok {
				L.RaiseError("%s: receiver is not a %s instance", f.Name, b.name)
				return 0
			}
			writeField(L, in, f, L.Get(2))
			return 0
		}
	}

	return b
}

// SetConstructor installs set as this usertype's overloaded constructor.
// If never called, End installs a default zero-initializing constructor.
func (b *UsertypeBuilder) SetConstructor(set *OverloadSet) *UsertypeBuilder {
	b.constructor = set
	return b
}

// SetDestructor installs fn to run when a script-visible instance is
// garbage collected. If never called and no reflected destructor is
// available, no __gc action is installed beyond dropping the Go reference.
func (b *UsertypeBuilder) SetDestructor(fn func(*instance)) *UsertypeBuilder {
	b.destructor = fn
	return b
}

// End constructs the metatable and returns the module-level table callers
// use to construct new instances (its __call invokes the constructor).
func (b *UsertypeBuilder) End() *lua.LTable {
	L := b.ctx.vm
	b.ctx.registerUsertype(b.name, b.size)

	methods := L.NewTable()
	L.SetFuncs(methods, b.methods)
	getters := L.NewTable()
	L.SetFuncs(getters, b.getters)
	setters := L.NewTable()
	L.SetFuncs(setters, b.setters)

	var baseMethods, baseGetters, baseSetters *lua.LTable
	if b.base != "" {
		if baseMT, ok := L.GetTypeMetatable(b.base).(*lua.LTable); ok {
			baseMethods, _ = baseMT.RawGetString("__methods").(*lua.LTable)
			baseGetters, _ = baseMT.RawGetString("__getters").(*lua.LTable)
			baseSetters, _ = baseMT.RawGetString("__setters").(*lua.LTable)
		}
	}
	// lookupChained checks own first, falling back to the immediate base's
	// table. Only one level deep: a type two or more Inherits() hops removed
	// from where a method was declared is not found by this lookup.
	lookupChained := func(own, base *lua.LTable, key string) lua.LValue {
		if v := own.RawGetString(key); v != lua.LNil {
			return v
		}
		if base != nil {
			return base.RawGetString(key)
		}
		return lua.LNil
	}

	mt := L.NewTypeMetatable(b.name)
	mt.RawSetString("__methods", methods)
	mt.RawSetString("__getters", getters)
	mt.RawSetString("__setters", setters)

	L.SetField(mt, "__index", L.NewFunction(func(L *lua.LState) int {
		self := L.CheckUserData(1)
		key := L.CheckString(2)
		if m := lookupChained(methods, baseMethods, key); m != lua.LNil {
			L.Push(m)
			return 1
		}
		if g, ok := lookupChained(getters, baseGetters, key).(*lua.LFunction); ok {
			if err := L.CallByParam(lua.P{Fn: g, NRet: 1, Protect: true}, self); err != nil {
				L.RaiseError("%s", err.Error())
				return 0
			}
			return 1
		}
		L.Push(lua.LNil)
		return 1
	}))

	L.SetField(mt, "__newindex", L.NewFunction(func(L *lua.LState) int {
		self := L.CheckUserData(1)
		key := L.CheckString(2)
		val := L.Get(3)
		if s, ok := lookupChained(setters, baseSetters, key).(*lua.LFunction); ok {
			if err := L.CallByParam(lua.P{Fn: s, NRet: 0, Protect: true}, self, val); err != nil {
				L.RaiseError("%s", err.Error())
			}
			return 0
		}
		L.RaiseError("%s: field %q is not writable", b.name, key)
		return 0
	}))

	if b.destructor != nil {
		destroy := b.destructor
		L.SetField(mt, "__gc", L.NewFunction(func(L *lua.LState) int {
			self := L.CheckUserData(1)
			if in, ok := self.Value.(*instance); ok {
				destroy(in)
			}
			return 0
		}))
	}

	module := L.NewTable()
	ctorSet := b.constructor
	if ctorSet == nil {
		ctorSet = defaultConstructor(b.name, b.size)
	}
	ctorSet.mode = DispatchConstructor
	ctorSet.typeName = b.name
	ctorSet.instanceSize = b.size

	ctorMT := L.NewTable()
	L.SetField(ctorMT, "__call", L.NewFunction(func(L *lua.LState) int {
		return ctorSet.dispatch(b.ctx, L)
	}))
	L.SetMetatable(module, ctorMT)

	return module
}

func defaultConstructor(typeName string, size uintptr) *OverloadSet {
	set := NewOverloadSet()
	set.Add(Candidate{
		Args: nil,
		Fn: func(L *lua.LState, in *instance) int {
			L.Push(wrapInstance(L, typeName, in))
			return 1
		},
	})
	return set
}

// wrapInstance creates a fresh LUserData wrapping in and installs typeName's
// metatable on it.
func wrapInstance(L *lua.LState, typeName string, in *instance) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = in
	ud.Metatable = L.GetTypeMetatable(typeName)
	return ud
}

func readField(L *lua.LState, ctx *Context, in *instance, f reflectinfo.Field) lua.LValue {
	switch f.Semantic {
	case reflectinfo.SemanticBool:
		return lua.LBool(in.readUint(f.Offset, 1) != 0)
	case reflectinfo.SemanticInt8, reflectinfo.SemanticUint8:
		return lua.LNumber(in.readUint(f.Offset, 1))
	case reflectinfo.SemanticInt16, reflectinfo.SemanticUint16:
		return lua.LNumber(in.readUint(f.Offset, 2))
	case reflectinfo.SemanticInt32, reflectinfo.SemanticUint32:
		return lua.LNumber(in.readUint(f.Offset, 4))
	case reflectinfo.SemanticInt64, reflectinfo.SemanticUint64:
		return lua.LNumber(in.readUint(f.Offset, 8))
	case reflectinfo.SemanticFloat32:
		return lua.LNumber(in.readFloat32(f.Offset))
	case reflectinfo.SemanticFloat64:
		return lua.LNumber(in.readFloat64(f.Offset))
	case reflectinfo.SemanticUserData:
		if ctx.registry == nil {
			return lua.LNil
		}
		info := ctx.registry.Lookup(f.TypeName)
		if info == nil {
			return lua.LNil
		}
		sub := borrowInstance(in, f.TypeName, f.Offset, info.Size)
		return wrapInstance(L, f.TypeName, sub)
	default:
		return lua.LNil
	}
}

func writeField(L *lua.LState, in *instance, f reflectinfo.Field, v lua.LValue) {
	switch f.Semantic {
	case reflectinfo.SemanticBool:
		b, _ := v.(lua.LBool)
		in.writeUint(f.Offset, 1, boolToUint(bool(b)))
	case reflectinfo.SemanticInt8, reflectinfo.SemanticUint8:
		n, _ := v.(lua.LNumber)
		in.writeUint(f.Offset, 1, uint64(n))
	case reflectinfo.SemanticInt16, reflectinfo.SemanticUint16:
		n, _ := v.(lua.LNumber)
		in.writeUint(f.Offset, 2, uint64(n))
	case reflectinfo.SemanticInt32, reflectinfo.SemanticUint32:
		n, _ := v.(lua.LNumber)
		in.writeUint(f.Offset, 4, uint64(n))
	case reflectinfo.SemanticInt64, reflectinfo.SemanticUint64:
		n, _ := v.(lua.LNumber)
		in.writeUint(f.Offset, 8, uint64(n))
	case reflectinfo.SemanticFloat32:
		n, _ := v.(lua.LNumber)
		in.writeFloat32(f.Offset, float32(n))
	case reflectinfo.SemanticFloat64:
		n, _ := v.(lua.LNumber)
		in.writeFloat64(f.Offset, float64(n))
	default:
		L.RaiseError("field %q of type %s is not writable from a plain value", f.Name, f.TypeName)
	}
}

func boolToUint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

package bindings

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/keystone-engine/keystone/internal/event"
	"github.com/keystone-engine/keystone/internal/reflectinfo"
	"github.com/keystone-engine/keystone/internal/script"
)

var semanticByName = map[string]reflectinfo.Semantic{
	"bool":    reflectinfo.SemanticBool,
	"int8":    reflectinfo.SemanticInt8,
	"int16":   reflectinfo.SemanticInt16,
	"int32":   reflectinfo.SemanticInt32,
	"int64":   reflectinfo.SemanticInt64,
	"uint8":   reflectinfo.SemanticUint8,
	"uint16":  reflectinfo.SemanticUint16,
	"uint32":  reflectinfo.SemanticUint32,
	"uint64":  reflectinfo.SemanticUint64,
	"float32": reflectinfo.SemanticFloat32,
	"float64": reflectinfo.SemanticFloat64,
	"cstring": reflectinfo.SemanticCString,
	"string":  reflectinfo.SemanticCString,
	"any":     reflectinfo.SemanticAny,
}

// RegisterEvents installs the "events" global table over mgr: registration,
// subscribe/unsubscribe, and publish. Publish builds its Payload directly
// from the declared signature and VM arguments (via event.PublishDirect)
// rather than going through Publish's generic promotion, exactly the path
// the original reserves for script bindings.
func RegisterEvents(ctx *script.Context, mgr *event.Manager) {
	L := ctx.VM()
	t := L.NewTable()

	L.SetField(t, "register", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		typeNames := L.CheckTable(2)

		var types []reflectinfo.Semantic
		typeNames.ForEach(func(_, v lua.LValue) {
			types = append(types, semanticByName[lua.LVAsString(v)])
		})

		L.Push(lua.LNumber(mgr.Register(name, types)))
		return 1
	}))

	L.SetField(t, "lookup", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(mgr.Lookup(L.CheckString(1))))
		return 1
	}))

	L.SetField(t, "subscribe", L.NewFunction(func(L *lua.LState) int {
		ev := checkHandle(L, 1)
		fn := L.CheckFunction(2)
		ref := ctx.NewRef(fn)
		ctx.Promote(ref)

		sub := mgr.Subscribe(ev, func(payload *event.Payload, userData interface{}) {
			args := make([]lua.LValue, 0, payload.ArgCount())
			for i := 0; i < payload.ArgCount(); i++ {
				args = append(args, payloadArgToLua(payload, i))
			}
			if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...); err != nil {
				L.RaiseError("events: subscriber failed: %s", err.Error())
			}
		}, nil)

		L.Push(lua.LNumber(sub))
		return 1
	}))

	L.SetField(t, "unsubscribe", L.NewFunction(func(L *lua.LState) int {
		mgr.Unsubscribe(checkHandle(L, 1))
		return 0
	}))

	L.SetField(t, "publish", L.NewFunction(func(L *lua.LState) int {
		ev := checkHandle(L, 1)
		types := mgr.Types(ev)

		n := L.GetTop() - 1
		if n > len(types) {
			n = len(types)
		}
		args := make([]event.Arg, n)
		for i := 0; i < n; i++ {
			args[i] = event.Arg{Semantic: types[i], Value: luaToArgValue(L, types[i], L.Get(i+2))}
		}

		if err := mgr.PublishDirect(ev, &event.Payload{Args: args}); err != nil {
			L.RaiseError("events: %s", err.Error())
		}
		return 0
	}))

	L.SetGlobal("events", t)
}

func luaToArgValue(L *lua.LState, sem reflectinfo.Semantic, v lua.LValue) interface{} {
	switch sem {
	case reflectinfo.SemanticBool:
		return v != lua.LNil && v != lua.LFalse
	case reflectinfo.SemanticInt8, reflectinfo.SemanticInt16, reflectinfo.SemanticInt32, reflectinfo.SemanticInt64,
		reflectinfo.SemanticUint8, reflectinfo.SemanticUint16, reflectinfo.SemanticUint32, reflectinfo.SemanticUint64:
		n, _ := v.(lua.LNumber)
		return int64(n)
	case reflectinfo.SemanticFloat32, reflectinfo.SemanticFloat64:
		n, _ := v.(lua.LNumber)
		return float64(n)
	case reflectinfo.SemanticCString:
		return v.String()
	default:
		return v
	}
}

func payloadArgToLua(p *event.Payload, i int) lua.LValue {
	switch p.ArgType(i) {
	case reflectinfo.SemanticBool:
		return lua.LBool(p.GetBool(i))
	case reflectinfo.SemanticInt8, reflectinfo.SemanticInt16, reflectinfo.SemanticInt32, reflectinfo.SemanticInt64,
		reflectinfo.SemanticUint8, reflectinfo.SemanticUint16, reflectinfo.SemanticUint32, reflectinfo.SemanticUint64:
		return lua.LNumber(p.GetInt(i))
	case reflectinfo.SemanticFloat32, reflectinfo.SemanticFloat64:
		return lua.LNumber(p.GetFloat(i))
	case reflectinfo.SemanticCString:
		return lua.LString(p.GetString(i))
	default:
		if lv, ok := p.Args[i].Value.(lua.LValue); ok {
			return lv
		}
		return lua.LNil
	}
}

// Package bindings installs the script-visible surface for each runtime
// manager as a plain global table of functions, the same shape the
// original engine's Lua bindings use (a flat module table, not a usertype)
// since none of these managers hand out native struct pointers to script.
package bindings

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/keystone-engine/keystone/internal/handle"
	"github.com/keystone-engine/keystone/internal/script"
	"github.com/keystone-engine/keystone/internal/state"
)

// RegisterState installs the "state" global table, exposing mgr's named
// cells to script as get/set pairs keyed by handle.
func RegisterState(ctx *script.Context, mgr *state.Manager) {
	L := ctx.VM()
	t := L.NewTable()

	L.SetField(t, "new_int", L.NewFunction(func(L *lua.LState) int {
		h := mgr.NewInt(L.CheckString(1), int64(L.CheckNumber(2)))
		L.Push(lua.LNumber(h))
		return 1
	}))
	L.SetField(t, "new_float", L.NewFunction(func(L *lua.LState) int {
		h := mgr.NewFloat(L.CheckString(1), float64(L.CheckNumber(2)))
		L.Push(lua.LNumber(h))
		return 1
	}))
	L.SetField(t, "new_bool", L.NewFunction(func(L *lua.LState) int {
		h := mgr.NewBool(L.CheckString(1), L.CheckBool(2))
		L.Push(lua.LNumber(h))
		return 1
	}))
	L.SetField(t, "new_string", L.NewFunction(func(L *lua.LState) int {
		h := mgr.NewString(L.CheckString(1), L.CheckString(2))
		L.Push(lua.LNumber(h))
		return 1
	}))

	L.SetField(t, "set_int", L.NewFunction(func(L *lua.LState) int {
		ok := mgr.SetInt(checkHandle(L, 1), int64(L.CheckNumber(2)))
		L.Push(lua.LBool(ok))
		return 1
	}))
	L.SetField(t, "set_float", L.NewFunction(func(L *lua.LState) int {
		ok := mgr.SetFloat(checkHandle(L, 1), float64(L.CheckNumber(2)))
		L.Push(lua.LBool(ok))
		return 1
	}))
	L.SetField(t, "set_bool", L.NewFunction(func(L *lua.LState) int {
		ok := mgr.SetBool(checkHandle(L, 1), L.CheckBool(2))
		L.Push(lua.LBool(ok))
		return 1
	}))
	L.SetField(t, "set_string", L.NewFunction(func(L *lua.LState) int {
		ok := mgr.SetString(checkHandle(L, 1), L.CheckString(2))
		L.Push(lua.LBool(ok))
		return 1
	}))

	L.SetField(t, "get_int", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(mgr.GetInt(checkHandle(L, 1), int64(optNumber(L, 2, 0)))))
		return 1
	}))
	L.SetField(t, "get_float", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(mgr.GetFloat(checkHandle(L, 1), optNumber(L, 2, 0))))
		return 1
	}))
	L.SetField(t, "get_bool", L.NewFunction(func(L *lua.LState) int {
		def := L.OptBool(2, false)
		L.Push(lua.LBool(mgr.GetBool(checkHandle(L, 1), def)))
		return 1
	}))
	L.SetField(t, "get_string", L.NewFunction(func(L *lua.LState) int {
		def := L.OptString(2, "")
		L.Push(lua.LString(mgr.GetString(checkHandle(L, 1), def)))
		return 1
	}))

	L.SetField(t, "handle", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(mgr.GetHandle(L.CheckString(1))))
		return 1
	}))
	L.SetField(t, "has", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LBool(mgr.Has(L.CheckString(1))))
		return 1
	}))

	L.SetGlobal("state", t)
}

// checkHandle reads a handle.Handle out of argument n, where script code
// holds handles as plain Lua numbers.
func checkHandle(L *lua.LState, n int) handle.Handle {
	return handle.Handle(uint32(L.CheckNumber(n)))
}

func optNumber(L *lua.LState, n int, def float64) float64 {
	return float64(L.OptNumber(n, lua.LNumber(def)))
}

package bindings

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/keystone-engine/keystone/internal/asset"
	"github.com/keystone-engine/keystone/internal/script"
)

// RegisterAssets installs the "assets" global table over mgr. Asset type
// interfaces (load_from_file/load_from_data/destroy) are native-only and
// registered from Go before the script environment starts; script code
// only ever loads, looks up, and releases by name.
func RegisterAssets(ctx *script.Context, mgr *asset.Manager) {
	L := ctx.VM()
	t := L.NewTable()

	L.SetField(t, "load_from_file", L.NewFunction(func(L *lua.LState) int {
		h, err := mgr.LoadFromFile(L.CheckString(1), L.CheckString(2), L.CheckString(3))
		if err != nil {
			L.Push(lua.LNil)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(lua.LNumber(h))
		return 1
	}))

	L.SetField(t, "get", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(mgr.Get(L.CheckString(1))))
		return 1
	}))
	L.SetField(t, "is_valid", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LBool(mgr.IsValid(checkHandle(L, 1))))
		return 1
	}))
	L.SetField(t, "type_name", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(mgr.TypeName(checkHandle(L, 1))))
		return 1
	}))
	L.SetField(t, "ref_count", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(mgr.RefCount(checkHandle(L, 1))))
		return 1
	}))
	L.SetField(t, "reload", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LBool(mgr.Reload(checkHandle(L, 1))))
		return 1
	}))
	L.SetField(t, "release", L.NewFunction(func(L *lua.LState) int {
		mgr.Release(checkHandle(L, 1))
		return 0
	}))

	L.SetGlobal("assets", t)
}

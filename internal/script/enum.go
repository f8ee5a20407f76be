package script

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/keystone-engine/keystone/internal/reflectinfo"
)

// RegisterEnum builds a read-only proxy table for items: reading a member
// resolves through the underlying values table, writing (or attempting to
// replace the proxy's own metatable) raises a script error.
func RegisterEnum(ctx *Context, name string, items []reflectinfo.EnumItem) *lua.LTable {
	L := ctx.vm

	values := L.NewTable()
	for _, item := range items {
		values.RawSetString(item.Name, lua.LNumber(item.Value))
	}

	proxy := L.NewTable()
	mt := L.NewTable()
	enumName := name
	L.SetField(mt, "__index", values)
	L.SetField(mt, "__newindex", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("enum %q is read-only", enumName)
		return 0
	}))
	L.SetField(mt, "__metatable", lua.LFalse)
	L.SetMetatable(proxy, mt)

	return proxy
}

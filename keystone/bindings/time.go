package bindings

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/keystone-engine/keystone/internal/script"
	"github.com/keystone-engine/keystone/internal/timer"
)

// RegisterTime installs the "time" global table over mgr: timer creation,
// start/stop/reset, and the clock's delta/total-elapsed/scale readers.
func RegisterTime(ctx *script.Context, mgr *timer.Manager) {
	L := ctx.VM()
	t := L.NewTable()

	L.SetField(t, "create_timer", L.NewFunction(func(L *lua.LState) int {
		durationNS := uint64(L.CheckNumber(1))
		loop := L.OptBool(2, false)
		L.Push(lua.LNumber(mgr.CreateTimer(durationNS, loop)))
		return 1
	}))
	L.SetField(t, "destroy_timer", L.NewFunction(func(L *lua.LState) int {
		mgr.DestroyTimer(checkHandle(L, 1))
		return 0
	}))
	L.SetField(t, "start", L.NewFunction(func(L *lua.LState) int {
		mgr.Start(checkHandle(L, 1))
		return 0
	}))
	L.SetField(t, "stop", L.NewFunction(func(L *lua.LState) int {
		mgr.Stop(checkHandle(L, 1))
		return 0
	}))
	L.SetField(t, "reset", L.NewFunction(func(L *lua.LState) int {
		mgr.Reset(checkHandle(L, 1))
		return 0
	}))
	L.SetField(t, "is_running", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LBool(mgr.IsRunning(checkHandle(L, 1))))
		return 1
	}))
	L.SetField(t, "is_looping", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LBool(mgr.IsLooping(checkHandle(L, 1))))
		return 1
	}))
	L.SetField(t, "set_duration", L.NewFunction(func(L *lua.LState) int {
		mgr.SetDuration(checkHandle(L, 1), uint64(L.CheckNumber(2)))
		return 0
	}))
	L.SetField(t, "set_loop", L.NewFunction(func(L *lua.LState) int {
		mgr.SetLoop(checkHandle(L, 1), L.CheckBool(2))
		return 0
	}))

	// set_callback keeps the Lua function alive in the context's root
	// scope for as long as the timer exists — timers are a different
	// lifetime domain than any lexical scope a script might be running in.
	L.SetField(t, "set_callback", L.NewFunction(func(L *lua.LState) int {
		h := checkHandle(L, 1)
		fn := L.CheckFunction(2)
		ref := ctx.NewRef(fn)
		ctx.Promote(ref)

		mgr.SetCallback(h, func(userData interface{}) {
			if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
				L.RaiseError("time: timer callback failed: %s", err.Error())
			}
		}, nil)
		return 0
	}))

	L.SetField(t, "delta_sec", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(mgr.DeltaSec()))
		return 1
	}))
	L.SetField(t, "total_elapsed_ns", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(mgr.TotalElapsedNS()))
		return 1
	}))
	L.SetField(t, "set_scale", L.NewFunction(func(L *lua.LState) int {
		mgr.SetScale(float64(L.CheckNumber(1)))
		return 0
	}))
	L.SetField(t, "scale", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(mgr.Scale()))
		return 1
	}))

	L.SetGlobal("time", t)
}

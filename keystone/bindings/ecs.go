package bindings

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/keystone-engine/keystone/internal/ecs"
	"github.com/keystone-engine/keystone/internal/reflectinfo"
	"github.com/keystone-engine/keystone/internal/script"
)

var phaseEnumItems = []reflectinfo.EnumItem{
	{Name: "OnLoad", Value: int64(ecs.PhaseOnLoad)},
	{Name: "PostLoad", Value: int64(ecs.PhasePostLoad)},
	{Name: "PreUpdate", Value: int64(ecs.PhasePreUpdate)},
	{Name: "OnUpdate", Value: int64(ecs.PhaseOnUpdate)},
	{Name: "PostUpdate", Value: int64(ecs.PhasePostUpdate)},
	{Name: "PreStore", Value: int64(ecs.PhasePreStore)},
	{Name: "OnStore", Value: int64(ecs.PhaseOnStore)},
}

var observerEventEnumItems = []reflectinfo.EnumItem{
	{Name: "OnAdd", Value: int64(ecs.EventOnAdd)},
	{Name: "OnRemove", Value: int64(ecs.EventOnRemove)},
	{Name: "OnSet", Value: int64(ecs.EventOnSet)},
}

// scriptTableRef wraps a Lua value (almost always a table) stored as an ECS
// component so the world can release its registry ref on removal or entity
// destruction, independent of whatever lexical scope was open when it was
// set.
type scriptTableRef struct {
	ctx *script.Context
	ref *script.Ref
}

func (s *scriptTableRef) Release() { s.ctx.Unref(s.ref) }

// RegisterECS installs the "ecs" global table over world: entity lifecycle,
// component access, system/observer registration, and phase dispatch. Also
// exposes the Phase and ObserverEvent enums script systems switch on.
func RegisterECS(ctx *script.Context, world *ecs.World) {
	L := ctx.VM()
	t := L.NewTable()

	world.SetScriptRefReleaser(func(ref ecs.ScriptRef) { ref.Release() })

	L.SetField(t, "Phase", script.RegisterEnum(ctx, "Phase", phaseEnumItems))
	L.SetField(t, "Event", script.RegisterEnum(ctx, "Event", observerEventEnumItems))

	L.SetField(t, "create_entity", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(world.CreateEntity(L.OptString(1, ""))))
		return 1
	}))
	L.SetField(t, "destroy_entity", L.NewFunction(func(L *lua.LState) int {
		world.DestroyEntity(checkEntity(L, 1))
		return 0
	}))
	L.SetField(t, "is_alive", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LBool(world.IsAlive(checkEntity(L, 1))))
		return 1
	}))
	L.SetField(t, "enable", L.NewFunction(func(L *lua.LState) int {
		world.Enable(checkEntity(L, 1), L.CheckBool(2))
		return 0
	}))
	L.SetField(t, "name", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(world.Name(checkEntity(L, 1))))
		return 1
	}))
	L.SetField(t, "lookup", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(world.Lookup(L.CheckString(1))))
		return 1
	}))

	// set_component stores the Lua value given in argument 2 directly as
	// the component's value, wrapped in a scriptTableRef so the world can
	// release it on removal. Native component types with real byte layouts
	// go through reflectinfo/UsertypeBuilder instead, never through here.
	L.SetField(t, "set_component", L.NewFunction(func(L *lua.LState) int {
		e := checkEntity(L, 1)
		typeName := L.CheckString(2)
		val := L.CheckAny(3)

		ref := ctx.NewRef(val)
		ctx.Promote(ref)
		world.SetComponent(e, typeName, &scriptTableRef{ctx: ctx, ref: ref})
		return 0
	}))
	L.SetField(t, "get_component", L.NewFunction(func(L *lua.LState) int {
		e := checkEntity(L, 1)
		typeName := L.CheckString(2)

		v, ok := world.GetComponent(e, typeName)
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		if ref, ok := v.(*scriptTableRef); ok {
			L.Push(ref.ref.Value())
			return 1
		}
		L.Push(lua.LNil)
		return 1
	}))
	L.SetField(t, "has_component", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LBool(world.HasComponent(checkEntity(L, 1), L.CheckString(2))))
		return 1
	}))
	L.SetField(t, "remove_component", L.NewFunction(func(L *lua.LState) int {
		world.RemoveComponent(checkEntity(L, 1), L.CheckString(2))
		return 0
	}))

	L.SetField(t, "create_system", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		filter := L.CheckString(2)
		phase := ecs.Phase(L.CheckNumber(3))
		fn := L.CheckFunction(4)
		ref := ctx.NewRef(fn)
		ctx.Promote(ref)

		var after []string
		if tbl, ok := L.Get(5).(*lua.LTable); ok {
			tbl.ForEach(func(_, v lua.LValue) { after = append(after, v.String()) })
		}

		world.CreateSystem(name, filter, phase, scriptTrampoline(L, fn), nil, after...)
		return 0
	}))
	L.SetField(t, "enable_system", L.NewFunction(func(L *lua.LState) int {
		world.EnableSystem(L.CheckString(1), L.CheckBool(2))
		return 0
	}))
	L.SetField(t, "create_observer", L.NewFunction(func(L *lua.LState) int {
		event := ecs.ObserverEvent(L.CheckNumber(1))
		component := L.CheckString(2)
		fn := L.CheckFunction(3)
		ref := ctx.NewRef(fn)
		ctx.Promote(ref)

		world.CreateObserver(event, component, scriptTrampoline(L, fn), nil)
		return 0
	}))

	L.SetField(t, "progress", L.NewFunction(func(L *lua.LState) int {
		world.Progress(float64(L.CheckNumber(1)))
		return 0
	}))
	L.SetField(t, "run_query", L.NewFunction(func(L *lua.LState) int {
		filter := L.CheckString(1)
		fn := L.CheckFunction(2)
		world.RunQuery(filter, scriptTrampoline(L, fn), nil)
		return 0
	}))

	L.SetGlobal("ecs", t)
}

// scriptTrampoline adapts a script callback into an ecs.SystemFunc, called
// once per matched entity with the entity's numeric id.
func scriptTrampoline(L *lua.LState, fn *lua.LFunction) ecs.SystemFunc {
	return func(w *ecs.World, e ecs.Entity, userData interface{}) {
		if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, lua.LNumber(e)); err != nil {
			L.RaiseError("ecs: system/observer callback failed: %s", err.Error())
		}
	}
}

func checkEntity(L *lua.LState, n int) ecs.Entity {
	return ecs.Entity(uint64(L.CheckNumber(n)))
}

package script

import (
	"testing"

	lua "github.com/yuin/gopher-lua"

	"github.com/keystone-engine/keystone/internal/reflectinfo"
)

func TestEnumReadsThroughToValues(t *testing.T) {
	ctx := NewContext(nil)
	defer ctx.Close()

	proxy := RegisterEnum(ctx, "Direction", []reflectinfo.EnumItem{
		{Name: "North", Value: 0},
		{Name: "South", Value: 1},
	})
	ctx.VM().SetGlobal("Direction", proxy)

	if err := ctx.DoString("enum", "south = Direction.South"); err != nil {
		t.Fatalf("script failed: %v", err)
	}
	if n, ok := ctx.VM().GetGlobal("south").(lua.LNumber); !ok || float64(n) != 1 {
		t.Fatalf("expected Direction.South == 1, got %v", ctx.VM().GetGlobal("south"))
	}
}

func TestEnumWriteRaises(t *testing.T) {
	ctx := NewContext(nil)
	defer ctx.Close()

	proxy := RegisterEnum(ctx, "Direction", []reflectinfo.EnumItem{{Name: "North", Value: 0}})
	ctx.VM().SetGlobal("Direction", proxy)

	if err := ctx.DoString("enum", "Direction.North = 5"); err == nil {
		t.Fatal("expected assigning into a read-only enum to raise")
	}
}

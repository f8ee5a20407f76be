package serialize

import (
	"testing"
	"unsafe"

	"github.com/keystone-engine/keystone/internal/memory"
	"github.com/keystone-engine/keystone/internal/reflectinfo"
)

func newTestRegistry() *reflectinfo.Registry {
	return reflectinfo.NewRegistry()
}

func buildVec3(registry *reflectinfo.Registry, perm *memory.Linear) {
	reflectinfo.BuilderBegin(registry, perm, "Vec3", reflectinfo.KindStruct, 12, 4).
		AddField("x", "float32", 0, [4]int{}, 0).
		AddField("y", "float32", 4, [4]int{}, 0).
		AddField("z", "float32", 8, [4]int{}, 0).
		BuilderEnd()
}

func TestSerializeScalarFields(t *testing.T) {
	registry := newTestRegistry()
	buildVec3(registry, memory.NewLinear())

	buf := make([]byte, 12)
	writeUint(buf, 0, 4, uint64(floatBits(1.5)))
	writeUint(buf, 4, 4, uint64(floatBits(-2.25)))
	writeUint(buf, 8, 4, uint64(floatBits(0)))

	node, err := Serialize(registry, buf, "Vec3")
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	x, _ := node.ObjectGet("x")
	y, _ := node.ObjectGet("y")
	if x.Number() != 1.5 || y.Number() != -2.25 {
		t.Fatalf("expected x=1.5 y=-2.25, got x=%v y=%v", x.Number(), y.Number())
	}
}

func TestDeserializeScalarFieldsRoundTrips(t *testing.T) {
	registry := newTestRegistry()
	buildVec3(registry, memory.NewLinear())

	obj := NewObject()
	obj.ObjectAdd("x", NewNumber(3))
	obj.ObjectAdd("y", NewNumber(4))
	obj.ObjectAdd("z", NewNumber(5))

	buf := make([]byte, 12)
	if err := Deserialize(registry, nil, obj, buf, "Vec3"); err != nil {
		t.Fatalf("deserialize failed: %v", err)
	}

	node, err := Serialize(registry, buf, "Vec3")
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	x, _ := node.ObjectGet("x")
	z, _ := node.ObjectGet("z")
	if x.Number() != 3 || z.Number() != 5 {
		t.Fatalf("expected round trip x=3 z=5, got x=%v z=%v", x.Number(), z.Number())
	}
}

func TestSerializeEmbeddedStruct(t *testing.T) {
	registry := newTestRegistry()
	perm := memory.NewLinear()
	buildVec3(registry, perm)

	reflectinfo.BuilderBegin(registry, perm, "Player", reflectinfo.KindStruct, 16, 4).
		AddField("position", "Vec3", 0, [4]int{}, 0).
		AddField("hp", "int32", 12, [4]int{}, 0).
		BuilderEnd()

	buf := make([]byte, 16)
	writeUint(buf, 0, 4, uint64(floatBits(10)))
	writeUint(buf, 4, 4, uint64(floatBits(20)))
	writeUint(buf, 8, 4, uint64(floatBits(30)))
	writeUint(buf, 12, 4, uint64(int32(75)))

	node, err := Serialize(registry, buf, "Player")
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	pos, ok := node.ObjectGet("position")
	if !ok || pos.Type() != KindObject {
		t.Fatalf("expected nested position object, got %v", node)
	}
	px, _ := pos.ObjectGet("x")
	if px.Number() != 10 {
		t.Fatalf("expected nested x=10, got %v", px.Number())
	}
	hp, _ := node.ObjectGet("hp")
	if hp.Number() != 75 {
		t.Fatalf("expected hp=75, got %v", hp.Number())
	}
}

func TestArrayOfPrimitivesRoundTrips(t *testing.T) {
	registry := newTestRegistry()
	perm := memory.NewLinear()
	reflectinfo.BuilderBegin(registry, perm, "Stats", reflectinfo.KindStruct, 12, 4).
		AddField("values", "int32", 0, [4]int{3}, 0).
		BuilderEnd()

	buf := make([]byte, 12)
	writeUint(buf, 0, 4, uint64(int32(1)))
	writeUint(buf, 4, 4, uint64(int32(2)))
	writeUint(buf, 8, 4, uint64(int32(3)))

	node, err := Serialize(registry, buf, "Stats")
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	values, _ := node.ObjectGet("values")
	if values.Type() != KindArray || values.ArrayLen() != 3 {
		t.Fatalf("expected a 3-element array, got %v", values)
	}
	v1, _ := values.ArrayGet(1)
	if v1.Number() != 2 {
		t.Fatalf("expected values[1] == 2, got %v", v1.Number())
	}

	obj := NewObject()
	newValues := NewArray()
	newValues.ArrayPush(NewNumber(9))
	newValues.ArrayPush(NewNumber(8))
	newValues.ArrayPush(NewNumber(7))
	obj.ObjectAdd("values", newValues)

	if err := Deserialize(registry, nil, obj, buf, "Stats"); err != nil {
		t.Fatalf("deserialize failed: %v", err)
	}
	reread, _ := Serialize(registry, buf, "Stats")
	rv, _ := reread.ObjectGet("values")
	rv0, _ := rv.ArrayGet(0)
	if rv0.Number() != 9 {
		t.Fatalf("expected values[0] == 9 after round trip, got %v", rv0.Number())
	}
}

func TestSerializeCStringFieldDereferencesNativePointer(t *testing.T) {
	registry := newTestRegistry()
	perm := memory.NewLinear()
	reflectinfo.BuilderBegin(registry, perm, "Named", reflectinfo.KindStruct, 8, 8).
		AddField("name", "string", 0, [4]int{}, 0).
		BuilderEnd()

	native := append([]byte("orc-grunt"), 0)
	buf := make([]byte, 8)
	writeUint(buf, 0, 8, uint64(uintptr(unsafe.Pointer(&native[0]))))

	node, err := Serialize(registry, buf, "Named")
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	name, _ := node.ObjectGet("name")
	if name.Type() != KindString || name.String() != "orc-grunt" {
		t.Fatalf("expected name=orc-grunt, got %v", name)
	}
}

func TestDeserializeCStringFieldAllocatesThroughMemoryManager(t *testing.T) {
	registry := newTestRegistry()
	perm := memory.NewLinear()
	reflectinfo.BuilderBegin(registry, perm, "Named", reflectinfo.KindStruct, 8, 8).
		AddField("name", "string", 0, [4]int{}, 0).
		BuilderEnd()

	mgr := memory.NewManager(0)
	defer mgr.Shutdown()

	obj := NewObject()
	obj.ObjectAdd("name", NewString("goblin"))

	buf := make([]byte, 8)
	if err := Deserialize(registry, mgr, obj, buf, "Named"); err != nil {
		t.Fatalf("deserialize failed: %v", err)
	}

	node, err := Serialize(registry, buf, "Named")
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	name, _ := node.ObjectGet("name")
	if name.String() != "goblin" {
		t.Fatalf("expected name=goblin after allocation round trip, got %v", name)
	}
}

func floatBits(f float32) uint32 {
	return *(*uint32)(unsafe.Pointer(&f))
}

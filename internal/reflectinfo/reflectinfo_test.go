package reflectinfo

import "testing"

func TestBuilderEndRegistersAndResolvesFieldTypes(t *testing.T) {
	reg := NewRegistry()
	perm := newTestLinear()

	BuilderBegin(reg, perm, "Vec2", KindStruct, 8, 4).
		AddField("x", "float32", 0, [4]int{}, 0).
		AddField("y", "float32", 4, [4]int{}, 0).
		BuilderEnd()

	info := reg.Lookup("Vec2")
	if info == nil {
		t.Fatal("expected Vec2 to be registered")
	}
	if len(info.Fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(info.Fields))
	}
	if info.Fields[0].Semantic != SemanticFloat32 {
		t.Fatalf("expected float32 semantic, got %v", info.Fields[0].Semantic)
	}
}

func TestResolveTypeNameFallsBackToUserdataForKnownStructs(t *testing.T) {
	reg := NewRegistry()
	reg.MarkKnown("Transform")

	sem, depth := reg.ResolveTypeName("const Transform*")
	if sem != SemanticPointer || depth != 1 {
		t.Fatalf("pointer fields resolve to Pointer regardless of pointee, got %v depth=%d", sem, depth)
	}

	sem2, _ := reg.ResolveTypeName("Transform")
	if sem2 != SemanticUserData {
		t.Fatalf("expected userdata fallback for known struct, got %v", sem2)
	}

	sem3, _ := reg.ResolveTypeName("Widget")
	if sem3 != SemanticUnknown {
		t.Fatalf("expected unknown for unregistered name, got %v", sem3)
	}
}

func TestTypedefResolutionIsBoundedAndTransitive(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterTypedef("Meters", "float32")
	reg.RegisterTypedef("Distance", "Meters")

	sem, _ := reg.ResolveTypeName("Distance")
	if sem != SemanticFloat32 {
		t.Fatalf("expected transitive alias resolution to float32, got %v", sem)
	}
}

func TestTypedefCycleDoesNotHang(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterTypedef("A", "B")
	reg.RegisterTypedef("B", "A")

	// Must return within maxTypedefHops, not loop forever.
	sem, _ := reg.ResolveTypeName("A")
	if sem != SemanticUnknown {
		t.Fatalf("expected unknown for an unresolved cycle, got %v", sem)
	}
}

func TestFieldsCoverContiguously(t *testing.T) {
	info := &TypeInfo{
		Size: 8,
		Fields: []Field{
			{Offset: 0, Semantic: SemanticFloat32},
			{Offset: 4, Semantic: SemanticFloat32},
		},
	}

	ok := info.FieldsCoverContiguously(func(f Field) uintptr { return 4 })
	if !ok {
		t.Fatal("two 4-byte fields at 0 and 4 should cover an 8-byte struct")
	}

	info.Fields[1].Offset = 5 // leaves a padding hole at byte 4
	if info.FieldsCoverContiguously(func(f Field) uintptr { return 4 }) {
		t.Fatal("a padding hole must fail the contiguous-coverage check")
	}
}

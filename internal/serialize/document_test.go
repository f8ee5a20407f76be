package serialize

import "testing"

func TestDocumentLoadDumpPreservesObjectKeyOrder(t *testing.T) {
	doc := NewDocument()
	if err := doc.LoadFromString(`{"b":1,"a":2,"c":{"z":9,"y":8}}`); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	out, err := doc.DumpToString()
	if err != nil {
		t.Fatalf("dump failed: %v", err)
	}
	want := `{"b":1,"a":2,"c":{"z":9,"y":8}}`
	if out != want {
		t.Fatalf("expected key order preserved, got %q want %q", out, want)
	}
}

func TestDocumentLoadDumpArraysAndPrimitives(t *testing.T) {
	doc := NewDocument()
	if err := doc.LoadFromString(`[1,2.5,"three",true,null]`); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	root := doc.Root()
	if root.Type() != KindArray || root.ArrayLen() != 5 {
		t.Fatalf("expected a 5-element array, got %v len=%d", root.Type(), root.ArrayLen())
	}

	n0, _ := root.ArrayGet(0)
	if n0.Type() != KindNumber || n0.Number() != 1 {
		t.Fatalf("element 0: expected number 1, got %v", n0)
	}
	n2, _ := root.ArrayGet(2)
	if n2.Type() != KindString || n2.String() != "three" {
		t.Fatalf("element 2: expected string 'three', got %v", n2)
	}
	n4, _ := root.ArrayGet(4)
	if n4.Type() != KindNull {
		t.Fatalf("element 4: expected null, got %v", n4)
	}
}

func TestNodeObjectAccessors(t *testing.T) {
	obj := NewObject()
	obj.ObjectAdd("name", NewString("orc"))
	obj.ObjectAdd("hp", NewNumber(40))

	if !obj.ObjectHas("name") {
		t.Fatal("expected ObjectHas(name) to be true")
	}
	if _, ok := obj.ObjectGet("missing"); ok {
		t.Fatal("expected ObjectGet(missing) to fail")
	}

	var seen []string
	obj.ObjectForEach(func(key string, val *Node) { seen = append(seen, key) })
	if len(seen) != 2 || seen[0] != "name" || seen[1] != "hp" {
		t.Fatalf("expected insertion order [name hp], got %v", seen)
	}
}

package serialize

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"unsafe"

	"github.com/keystone-engine/keystone/internal/memory"
	"github.com/keystone-engine/keystone/internal/reflectinfo"
)

// Serialize walks typeName's registered fields over instance and builds a
// JSON object node. Nested embedded structs (SemanticUserData fields)
// recurse through the same registry; pointer-to-struct fields recurse
// through an unsafe dereference of the stored address, matching how the
// FFI layer in internal/script treats reflected native pointers.
func Serialize(registry *reflectinfo.Registry, instance []byte, typeName string) (*Node, error) {
	info := registry.Lookup(typeName)
	if info == nil {
		return nil, fmt.Errorf("serialize: type %q is not registered", typeName)
	}

	obj := NewObject()
	for _, f := range info.Fields {
		val, err := serializeField(registry, instance, f)
		if err != nil {
			return nil, fmt.Errorf("serialize: field %q of %q: %w", f.Name, typeName, err)
		}
		if val != nil {
			obj.ObjectAdd(f.Name, val)
		}
	}
	return obj, nil
}

// Deserialize reads node's fields back into instance according to
// typeName's registered layout. mem is used to allocate backing storage
// for CString fields (a fresh native-owned C string per write); if mem is
// nil, CString fields are left untouched on write (serialization-only
// support), which is the reasonable default for round-trips that only
// ever dump state the native side already owns.
func Deserialize(registry *reflectinfo.Registry, mem *memory.Manager, node *Node, instance []byte, typeName string) error {
	info := registry.Lookup(typeName)
	if info == nil {
		return fmt.Errorf("serialize: type %q is not registered", typeName)
	}
	if node.Type() != KindObject {
		return fmt.Errorf("serialize: expected an object node for %q, got %s", typeName, node.Type())
	}

	for _, f := range info.Fields {
		val, ok := node.ObjectGet(f.Name)
		if !ok {
			continue
		}
		if err := deserializeField(registry, mem, instance, f, val); err != nil {
			return fmt.Errorf("serialize: field %q of %q: %w", f.Name, typeName, err)
		}
	}
	return nil
}

func arrayCount(dims [4]int) int {
	count := 0
	for _, d := range dims {
		if d <= 0 {
			continue
		}
		if count == 0 {
			count = d
		} else {
			count *= d
		}
	}
	return count
}

func primitiveWidth(sem reflectinfo.Semantic) (int, bool) {
	switch sem {
	case reflectinfo.SemanticBool, reflectinfo.SemanticInt8, reflectinfo.SemanticUint8:
		return 1, true
	case reflectinfo.SemanticInt16, reflectinfo.SemanticUint16:
		return 2, true
	case reflectinfo.SemanticInt32, reflectinfo.SemanticUint32, reflectinfo.SemanticFloat32:
		return 4, true
	case reflectinfo.SemanticInt64, reflectinfo.SemanticUint64, reflectinfo.SemanticFloat64:
		return 8, true
	default:
		return 0, false
	}
}

// pointeeTypeName strips trailing '*' qualifiers to recover the struct
// name a SemanticPointer field's TypeName refers to.
func pointeeTypeName(raw string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(raw), "*"))
}

func serializeField(registry *reflectinfo.Registry, instance []byte, f reflectinfo.Field) (*Node, error) {
	if count := arrayCount(f.ArrayDims); count > 0 {
		return serializeArray(registry, instance, f, count)
	}
	return serializeScalar(registry, instance, f.Offset, f)
}

func serializeArray(registry *reflectinfo.Registry, instance []byte, f reflectinfo.Field, count int) (*Node, error) {
	arr := NewArray()

	elemSize, ok := primitiveWidth(f.Semantic)
	if !ok && f.Semantic == reflectinfo.SemanticUserData {
		nested := registry.Lookup(f.TypeName)
		if nested == nil {
			return nil, fmt.Errorf("element type %q not registered", f.TypeName)
		}
		elemSize = int(nested.Size)
	}
	if elemSize == 0 {
		return nil, fmt.Errorf("array elements of semantic %s are not supported", f.Semantic)
	}

	for i := 0; i < count; i++ {
		offset := f.Offset + uintptr(i*elemSize)
		val, err := serializeScalar(registry, instance, offset, f)
		if err != nil {
			return nil, err
		}
		arr.ArrayPush(val)
	}
	return arr, nil
}

func serializeScalar(registry *reflectinfo.Registry, instance []byte, offset uintptr, f reflectinfo.Field) (*Node, error) {
	switch f.Semantic {
	case reflectinfo.SemanticBool:
		return NewBool(readUint(instance, offset, 1) != 0), nil
	case reflectinfo.SemanticInt8:
		return NewNumber(float64(int8(readUint(instance, offset, 1)))), nil
	case reflectinfo.SemanticUint8:
		return NewNumber(float64(readUint(instance, offset, 1))), nil
	case reflectinfo.SemanticInt16:
		return NewNumber(float64(int16(readUint(instance, offset, 2)))), nil
	case reflectinfo.SemanticUint16:
		return NewNumber(float64(readUint(instance, offset, 2))), nil
	case reflectinfo.SemanticInt32:
		return NewNumber(float64(int32(readUint(instance, offset, 4)))), nil
	case reflectinfo.SemanticUint32:
		return NewNumber(float64(readUint(instance, offset, 4))), nil
	case reflectinfo.SemanticInt64:
		return NewNumber(float64(int64(readUint(instance, offset, 8)))), nil
	case reflectinfo.SemanticUint64:
		return NewNumber(float64(readUint(instance, offset, 8))), nil
	case reflectinfo.SemanticFloat32:
		return NewNumber(float64(math.Float32frombits(uint32(readUint(instance, offset, 4))))), nil
	case reflectinfo.SemanticFloat64:
		return NewNumber(math.Float64frombits(readUint(instance, offset, 8))), nil
	case reflectinfo.SemanticCString:
		addr := uintptr(readUint(instance, offset, 8))
		return NewString(readCStringAt(addr)), nil
	case reflectinfo.SemanticUserData:
		nested := registry.Lookup(f.TypeName)
		if nested == nil {
			return nil, fmt.Errorf("type %q not registered", f.TypeName)
		}
		if int(offset)+int(nested.Size) > len(instance) {
			return nil, fmt.Errorf("nested field %q overruns instance bounds", f.Name)
		}
		return serializeFields(registry, instance[offset:offset+nested.Size], nested)
	case reflectinfo.SemanticPointer:
		name := pointeeTypeName(f.TypeName)
		nested := registry.Lookup(name)
		if nested == nil {
			return NewNull(), nil
		}
		addr := uintptr(readUint(instance, offset, 8))
		if addr == 0 {
			return NewNull(), nil
		}
		window := unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(nested.Size))
		return serializeFields(registry, window, nested)
	default:
		return nil, nil
	}
}

func serializeFields(registry *reflectinfo.Registry, instance []byte, info *reflectinfo.TypeInfo) (*Node, error) {
	obj := NewObject()
	for _, f := range info.Fields {
		val, err := serializeField(registry, instance, f)
		if err != nil {
			return nil, err
		}
		if val != nil {
			obj.ObjectAdd(f.Name, val)
		}
	}
	return obj, nil
}

func deserializeField(registry *reflectinfo.Registry, mem *memory.Manager, instance []byte, f reflectinfo.Field, node *Node) error {
	if count := arrayCount(f.ArrayDims); count > 0 {
		return deserializeArray(registry, mem, instance, f, node, count)
	}
	return deserializeScalar(registry, mem, instance, f.Offset, f, node)
}

func deserializeArray(registry *reflectinfo.Registry, mem *memory.Manager, instance []byte, f reflectinfo.Field, node *Node, count int) error {
	if node.Type() != KindArray {
		return fmt.Errorf("expected an array for %q", f.Name)
	}
	elemSize, ok := primitiveWidth(f.Semantic)
	if !ok && f.Semantic == reflectinfo.SemanticUserData {
		nested := registry.Lookup(f.TypeName)
		if nested == nil {
			return fmt.Errorf("element type %q not registered", f.TypeName)
		}
		elemSize = int(nested.Size)
	}
	if elemSize == 0 {
		return fmt.Errorf("array elements of semantic %s are not supported", f.Semantic)
	}

	for i := 0; i < count && i < node.ArrayLen(); i++ {
		elem, _ := node.ArrayGet(i)
		offset := f.Offset + uintptr(i*elemSize)
		if err := deserializeScalar(registry, mem, instance, offset, f, elem); err != nil {
			return err
		}
	}
	return nil
}

func deserializeScalar(registry *reflectinfo.Registry, mem *memory.Manager, instance []byte, offset uintptr, f reflectinfo.Field, node *Node) error {
	switch f.Semantic {
	case reflectinfo.SemanticBool:
		writeUint(instance, offset, 1, boolToUint64(node.Bool()))
	case reflectinfo.SemanticInt8, reflectinfo.SemanticUint8:
		writeUint(instance, offset, 1, uint64(int64(node.Number())))
	case reflectinfo.SemanticInt16, reflectinfo.SemanticUint16:
		writeUint(instance, offset, 2, uint64(int64(node.Number())))
	case reflectinfo.SemanticInt32, reflectinfo.SemanticUint32:
		writeUint(instance, offset, 4, uint64(int64(node.Number())))
	case reflectinfo.SemanticInt64, reflectinfo.SemanticUint64:
		writeUint(instance, offset, 8, uint64(int64(node.Number())))
	case reflectinfo.SemanticFloat32:
		writeUint(instance, offset, 4, uint64(math.Float32bits(float32(node.Number()))))
	case reflectinfo.SemanticFloat64:
		writeUint(instance, offset, 8, math.Float64bits(node.Number()))
	case reflectinfo.SemanticCString:
		if mem == nil {
			return nil
		}
		addr := allocCString(mem, node.String())
		writeUint(instance, offset, 8, uint64(addr))
	case reflectinfo.SemanticUserData:
		nested := registry.Lookup(f.TypeName)
		if nested == nil {
			return fmt.Errorf("type %q not registered", f.TypeName)
		}
		if int(offset)+int(nested.Size) > len(instance) {
			return fmt.Errorf("nested field %q overruns instance bounds", f.Name)
		}
		return deserializeFields(registry, mem, instance[offset:offset+nested.Size], nested, node)
	case reflectinfo.SemanticPointer:
		name := pointeeTypeName(f.TypeName)
		nested := registry.Lookup(name)
		if nested == nil || node.Type() == KindNull {
			return nil
		}
		addr := uintptr(readUint(instance, offset, 8))
		if addr == 0 {
			return nil
		}
		window := unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(nested.Size))
		return deserializeFields(registry, mem, window, nested, node)
	}
	return nil
}

func deserializeFields(registry *reflectinfo.Registry, mem *memory.Manager, instance []byte, info *reflectinfo.TypeInfo, node *Node) error {
	if node.Type() != KindObject {
		return fmt.Errorf("expected an object for %q", info.Name)
	}
	for _, f := range info.Fields {
		val, ok := node.ObjectGet(f.Name)
		if !ok {
			continue
		}
		if err := deserializeField(registry, mem, instance, f, val); err != nil {
			return err
		}
	}
	return nil
}

func boolToUint64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func readUint(b []byte, offset uintptr, width int) uint64 {
	switch width {
	case 1:
		return uint64(b[offset])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b[offset:]))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b[offset:]))
	case 8:
		return binary.LittleEndian.Uint64(b[offset:])
	default:
		return 0
	}
}

func writeUint(b []byte, offset uintptr, width int, v uint64) {
	switch width {
	case 1:
		b[offset] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b[offset:], uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b[offset:], uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(b[offset:], v)
	}
}

// readCStringAt reads a null-terminated byte sequence starting at a raw
// native address. Used only for CString fields, which the reflection
// registry models as an 8-byte pointer regardless of declared width.
func readCStringAt(addr uintptr) string {
	if addr == 0 {
		return ""
	}
	var buf []byte
	for i := uintptr(0); ; i++ {
		c := *(*byte)(unsafe.Pointer(addr + i))
		if c == 0 {
			break
		}
		buf = append(buf, c)
	}
	return string(buf)
}

// allocCString copies s into a fresh null-terminated native buffer owned
// by mem, returning its address.
func allocCString(mem *memory.Manager, s string) uintptr {
	ptr := mem.Alloc(uintptr(len(s)+1), memory.LifetimeUserManaged, memory.TagResource, "serialize.cstring")
	dst := unsafe.Slice((*byte)(ptr), len(s)+1)
	copy(dst, s)
	dst[len(s)] = 0
	return uintptr(ptr)
}
